package push

import (
	"encoding/json"
	"fmt"

	"github.com/chatfabric/notify-server/internal/domain/event"
)

// frame is the generic JSON envelope every SSE/WS client sees, regardless
// of payload kind. Adapted from the teacher's wsmarshaller.WSEvent wrapper
// (event/id/sent_at/payload), generalized from that package's single
// message-or-connected switch to every event.Kind the fabric carries.
type frame struct {
	Kind       string `json:"kind"`
	EventID    string `json:"event_id"`
	ChatID     int64  `json:"chat_id,omitempty"`
	OccurredAt int64  `json:"occurred_at"`
	Payload    any    `json:"payload"`
}

// marshalFrame projects an envelope into the wire JSON a push client reads.
func marshalFrame(env *event.Envelope) ([]byte, error) {
	f := frame{
		Kind:       env.Kind.String(),
		EventID:    string(env.EventID),
		ChatID:     int64(env.ChatID),
		OccurredAt: env.OccurredAt.UnixMilli(),
		Payload:    projectPayload(env.Payload),
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("push: marshal frame for event %s: %w", env.EventID, err)
	}
	return b, nil
}

// projectPayload maps a typed event.Payload onto a JSON-friendly struct.
// Kinds with no case here (should not occur given event.Kind.Scope's
// exhaustive switch) fall back to the payload itself, which still encodes
// via its exported fields.
func projectPayload(p event.Payload) any {
	switch v := p.(type) {
	case *event.MessageCreatedPayload:
		return struct {
			MessageID int64    `json:"message_id"`
			ChatID    int64    `json:"chat_id"`
			SenderID  int64    `json:"sender_user_id"`
			Body      string   `json:"body"`
			Attach    []string `json:"attachment_urls,omitempty"`
			SentAt    int64    `json:"sent_at_unix_milli"`
		}{int64(v.MessageID), int64(v.ChatID), int64(v.SenderUserID), v.Body, v.AttachmentURLs, v.SentAtUnixMilli}
	case *event.MessageEditedPayload:
		return struct {
			MessageID int64  `json:"message_id"`
			ChatID    int64  `json:"chat_id"`
			EditorID  int64  `json:"editor_user_id"`
			NewBody   string `json:"new_body"`
			EditedAt  int64  `json:"edited_at_unix_milli"`
		}{int64(v.MessageID), int64(v.ChatID), int64(v.EditorUserID), v.NewBody, v.EditedAtUnixMilli}
	case *event.MessageDeletedPayload:
		return struct {
			MessageID int64 `json:"message_id"`
			ChatID    int64 `json:"chat_id"`
			DeletedBy int64 `json:"deleted_by_user_id"`
			DeletedAt int64 `json:"deleted_at_unix_milli"`
		}{int64(v.MessageID), int64(v.ChatID), int64(v.DeletedByUserID), v.DeletedAtUnixMilli}
	case *event.ChatCreatedPayload:
		return struct {
			ChatID    int64   `json:"chat_id"`
			CreatorID int64   `json:"creator_user_id"`
			Title     string  `json:"title"`
			Members   []int64 `json:"member_user_ids,omitempty"`
			CreatedAt int64   `json:"created_at_unix_milli"`
		}{int64(v.ChatID), int64(v.CreatorUserID), v.Title, toInt64Slice(v.MemberUserIDs), v.CreatedAtUnixMilli}
	case *event.ChatUpdatedPayload:
		return struct {
			ChatID    int64  `json:"chat_id"`
			Title     string `json:"title"`
			UpdatedAt int64  `json:"updated_at_unix_milli"`
		}{int64(v.ChatID), v.Title, v.UpdatedAtUnixMilli}
	case *event.ChatMemberJoinedPayload:
		return struct {
			ChatID   int64 `json:"chat_id"`
			UserID   int64 `json:"user_id"`
			AddedBy  int64 `json:"added_by_user_id"`
			JoinedAt int64 `json:"joined_at_unix_milli"`
		}{int64(v.ChatID), int64(v.UserID), int64(v.AddedByUserID), v.JoinedAtUnixMilli}
	case *event.ChatMemberLeftPayload:
		return struct {
			ChatID    int64 `json:"chat_id"`
			UserID    int64 `json:"user_id"`
			RemovedBy int64 `json:"removed_by_user_id"`
			LeftAt    int64 `json:"left_at_unix_milli"`
		}{int64(v.ChatID), int64(v.UserID), int64(v.RemovedByUserID), v.LeftAtUnixMilli}
	case *event.ChatDeletedPayload:
		return struct {
			ChatID    int64 `json:"chat_id"`
			DeletedBy int64 `json:"deleted_by_user_id"`
			DeletedAt int64 `json:"deleted_at_unix_milli"`
		}{int64(v.ChatID), int64(v.DeletedByUserID), v.DeletedAtUnixMilli}
	case *event.UserPresencePayload:
		return struct {
			UserID int64  `json:"user_id"`
			State  string `json:"state"`
			AtMs   int64  `json:"at_unix_milli"`
		}{int64(v.UserID), v.State.String(), v.AtUnixMilli}
	case *event.TypingStartedPayload:
		return struct {
			ChatID int64 `json:"chat_id"`
			UserID int64 `json:"user_id"`
			AtMs   int64 `json:"at_unix_milli"`
		}{int64(v.ChatID), int64(v.UserID), v.AtUnixMilli}
	case *event.TypingStoppedPayload:
		return struct {
			ChatID int64 `json:"chat_id"`
			UserID int64 `json:"user_id"`
			AtMs   int64 `json:"at_unix_milli"`
		}{int64(v.ChatID), int64(v.UserID), v.AtUnixMilli}
	case *event.ReadReceiptPayload:
		return struct {
			ChatID        int64 `json:"chat_id"`
			UserID        int64 `json:"user_id"`
			UpToMessageID int64 `json:"up_to_message_id"`
			AtMs          int64 `json:"at_unix_milli"`
		}{int64(v.ChatID), int64(v.UserID), int64(v.UpToMessageID), v.AtUnixMilli}
	case *event.DuplicateMessageAttemptedPayload:
		return struct {
			ChatID      int64  `json:"chat_id"`
			UserID      int64  `json:"user_id"`
			Idempotency string `json:"idempotency_key"`
			OriginalID  int64  `json:"original_message_id"`
			AtMs        int64  `json:"at_unix_milli"`
		}{int64(v.ChatID), int64(v.UserID), string(v.IdempotencyKey), int64(v.OriginalMessageID), v.AtUnixMilli}
	default:
		return p
	}
}

func toInt64Slice[T ~int64](in []T) []int64 {
	if in == nil {
		return nil
	}
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
