package event

import (
	"github.com/chatfabric/notify-server/internal/domain/event/wire"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Payload is implemented by every kind-specific payload struct. marshal and
// unmarshal operate on the envelope's embedded payload bytes, independent of
// the envelope's own framing.
type Payload interface {
	Kind() Kind
	marshal() []byte
	unmarshal([]byte) error
}

// MessageCreatedPayload carries the authoritative member snapshot that C5
// must use for routing instead of the live membership index (spec §4.5
// step 1): messages must reach exactly the membership as of send time, even
// if the index has since moved on.
type MessageCreatedPayload struct {
	MessageID       ids.MessageID
	ChatID          ids.ChatID
	SenderUserID    ids.UserID
	Body            string
	AttachmentURLs  []string
	SentAtUnixMilli int64
	MembersSnapshot []ids.UserID
	IdempotencyKey  ids.IdempotencyKey
}

func (p *MessageCreatedPayload) Kind() Kind { return KindMessageCreated }

func (p *MessageCreatedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.MessageID))
	w.ZigZag(2, int64(p.ChatID))
	w.ZigZag(3, int64(p.SenderUserID))
	w.String(4, p.Body)
	for _, a := range p.AttachmentURLs {
		w.String(5, a)
	}
	w.Varint(6, uint64(p.SentAtUnixMilli))
	for _, m := range p.MembersSnapshot {
		w.ZigZag(7, int64(m))
	}
	w.String(8, string(p.IdempotencyKey))
	return w.Bytes()
}

func (p *MessageCreatedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.MessageID = ids.MessageID(f.Int64())
		case 2:
			p.ChatID = ids.ChatID(f.Int64())
		case 3:
			p.SenderUserID = ids.UserID(f.Int64())
		case 4:
			p.Body = f.String()
		case 5:
			p.AttachmentURLs = append(p.AttachmentURLs, f.String())
		case 6:
			p.SentAtUnixMilli = int64(f.Uint64())
		case 7:
			p.MembersSnapshot = append(p.MembersSnapshot, ids.UserID(f.Int64()))
		case 8:
			p.IdempotencyKey = ids.IdempotencyKey(f.String())
		}
	}
}

type MessageEditedPayload struct {
	MessageID         ids.MessageID
	ChatID            ids.ChatID
	EditorUserID      ids.UserID
	NewBody           string
	EditedAtUnixMilli int64
}

func (p *MessageEditedPayload) Kind() Kind { return KindMessageEdited }

func (p *MessageEditedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.MessageID))
	w.ZigZag(2, int64(p.ChatID))
	w.ZigZag(3, int64(p.EditorUserID))
	w.String(4, p.NewBody)
	w.Varint(5, uint64(p.EditedAtUnixMilli))
	return w.Bytes()
}

func (p *MessageEditedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.MessageID = ids.MessageID(f.Int64())
		case 2:
			p.ChatID = ids.ChatID(f.Int64())
		case 3:
			p.EditorUserID = ids.UserID(f.Int64())
		case 4:
			p.NewBody = f.String()
		case 5:
			p.EditedAtUnixMilli = int64(f.Uint64())
		}
	}
}

type MessageDeletedPayload struct {
	MessageID        ids.MessageID
	ChatID           ids.ChatID
	DeletedByUserID  ids.UserID
	DeletedAtUnixMilli int64
}

func (p *MessageDeletedPayload) Kind() Kind { return KindMessageDeleted }

func (p *MessageDeletedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.MessageID))
	w.ZigZag(2, int64(p.ChatID))
	w.ZigZag(3, int64(p.DeletedByUserID))
	w.Varint(4, uint64(p.DeletedAtUnixMilli))
	return w.Bytes()
}

func (p *MessageDeletedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.MessageID = ids.MessageID(f.Int64())
		case 2:
			p.ChatID = ids.ChatID(f.Int64())
		case 3:
			p.DeletedByUserID = ids.UserID(f.Int64())
		case 4:
			p.DeletedAtUnixMilli = int64(f.Uint64())
		}
	}
}

type ChatCreatedPayload struct {
	ChatID             ids.ChatID
	CreatorUserID      ids.UserID
	Title              string
	MemberUserIDs      []ids.UserID
	CreatedAtUnixMilli int64
}

func (p *ChatCreatedPayload) Kind() Kind { return KindChatCreated }

func (p *ChatCreatedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.ZigZag(2, int64(p.CreatorUserID))
	w.String(3, p.Title)
	for _, m := range p.MemberUserIDs {
		w.ZigZag(4, int64(m))
	}
	w.Varint(5, uint64(p.CreatedAtUnixMilli))
	return w.Bytes()
}

func (p *ChatCreatedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.CreatorUserID = ids.UserID(f.Int64())
		case 3:
			p.Title = f.String()
		case 4:
			p.MemberUserIDs = append(p.MemberUserIDs, ids.UserID(f.Int64()))
		case 5:
			p.CreatedAtUnixMilli = int64(f.Uint64())
		}
	}
}

type ChatUpdatedPayload struct {
	ChatID            ids.ChatID
	Title             string
	UpdatedAtUnixMilli int64
}

func (p *ChatUpdatedPayload) Kind() Kind { return KindChatUpdated }

func (p *ChatUpdatedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.String(2, p.Title)
	w.Varint(3, uint64(p.UpdatedAtUnixMilli))
	return w.Bytes()
}

func (p *ChatUpdatedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.Title = f.String()
		case 3:
			p.UpdatedAtUnixMilli = int64(f.Uint64())
		}
	}
}

type ChatMemberJoinedPayload struct {
	ChatID          ids.ChatID
	UserID          ids.UserID
	AddedByUserID   ids.UserID
	JoinedAtUnixMilli int64
}

func (p *ChatMemberJoinedPayload) Kind() Kind { return KindChatMemberJoined }

func (p *ChatMemberJoinedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.ZigZag(2, int64(p.UserID))
	w.ZigZag(3, int64(p.AddedByUserID))
	w.Varint(4, uint64(p.JoinedAtUnixMilli))
	return w.Bytes()
}

func (p *ChatMemberJoinedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.UserID = ids.UserID(f.Int64())
		case 3:
			p.AddedByUserID = ids.UserID(f.Int64())
		case 4:
			p.JoinedAtUnixMilli = int64(f.Uint64())
		}
	}
}

type ChatMemberLeftPayload struct {
	ChatID            ids.ChatID
	UserID            ids.UserID
	RemovedByUserID   ids.UserID
	LeftAtUnixMilli   int64
}

func (p *ChatMemberLeftPayload) Kind() Kind { return KindChatMemberLeft }

func (p *ChatMemberLeftPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.ZigZag(2, int64(p.UserID))
	w.ZigZag(3, int64(p.RemovedByUserID))
	w.Varint(4, uint64(p.LeftAtUnixMilli))
	return w.Bytes()
}

func (p *ChatMemberLeftPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.UserID = ids.UserID(f.Int64())
		case 3:
			p.RemovedByUserID = ids.UserID(f.Int64())
		case 4:
			p.LeftAtUnixMilli = int64(f.Uint64())
		}
	}
}

type ChatDeletedPayload struct {
	ChatID            ids.ChatID
	DeletedByUserID   ids.UserID
	DeletedAtUnixMilli int64
}

func (p *ChatDeletedPayload) Kind() Kind { return KindChatDeleted }

func (p *ChatDeletedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.ZigZag(2, int64(p.DeletedByUserID))
	w.Varint(3, uint64(p.DeletedAtUnixMilli))
	return w.Bytes()
}

func (p *ChatDeletedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.DeletedByUserID = ids.UserID(f.Int64())
		case 3:
			p.DeletedAtUnixMilli = int64(f.Uint64())
		}
	}
}

// PresenceState is the closed set of states a UserPresence event reports.
type PresenceState uint32

const (
	PresenceOffline PresenceState = iota
	PresenceOnline
	PresenceAway
)

func (s PresenceState) String() string {
	switch s {
	case PresenceOnline:
		return "online"
	case PresenceAway:
		return "away"
	default:
		return "offline"
	}
}

// UserPresencePayload carries no chat_id: it is a WorkspaceScope event (see
// Kind.Scope), broadcast to every connected member of the workspace rather
// than a chat's membership set, since presence has no single addressable
// chat.
type UserPresencePayload struct {
	UserID      ids.UserID
	State       PresenceState
	AtUnixMilli int64
}

func (p *UserPresencePayload) Kind() Kind { return KindUserPresence }

func (p *UserPresencePayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.UserID))
	w.Varint(2, uint64(p.State))
	w.Varint(3, uint64(p.AtUnixMilli))
	return w.Bytes()
}

func (p *UserPresencePayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.UserID = ids.UserID(f.Int64())
		case 2:
			p.State = PresenceState(f.Uint64())
		case 3:
			p.AtUnixMilli = int64(f.Uint64())
		}
	}
}

type TypingStartedPayload struct {
	ChatID       ids.ChatID
	UserID       ids.UserID
	AtUnixMilli  int64
}

func (p *TypingStartedPayload) Kind() Kind { return KindTypingStarted }

func (p *TypingStartedPayload) marshal() []byte { return marshalTyping(p.ChatID, p.UserID, p.AtUnixMilli) }

func (p *TypingStartedPayload) unmarshal(b []byte) error {
	return unmarshalTyping(b, &p.ChatID, &p.UserID, &p.AtUnixMilli)
}

type TypingStoppedPayload struct {
	ChatID       ids.ChatID
	UserID       ids.UserID
	AtUnixMilli  int64
}

func (p *TypingStoppedPayload) Kind() Kind { return KindTypingStopped }

func (p *TypingStoppedPayload) marshal() []byte { return marshalTyping(p.ChatID, p.UserID, p.AtUnixMilli) }

func (p *TypingStoppedPayload) unmarshal(b []byte) error {
	return unmarshalTyping(b, &p.ChatID, &p.UserID, &p.AtUnixMilli)
}

func marshalTyping(chatID ids.ChatID, userID ids.UserID, at int64) []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(chatID))
	w.ZigZag(2, int64(userID))
	w.Varint(3, uint64(at))
	return w.Bytes()
}

func unmarshalTyping(b []byte, chatID *ids.ChatID, userID *ids.UserID, at *int64) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			*chatID = ids.ChatID(f.Int64())
		case 2:
			*userID = ids.UserID(f.Int64())
		case 3:
			*at = int64(f.Uint64())
		}
	}
}

type ReadReceiptPayload struct {
	ChatID        ids.ChatID
	UserID        ids.UserID
	UpToMessageID ids.MessageID
	AtUnixMilli   int64
}

func (p *ReadReceiptPayload) Kind() Kind { return KindReadReceipt }

func (p *ReadReceiptPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.ZigZag(2, int64(p.UserID))
	w.ZigZag(3, int64(p.UpToMessageID))
	w.Varint(4, uint64(p.AtUnixMilli))
	return w.Bytes()
}

func (p *ReadReceiptPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.UserID = ids.UserID(f.Int64())
		case 3:
			p.UpToMessageID = ids.MessageID(f.Int64())
		case 4:
			p.AtUnixMilli = int64(f.Uint64())
		}
	}
}

// DuplicateMessageAttemptedPayload reports a repeated idempotency key in
// place of a second MessageCreated, so subscribers (analytics, audit) can
// see the attempt without the message fanning out twice. C8 keeps no record
// of idempotency keys; it publishes this payload like any other when a
// caller passes one to ingress.Publisher.
type DuplicateMessageAttemptedPayload struct {
	ChatID            ids.ChatID
	UserID            ids.UserID
	IdempotencyKey    ids.IdempotencyKey
	OriginalMessageID ids.MessageID
	AtUnixMilli       int64
}

func (p *DuplicateMessageAttemptedPayload) Kind() Kind { return KindDuplicateMessageAttempted }

func (p *DuplicateMessageAttemptedPayload) marshal() []byte {
	w := wire.NewWriter()
	w.ZigZag(1, int64(p.ChatID))
	w.ZigZag(2, int64(p.UserID))
	w.String(3, string(p.IdempotencyKey))
	w.ZigZag(4, int64(p.OriginalMessageID))
	w.Varint(5, uint64(p.AtUnixMilli))
	return w.Bytes()
}

func (p *DuplicateMessageAttemptedPayload) unmarshal(b []byte) error {
	r := wire.NewReader(b)
	for {
		f, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch f.Tag {
		case 1:
			p.ChatID = ids.ChatID(f.Int64())
		case 2:
			p.UserID = ids.UserID(f.Int64())
		case 3:
			p.IdempotencyKey = ids.IdempotencyKey(f.String())
		case 4:
			p.OriginalMessageID = ids.MessageID(f.Int64())
		case 5:
			p.AtUnixMilli = int64(f.Uint64())
		}
	}
}

// newPayload allocates the zero-value payload struct for a wire kind, or
// nil if the kind is unknown (additive evolution: unknown kinds decode to a
// nil payload with the envelope's raw bytes retained in RawPayload).
func newPayload(k Kind) Payload {
	switch k {
	case KindMessageCreated:
		return &MessageCreatedPayload{}
	case KindMessageEdited:
		return &MessageEditedPayload{}
	case KindMessageDeleted:
		return &MessageDeletedPayload{}
	case KindChatCreated:
		return &ChatCreatedPayload{}
	case KindChatUpdated:
		return &ChatUpdatedPayload{}
	case KindChatMemberJoined:
		return &ChatMemberJoinedPayload{}
	case KindChatMemberLeft:
		return &ChatMemberLeftPayload{}
	case KindChatDeleted:
		return &ChatDeletedPayload{}
	case KindUserPresence:
		return &UserPresencePayload{}
	case KindTypingStarted:
		return &TypingStartedPayload{}
	case KindTypingStopped:
		return &TypingStoppedPayload{}
	case KindReadReceipt:
		return &ReadReceiptPayload{}
	case KindDuplicateMessageAttempted:
		return &DuplicateMessageAttemptedPayload{}
	default:
		return nil
	}
}
