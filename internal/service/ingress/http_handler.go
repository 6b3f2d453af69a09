package ingress

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// ReferenceHandler is not a production write endpoint — the domain
// services that validate preconditions and persist a message are
// explicitly out of scope (spec.md §4.8). It exists to exercise Publisher
// end to end in tests and local examples: decode a minimal request,
// pretend the persistence transaction already committed, and publish.
type ReferenceHandler struct {
	publisher Publisher
}

func NewReferenceHandler(publisher Publisher) *ReferenceHandler {
	return &ReferenceHandler{publisher: publisher}
}

type createMessageRequest struct {
	WorkspaceID     ids.WorkspaceID `json:"workspace_id"`
	ChatID          ids.ChatID      `json:"chat_id"`
	ActorUserID     ids.UserID      `json:"actor_user_id"`
	Body            string          `json:"body"`
	MembersSnapshot []ids.UserID    `json:"members_snapshot"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

// ServeHTTP accepts POST only. NewRouter does not mount ReferenceHandler,
// so it has no route of its own.
func (h *ReferenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payload := &event.MessageCreatedPayload{
		ChatID:          req.ChatID,
		SenderUserID:    req.ActorUserID,
		Body:            req.Body,
		SentAtUnixMilli: time.Now().UnixMilli(),
		MembersSnapshot: req.MembersSnapshot,
		IdempotencyKey:  ids.IdempotencyKey(req.IdempotencyKey),
	}

	if err := h.publisher.Publish(r.Context(), req.WorkspaceID, req.ChatID, req.ActorUserID, payload); err != nil {
		http.Error(w, "publish failed", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
