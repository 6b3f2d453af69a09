package push

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatfabric/notify-server/internal/domain/registry"
	"github.com/chatfabric/notify-server/internal/service/analytics"
)

// WSHandler implements GET /events/ws, the supplemental bidirectional
// transport SPEC_FULL.md §4.6 adds alongside SSE. Adapted from the
// teacher's internal/handler/ws/delivery.go: same upgrade-then-pump-loop
// shape, generalized from a hardcoded user ID to JWT-authenticated claims
// and from the teacher's model.InboundEventer to event.Envelope.
type WSHandler struct {
	cfg      Config
	verifier *TokenVerifier
	hub      registry.Hubber
	recorder analytics.Recorder
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(cfg Config, verifier *TokenVerifier, hub registry.Hubber, recorder analytics.Recorder, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		cfg:      cfg.withDefaults(),
		verifier: verifier,
		hub:      hub,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.With("component", "service.push.ws"),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(bearerTokenFrom(r.Header.Get("Authorization"), r.URL.Query().Get("token")))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	meta := registry.ConnectMetadata{
		Platform:  "websocket",
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	session := registry.NewConnector(r.Context(), claims.UserID, h.cfg.MailboxSize, nil, meta)
	h.hub.Register(session)
	connectedAt := time.Now()
	h.recorder.UserConnected(claims.UserID, session.GetID(), r.UserAgent())

	h.log.Info("ws opened", "user_id", claims.UserID, "conn_id", session.GetID())

	defer func() {
		h.hub.Unregister(claims.UserID, session.GetID())
		session.Close()
		h.recorder.UserDisconnected(claims.UserID, session.GetID(), time.Since(connectedAt).Milliseconds())
		h.log.Info("ws closed", "user_id", claims.UserID, "conn_id", session.GetID())
	}()

	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	// This read goroutine drains and discards inbound control/text frames so the
	// gorilla read pump observes client-initiated close frames; this
	// transport is push-only, so frame content is never acted on.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-closed:
			return

		case env, ok := <-session.Recv():
			if !ok {
				return
			}
			data, err := marshalFrame(env)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					h.log.Warn("ws send failed", "error", err)
				}
				return
			}

		case <-heartbeat.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
