package push

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/registry"
	"github.com/chatfabric/notify-server/internal/service/analytics"
)

// Config tunes the push engine, mirroring the teacher's
// notification.delivery.web.* settings.
type Config struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	MailboxSize       int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 256
	}
	return c
}

// SSEHandler implements GET /events, spec.md §4.6's primary push transport.
type SSEHandler struct {
	cfg      Config
	verifier *TokenVerifier
	hub      registry.Hubber
	recorder analytics.Recorder
	log      *slog.Logger
}

func NewSSEHandler(cfg Config, verifier *TokenVerifier, hub registry.Hubber, recorder analytics.Recorder, log *slog.Logger) *SSEHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SSEHandler{
		cfg:      cfg.withDefaults(),
		verifier: verifier,
		hub:      hub,
		recorder: recorder,
		log:      log.With("component", "service.push.sse"),
	}
}

// ServeHTTP authenticates, registers a Connector with C4, and streams
// envelopes as SSE frames until the client disconnects, the mailbox
// closes, or a write stalls past cfg.WriteTimeout. Status codes follow
// spec.md §4.6: 401 missing/malformed/expired, 403 revoked status, 200
// once the stream opens.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(bearerTokenFrom(r.Header.Get("Authorization"), r.URL.Query().Get("token")))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	meta := registry.ConnectMetadata{
		Platform:  "sse",
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	conn := registry.NewConnector(r.Context(), claims.UserID, h.cfg.MailboxSize, nil, meta)
	h.hub.Register(conn)
	connectedAt := time.Now()
	h.recorder.UserConnected(claims.UserID, conn.GetID(), r.UserAgent())

	h.log.Info("sse opened", "user_id", claims.UserID, "conn_id", conn.GetID())

	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	defer func() {
		h.hub.Unregister(claims.UserID, conn.GetID())
		conn.Close()
		h.recorder.UserDisconnected(claims.UserID, conn.GetID(), time.Since(connectedAt).Milliseconds())
		h.log.Info("sse closed", "user_id", claims.UserID, "conn_id", conn.GetID())
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case env, ok := <-conn.Recv():
			if !ok {
				return
			}
			if !writeSSEFrame(w, flusher, env, h.cfg.WriteTimeout) {
				return
			}

		case <-heartbeat.C:
			if !writeSSEHeartbeat(w, flusher, h.cfg.WriteTimeout) {
				return
			}
		}
	}
}

// deadlined sets a write deadline on w so a stalled socket (e.g. a dead NAT
// binding) surfaces as a write error within timeout instead of blocking
// the loop forever — the HTTP analogue of the teacher's per-send 250ms
// window in registry.Cell.deliver.
func deadlined(w http.ResponseWriter, timeout time.Duration) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(timeout))
}

func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, env *event.Envelope, timeout time.Duration) bool {
	body, err := marshalFrame(env)
	if err != nil {
		return true // skip this one frame, keep the stream alive
	}
	deadlined(w, timeout)
	if _, err := w.Write([]byte("id: " + string(env.EventID) + "\n")); err != nil {
		return false
	}
	if _, err := w.Write(append(append([]byte("data: "), body...), '\n', '\n')); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeSSEHeartbeat(w http.ResponseWriter, flusher http.Flusher, timeout time.Duration) bool {
	deadlined(w, timeout)
	if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeAuthError(w http.ResponseWriter, err error) {
	var ae *AuthError
	if errors.As(err, &ae) && ae.Forbidden {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
