package push_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/registry"
	"github.com/chatfabric/notify-server/internal/service/push"
)

func TestWSHandlerRejectsMissingToken(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	hub := registry.NewHub(nil, nil)
	t.Cleanup(hub.Shutdown)

	handler := push.NewWSHandler(push.Config{}, verifier, hub, noopRecorder{}, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandlerStreamsBroadcastEnvelopeAsFrame(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	hub := registry.NewHub(nil, nil)
	t.Cleanup(hub.Shutdown)

	handler := push.NewWSHandler(push.Config{HeartbeatInterval: time.Hour}, verifier, hub, noopRecorder{}, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	token := signClaims(t, kp, baseClaims(55, "active", time.Hour))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.IsConnected(55)
	}, time.Second, time.Millisecond)

	env := event.NewEnvelope(1, 7, 1, &event.TypingStoppedPayload{ChatID: 7, UserID: 1})
	require.True(t, hub.Broadcast(55, env))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"typing_stopped"`)
}
