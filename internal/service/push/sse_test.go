package push_test

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/domain/registry"
	"github.com/chatfabric/notify-server/internal/service/push"
)

type noopRecorder struct{}

func (noopRecorder) UserConnected(ids.UserID, ids.ConnectionID, string)     {}
func (noopRecorder) UserDisconnected(ids.UserID, ids.ConnectionID, int64)   {}
func (noopRecorder) NotificationReceived(ids.UserID, bool, *int64)          {}
func (noopRecorder) ConnectionLagging(ids.UserID, ids.ConnectionID, uint64) {}
func (noopRecorder) FanoutCompleted(ids.EventID, uint32, uint32, bool)      {}

func TestSSEHandlerRejectsMissingToken(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	hub := registry.NewHub(nil, nil)
	t.Cleanup(hub.Shutdown)

	handler := push.NewSSEHandler(push.Config{}, verifier, hub, noopRecorder{}, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSSEHandlerRejectsRevokedStatus(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	hub := registry.NewHub(nil, nil)
	t.Cleanup(hub.Shutdown)

	handler := push.NewSSEHandler(push.Config{}, verifier, hub, noopRecorder{}, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	token := signClaims(t, kp, baseClaims(7, "revoked", time.Hour))
	resp, err := http.Get(srv.URL + "?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSSEHandlerStreamsBroadcastEnvelopeAsFrame(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	hub := registry.NewHub(nil, nil)
	t.Cleanup(hub.Shutdown)

	handler := push.NewSSEHandler(push.Config{HeartbeatInterval: time.Hour}, verifier, hub, noopRecorder{}, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	token := signClaims(t, kp, baseClaims(99, "active", time.Hour))

	client := &http.Client{}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"?token="+token, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Wait for the connector to register before broadcasting, polling
	// IsConnected rather than sleeping a fixed guess.
	require.Eventually(t, func() bool {
		return hub.IsConnected(99)
	}, time.Second, time.Millisecond)

	env := event.NewEnvelope(1, 7, 1, &event.TypingStartedPayload{ChatID: 7, UserID: 1})
	require.True(t, hub.Broadcast(99, env))

	reader := bufio.NewReader(resp.Body)
	var idLine, dataLine string
	for i := 0; i < 10; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "id: ") {
			idLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}

	assert.Equal(t, fmt.Sprintf("id: %s", env.EventID), idLine)
	assert.Contains(t, dataLine, `"kind":"typing_started"`)
}
