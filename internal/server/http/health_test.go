package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/domain/registry"
	httpserver "github.com/chatfabric/notify-server/internal/server/http"
)

func zerologDiscard() zerolog.Logger {
	return zerolog.Nop()
}

type fakeTransport struct {
	healthErr error
}

func (f *fakeTransport) Publish(context.Context, string, []byte) error { return nil }
func (f *fakeTransport) SubscribeDurable(context.Context, pubsub.ConsumerConfig, pubsub.Handler) (pubsub.Subscription, error) {
	return nil, nil
}
func (f *fakeTransport) Health(context.Context) error { return f.healthErr }
func (f *fakeTransport) Kind() string                 { return "fake" }

func newTestRouter(t *testing.T, transportErr error) http.Handler {
	t.Helper()
	hub := registry.NewHub(nil, nil)
	router := httpserver.NewRouter(
		httpserver.Config{Port: 0},
		nil, nil,
		&fakeTransport{healthErr: transportErr},
		hub,
		zerologDiscard(),
		httpserver.NewMetrics(),
	)
	return router
}

func TestReadyReturns200WhenBrokerReachable(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["broker_reachable"])
}

func TestReadyReturns503WhenBrokerUnreachable(t *testing.T) {
	router := newTestRouter(t, errors.New("connection refused"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["broker_reachable"])
}

func TestLiveReturns200RegardlessOfBroker(t *testing.T) {
	router := newTestRouter(t, errors.New("broker down"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsDegradedOnBrokerFailure(t *testing.T) {
	router := newTestRouter(t, errors.New("broker down"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}
