package registry_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/domain/registry"
)

type recordingTelemetry struct {
	lagging int32
}

func (r *recordingTelemetry) ConnectionLagging(ids.UserID, ids.ConnectionID, uint64) {
	atomic.AddInt32(&r.lagging, 1)
}

func presenceEnvelope(userID ids.UserID) *event.Envelope {
	return event.NewEnvelope(1, 0, userID, &event.UserPresencePayload{UserID: userID, State: event.PresenceOnline})
}

func TestRegisterBroadcastDeliversToAttachedConnection(t *testing.T) {
	h := registry.NewHub(nil, nil, registry.WithMailboxSize(8))
	defer h.Shutdown()

	conn := registry.NewConnector(context.Background(), 1, 8, nil, registry.ConnectMetadata{})
	h.Register(conn)
	require.True(t, h.IsConnected(1))

	ok := h.Broadcast(1, presenceEnvelope(1))
	assert.True(t, ok)

	select {
	case got := <-conn.Recv():
		assert.Equal(t, event.KindUserPresence, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBroadcastToUnknownUserReturnsFalse(t *testing.T) {
	h := registry.NewHub(nil, nil)
	defer h.Shutdown()

	assert.False(t, h.Broadcast(999, presenceEnvelope(999)))
}

func TestUnregisterLastConnectionLeavesCellButDisconnectsSession(t *testing.T) {
	h := registry.NewHub(nil, nil)
	defer h.Shutdown()

	conn := registry.NewConnector(context.Background(), 1, 8, nil, registry.ConnectMetadata{})
	h.Register(conn)
	h.Unregister(1, conn.GetID())

	// the user is still "known" to the hub until the janitor reaps it, but
	// no live session remains to receive a broadcast.
	ok := h.Broadcast(1, presenceEnvelope(1))
	assert.True(t, ok, "push to mailbox still succeeds even with zero sessions attached")
}

func TestConnectorDropsOldestOnFullBuffer(t *testing.T) {
	telem := &recordingTelemetry{}
	conn := registry.NewConnector(context.Background(), 1, 1, telem, registry.ConnectMetadata{})
	defer conn.Close()

	first := presenceEnvelope(1)
	second := event.NewEnvelope(1, 0, 1, &event.UserPresencePayload{UserID: 1, State: event.PresenceOffline})

	assert.True(t, conn.Send(first, 10*time.Millisecond))
	assert.True(t, conn.Send(second, 10*time.Millisecond), "full buffer must drop oldest rather than reject newest")

	got := <-conn.Recv()
	assert.Equal(t, second.EventID, got.EventID, "oldest envelope must have been evicted")
	assert.EqualValues(t, 1, atomic.LoadInt32(&telem.lagging))
}

func TestConnectorCloseIsIdempotent(t *testing.T) {
	conn := registry.NewConnector(context.Background(), 1, 1, nil, registry.ConnectMetadata{})
	conn.Close()
	assert.NotPanics(t, func() { conn.Close() })
}
