/*
Package registry implements C4: the connection registry, a Virtual Cell
(Actor) system that fans a per-user mailbox out to every live push
connection that user currently holds open.

Key architectural concepts, carried over from the delivery-service this was
adapted from:
  - Virtual Cells: every connected user is represented by an isolated Cell
    (actor) that owns all concurrent push sessions (SSE, websocket) for that
    identity.
  - Decoupling & backpressure: per-user mailboxes mean a slow consumer on
    one connection never blocks fan-out to anyone else.
  - Concurrency management: lock-free lookup via sync.Map, fine-grained
    per-cell locking, no global mutex.

Unlike the system this was adapted from, backpressure here is strict
FIFO drop-oldest (no priority shedding): when a connection's buffer is
full, the oldest buffered envelope is discarded to make room for the
newest one, and the drop is reported through Telemetry.
*/
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Telemetry receives non-blocking signals the registry wants surfaced to
// C7 analytics, without the registry importing the analytics package.
type Telemetry interface {
	ConnectionLagging(userID ids.UserID, connID ids.ConnectionID, dropped uint64)
}

type noopTelemetry struct{}

func (noopTelemetry) ConnectionLagging(ids.UserID, ids.ConnectionID, uint64) {}

// Hubber defines the external API for the registry system.
type Hubber interface {
	Broadcast(userID ids.UserID, env *event.Envelope) bool
	Register(conn Connector)
	Unregister(userID ids.UserID, connID ids.ConnectionID)
	IsConnected(userID ids.UserID) bool
	Shutdown()
}

// Hub implements [Hubber] using a Virtual Cell (Actor) architecture.
type Hub struct {
	// cells maintains an active registry of UserID -> Celler.
	cells sync.Map

	// [EVICTION_POLICY]
	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int
	telemetry        Telemetry

	log      *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHub initializes the registry with functional options and starts the janitor process.
func NewHub(log *slog.Logger, telemetry Telemetry, opts ...Option) *Hub {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	if log == nil {
		log = slog.Default()
	}
	// [DEFAULTS] Production-ready fallback values
	h := &Hub{
		evictionInterval: 1 * time.Minute,
		idleTimeout:      5 * time.Minute,
		mailboxSize:      1024,
		telemetry:        telemetry,
		log:              log.With("component", "registry.hub"),
		stopCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	go h.runEvictor()
	return h
}

// IsConnected checks if a user cell exists in the registry.
func (h *Hub) IsConnected(userID ids.UserID) bool {
	_, ok := h.cells.Load(userID)
	return ok
}

// Broadcast dispatches an event to the specific user's cell mailbox.
// Returns false when the user has no live cell — this is a routine outcome
// for an offline user, not an error, and C5 treats it as such.
func (h *Hub) Broadcast(userID ids.UserID, env *event.Envelope) bool {
	if val, ok := h.cells.Load(userID); ok {
		return val.(Celler).Push(env)
	}
	return false
}

// Register performs an [IDEMPOTENT] registration of a new connection.
func (h *Hub) Register(conn Connector) {
	uID := conn.GetUserID()
	// Pass h.mailboxSize to ensure the Actor has the configured capacity
	val, _ := h.cells.LoadOrStore(uID, NewCell(uID, h.mailboxSize, h.telemetry))
	val.(Celler).Attach(conn)
}

// Unregister removes a connection from a cell.
// Reclamation of the cell itself is handled asynchronously by the Evictor.
func (h *Hub) Unregister(userID ids.UserID, connID ids.ConnectionID) {
	if val, ok := h.cells.Load(userID); ok {
		val.(Celler).Detach(connID)
	}
}

func (h *Hub) runEvictor() {
	ticker := time.NewTicker(h.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.performEviction()
		}
	}
}

// performEviction executes the [RESOURCE_RECLAMATION] cycle.
func (h *Hub) performEviction() {
	reapedCount := 0
	h.cells.Range(func(key, value any) bool {
		cell := value.(Celler)
		if cell.IsIdle(h.idleTimeout) {
			cell.Stop()
			h.cells.Delete(key)
			reapedCount++
		}
		return true
	})

	if reapedCount > 0 {
		h.log.Debug("evicted idle cells", "count", reapedCount)
	}
}

// Shutdown gracefully stops the hub and all managed cells.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.cells.Range(func(key, value any) bool {
		value.(Celler).Stop()
		h.cells.Delete(key)
		return true
	})
}
