package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/HUB)
// This allows mocking and decoupling from the concrete implementation
type Connector interface {
	GetID() ids.ConnectionID
	GetUserID() ids.UserID
	Send(env *event.Envelope, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan *event.Envelope
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	Platform  string
	Version   string
	RemoteIP  string
	UserAgent string
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id             ids.ConnectionID
	userID         ids.UserID
	metadata       ConnectMetadata
	createdAt      time.Time
	ctx            context.Context
	cancelFn       context.CancelFunc
	sendCh         chan *event.Envelope
	closeOnce      sync.Once // [PROTECTION]
	lastActivityAt int64     // [ATOMIC_FIELD]
	droppedCount   uint64    // [ATOMIC_FIELD]
	telemetry      Telemetry
}

// [POOL] SYNC.POOL FOR OBJECT REUSE (REDUCES GC PRESSURE)
var connectPool = sync.Pool{
	New: func() any {
		return &connect{}
	},
}

// [NEW_CONNECTOR] FACTORY FUNCTION USING POOLING
func NewConnector(ctx context.Context, userID ids.UserID, bufferSize int, telemetry Telemetry, meta ConnectMetadata) Connector {
	c := connectPool.Get().(*connect)

	// [INITIALIZATION]
	// Delegate state setup to the reset method to ensure a clean slate.
	c.reset(ctx, userID, bufferSize, telemetry, meta)

	return c
}

// reset re-initializes the connector's internal state using a struct literal.
// This is the cleanest way to wipe 'stale' data from pooled objects and reset the sync.Once guard.
func (c *connect) reset(ctx context.Context, userID ids.UserID, bufferSize int, telemetry Telemetry, meta ConnectMetadata) {
	childCtx, cancel := context.WithCancel(ctx)
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}

	// [BLANK_SLATE_ASSIGNMENT]
	// By reassigning the pointer's value to a new literal, we ensure all fields,
	// including metadata and counters, are reset to their zero-values or defaults.
	*c = connect{
		id:             ids.NewConnectionID(),
		userID:         userID,
		metadata:       meta,
		createdAt:      time.Now(),
		ctx:            childCtx,
		cancelFn:       cancel,
		sendCh:         make(chan *event.Envelope, bufferSize),
		lastActivityAt: time.Now().UnixNano(),
		telemetry:      telemetry,
	}
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() ids.ConnectionID { return c.id }
func (c *connect) GetUserID() ids.UserID   { return c.userID }

// Send attempts to push an event into the channel. If the buffer stays
// full for the whole timeout window, the oldest buffered envelope is
// dropped to make room for the new one — strict FIFO drop-oldest, per
// spec: no priority shedding, the newest state always wins a race against
// stale backlog.
func (c *connect) Send(env *event.Envelope, timeout time.Duration) bool {
	// [RESOURCE_MANAGEMENT] Create a localized context to enforce a strict delivery window.
	// This ensures that the User Cell is not held hostage by a single stalled session.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	case <-c.ctx.Done():
		return false

	// 2. [PRIMARY_DELIVERY] Attempt to enqueue the event into the session's mailbox.
	// Unlike a 'default' block, this will wait up to 'timeout' for space to become available,
	// which smooths out transient network jitter.
	case c.sendCh <- env:
		return true

	// 3. [BACKPRESSURE_THRESHOLD] Triggered if the buffer remains saturated for the entire duration.
	// This indicates a persistent slow consumer or network congestion.
	case <-ctx.Done():
		return c.dropOldestAndSend(env)
	}
}

// dropOldestAndSend discards the single oldest buffered envelope, then
// enqueues env. Best-effort: if another goroutine races the buffer empty
// in between, env is simply appended to the freed slot.
func (c *connect) dropOldestAndSend(env *event.Envelope) bool {
	select {
	case <-c.sendCh:
		atomic.AddUint64(&c.droppedCount, 1)
		c.telemetry.ConnectionLagging(c.userID, c.id, atomic.LoadUint64(&c.droppedCount))
	default:
	}

	select {
	case c.sendCh <- env:
		return true
	default:
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}
}

func (c *connect) Recv() <-chan *event.Envelope { return c.sendCh }

// Close terminates the session, triggers cleanup, and recycles the object.
func (c *connect) Close() {
	// [IDEMPOTENCY_SHIELD]
	// Ensures the teardown logic runs exactly once. This prevents "panic: close of closed channel"
	// and double-entry corruption of the sync.Pool when called concurrently
	// by the Hub (shutdown), Cell (eviction), or push handler (defer).
	c.closeOnce.Do(func() {
		// 1. [SIGNAL_ABORT] Immediately cancel the context to stop any pending Send operations.
		c.cancelFn()

		// 2. [UPSTREAM_NOTIFY] Closing the channel signals the push handler (via !ok)
		// to exit its write loop gracefully.
		if c.sendCh != nil {
			close(c.sendCh)
		}

		// 3. [MEMORY_SANITIZATION]
		// Zero out references to prevent memory leaks while the object is idle in the pool.
		// This ensures the next user of this pooled object starts with a clean slate.
		c.sendCh = nil
		c.metadata = ConnectMetadata{}

		// 4. [RESOURCE_RECYCLING] Return the sanitized structure to reduce GC allocation pressure.
		connectPool.Put(c)
	})
}
