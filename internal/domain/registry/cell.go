package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Celler defines the internal API for user-specific delivery units.
type Celler interface {
	Push(env *event.Envelope) bool
	Attach(conn Connector)
	Detach(connID ids.ConnectionID) bool
	IsIdle(timeout time.Duration) bool
	Stop()
}

// Cell implements [ISOLATED_DELIVERY] logic for a single user.
type Cell struct {
	// [IDENTITY]
	// The unique identifier of the user managed by this actor instance.
	userID ids.UserID

	// [MAILBOX]
	// Buffered channel that decouples the global dispatcher from individual
	// delivery. Acts as a shock absorber so slow consumer latency never
	// propagates back to C5 or the broker consumer.
	mailbox chan *event.Envelope

	// [SESSIONS]
	// Registry of all active push connections (SSE, websocket) for the
	// user. Allows multiplexing a single event to multiple devices.
	sessions map[ids.ConnectionID]Connector

	// [CONCURRENCY_CONTROL]
	// Fine-grained lock for managing the sessions map.
	// RWMutex is chosen because read-heavy delivery operations outnumber
	// write-heavy registration events.
	mu sync.RWMutex

	// [LIFECYCLE_CONTROL]
	// Signaling channel used to terminate the background goroutine.
	// Ensures no goroutine leaks occur after the user goes offline.
	doneCh chan struct{}

	// [OPTIMIZATION] Atomic timestamp to avoid mutex contention during activity checks
	lastActivityUnix int64

	telemetry Telemetry
	dropped   uint64
}

func NewCell(userID ids.UserID, bufferSize int, telemetry Telemetry) *Cell {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	c := &Cell{
		userID:           userID,
		mailbox:          make(chan *event.Envelope, bufferSize),
		sessions:         make(map[ids.ConnectionID]Connector),
		doneCh:           make(chan struct{}),
		lastActivityUnix: time.Now().Unix(),
		telemetry:        telemetry,
	}
	go c.loop()
	return c
}

// touch updates the last activity timestamp using atomic store
func (c *Cell) touch() {
	atomic.StoreInt64(&c.lastActivityUnix, time.Now().Unix())
}

// IsIdle checks if the cell can be reclaimed based on session count and inactivity
func (c *Cell) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	hasSessions := len(c.sessions) > 0
	c.mu.RUnlock()

	if hasSessions {
		return false
	}

	lastActivity := time.Unix(atomic.LoadInt64(&c.lastActivityUnix), 0)
	return time.Since(lastActivity) > timeout
}

// Push enqueues env on the mailbox. On a full mailbox the oldest buffered
// envelope is dropped to make room — strict FIFO drop-oldest, per spec:
// a lagging cell should keep delivering recent state rather than stall
// behind stale backlog.
func (c *Cell) Push(env *event.Envelope) bool {
	c.touch()
	select {
	case c.mailbox <- env:
		return true
	default:
	}

	select {
	case <-c.mailbox:
		atomic.AddUint64(&c.dropped, 1)
		c.telemetry.ConnectionLagging(c.userID, "", atomic.LoadUint64(&c.dropped))
	default:
	}

	select {
	case c.mailbox <- env:
		return true
	default:
		atomic.AddUint64(&c.dropped, 1)
		return false
	}
}

func (c *Cell) Attach(conn Connector) {
	c.mu.Lock()
	c.sessions[conn.GetID()] = conn
	c.mu.Unlock()
	c.touch()
}

func (c *Cell) Detach(connID ids.ConnectionID) bool {
	c.mu.Lock()
	delete(c.sessions, connID)
	isEmpty := len(c.sessions) == 0
	c.mu.Unlock()
	c.touch()
	return isEmpty
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			// [STRATEGY: BATCH_DRAINING]
			// Once awakened, don't return to the expensive 'select' immediately.
			// Tight loop to drain pending events reduces scheduler overhead.
			c.deliver(ev)

			// Attempt to drain up to 64 events in one go to smooth out bursts.
			// This number is a sweet spot between latency and CPU fairness.
			for range 64 {
				select {
				case nextEv := <-c.mailbox:
					c.deliver(nextEv)
				default:
					// Mailbox empty, go back to wait
					goto wait
				}
			}
		wait:
		}
	}
}

// deliver broadcasts events to all active sessions of the user.
func (c *Cell) deliver(ev *event.Envelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.sessions) == 0 {
		return
	}

	for _, conn := range c.sessions {
		// Strict 250ms window. If a connection is slow, it won't kill the Actor loop.
		conn.Send(ev, time.Millisecond*250)
	}
}

func (c *Cell) Stop() {
	close(c.doneCh)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.sessions {
		conn.Close()
		delete(c.sessions, id)
	}
}
