// Package analytics implements C7: a second, independent publisher for
// connection/delivery telemetry, so a burst of analytics records never
// back-pressures the main fan-out path.
//
// Grounded on _examples/original_source/notify_server/src/analytics/publisher.rs:
// the non-blocking submit + background batcher + "disabled by config means
// every publish call is a no-op" shape is carried over verbatim in spirit,
// adapted from an unbounded mpsc channel (Rust can afford to let analytics
// grow unboundedly in memory; this implementation can't) to a bounded,
// drop-oldest channel matching C4's own backpressure policy (§4.4/§4.7).
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/apperr"
	domainanalytics "github.com/chatfabric/notify-server/internal/domain/analytics"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Recorder is the narrow telemetry surface C4/C5/C6 depend on, so those
// packages never import this one's concrete Publisher or its pubsub
// dependency.
type Recorder interface {
	UserConnected(userID ids.UserID, connID ids.ConnectionID, userAgent string)
	UserDisconnected(userID ids.UserID, connID ids.ConnectionID, durationMs int64)
	NotificationReceived(userID ids.UserID, wasDelivered bool, deliveryDurationMs *int64)
	ConnectionLagging(userID ids.UserID, connID ids.ConnectionID, droppedCount uint64)
	FanoutCompleted(eventID ids.EventID, delivered, dropped uint32, noTarget bool)
}

// Config mirrors publisher.rs's AnalyticsConfig, plus the queue capacity
// and retry ceiling spec.md §4.7 adds on top of it.
type Config struct {
	Enabled         bool
	Subject         string
	BatchSize       int
	FlushInterval   time.Duration
	QueueCapacity   int
	MaxPublishRetry int
	RetryBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Subject == "" {
		c.Subject = "notify.analytics.events"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
	if c.MaxPublishRetry <= 0 {
		c.MaxPublishRetry = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	return c
}

// Publisher implements Recorder over a pubsub.Transport. When cfg.Enabled
// is false every method is a no-op, matching the source's "disabled
// analytics publisher" shape without allocating a channel or goroutine.
type Publisher struct {
	cfg       Config
	log       *slog.Logger
	transport pubsub.Transport

	submit   chan *domainanalytics.Record
	dropped  atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ Recorder = (*Publisher)(nil)

// New builds a Publisher. A disabled config returns a valid zero-cost
// no-op Recorder rather than requiring callers to branch on cfg.Enabled
// themselves.
func New(cfg Config, transport pubsub.Transport, log *slog.Logger) *Publisher {
	if !cfg.Enabled {
		return &Publisher{cfg: cfg}
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &Publisher{
		cfg:       cfg,
		log:       log.With("component", "service.analytics"),
		transport: transport,
		submit:    make(chan *domainanalytics.Record, cfg.QueueCapacity),
		stopCh:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// DroppedCount reports how many records were discarded by the drop-oldest
// overflow policy since startup.
func (p *Publisher) DroppedCount() uint64 { return p.dropped.Load() }

func (p *Publisher) UserConnected(userID ids.UserID, connID ids.ConnectionID, userAgent string) {
	p.push(domainanalytics.NewRecord(&domainanalytics.UserConnectedPayload{
		UserID: userID, ConnectionID: connID, UserAgent: userAgent,
	}))
}

func (p *Publisher) UserDisconnected(userID ids.UserID, connID ids.ConnectionID, durationMs int64) {
	p.push(domainanalytics.NewRecord(&domainanalytics.UserDisconnectedPayload{
		UserID: userID, ConnectionID: connID, DurationMs: durationMs,
	}))
}

func (p *Publisher) NotificationReceived(userID ids.UserID, wasDelivered bool, deliveryDurationMs *int64) {
	payload := &domainanalytics.NotificationReceivedPayload{UserID: userID, WasDelivered: wasDelivered}
	if deliveryDurationMs != nil {
		payload.HasDeliveryDuration = true
		payload.DeliveryDurationMs = *deliveryDurationMs
	}
	p.push(domainanalytics.NewRecord(payload))
}

func (p *Publisher) ConnectionLagging(userID ids.UserID, connID ids.ConnectionID, droppedCount uint64) {
	p.push(domainanalytics.NewRecord(&domainanalytics.ConnectionLaggingPayload{
		UserID: userID, ConnectionID: connID, DroppedCount: droppedCount,
	}))
}

func (p *Publisher) FanoutCompleted(eventID ids.EventID, delivered, dropped uint32, noTarget bool) {
	p.push(domainanalytics.NewRecord(&domainanalytics.FanoutCompletedPayload{
		EventID: eventID, Delivered: delivered, Dropped: dropped, NoTarget: noTarget,
	}))
}

// push is the non-blocking submit spec.md §4.7 requires: on a full queue,
// one buffered record is popped and counted as dropped to make room for
// the new one, the same drop-oldest policy C4 applies to connection
// buffers.
func (p *Publisher) push(rec *domainanalytics.Record) {
	if p.submit == nil {
		return
	}
	select {
	case p.submit <- rec:
		return
	default:
	}
	select {
	case <-p.submit:
		p.dropped.Add(1)
	default:
	}
	select {
	case p.submit <- rec:
	default:
		p.dropped.Add(1)
	}
}

// Close stops the batcher, flushing whatever is buffered. Intended for
// fx.Lifecycle OnStop.
func (p *Publisher) Close() {
	if p.submit == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]*domainanalytics.Record, 0, p.cfg.BatchSize)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		for _, rec := range buf {
			p.publishWithRetry(rec)
		}
		buf = buf[:0]
	}

	for {
		select {
		case rec := <-p.submit:
			buf = append(buf, rec)
			if len(buf) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.stopCh:
			for drained := false; !drained; {
				select {
				case rec := <-p.submit:
					buf = append(buf, rec)
				default:
					drained = true
				}
			}
			flush()
			return
		}
	}
}

// publishWithRetry publishes one record, retrying transient transport
// failures (apperr.Retryable) up to MaxPublishRetry times, doubling the
// delay after each attempt, before dropping it and logging — analytics must never stall the
// batcher, let alone the fan-out path upstream of it.
func (p *Publisher) publishWithRetry(rec *domainanalytics.Record) {
	payload := domainanalytics.Encode(rec)
	backoff := p.cfg.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := p.transport.Publish(context.Background(), p.cfg.Subject, payload)
		if err == nil {
			return
		}
		if attempt >= p.cfg.MaxPublishRetry || !apperr.Retryable(err) {
			p.log.Warn("analytics record dropped after publish failure",
				"kind", rec.Kind, "attempt", attempt, "error", err)
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}
