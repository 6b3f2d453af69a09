// Package nats implements C2's primary transport: NATS JetStream, with a
// durable pull consumer per subscription. Grounded on the connection
// lifecycle/retry shape of
// _examples/adred-codev-ws_poc/go-server/pkg/nats/client.go (connect/
// disconnect/reconnect handlers, structured logging around every call),
// adapted from core NATS pub/sub to JetStream's stream+durable-consumer
// model because spec.md §6 requires at-least-once redelivery semantics
// core NATS does not provide.
package nats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/apperr"
)

// Config mirrors the connection tuning the example client exposes, plus
// the JetStream-specific stream/retention knobs spec.md §6 names.
type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration

	StreamName     string
	StreamSubjects []string
	MaxAge         time.Duration
	MaxBytes       int64
}

func (c Config) withDefaults() Config {
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1 // unlimited
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxPingsOut == 0 {
		c.MaxPingsOut = 3
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.StreamName == "" {
		c.StreamName = "NOTIFY_EVENTS"
	}
	if c.MaxAge == 0 {
		c.MaxAge = 24 * time.Hour
	}
	return c
}

// Transport implements pubsub.Transport over JetStream.
type Transport struct {
	cfg  Config
	log  *slog.Logger
	conn *nats.Conn
	js   jetstream.JetStream
}

var _ pubsub.Transport = (*Transport)(nil)

// Connect dials NATS and ensures the stream described by cfg exists.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*Transport, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pubsub.nats")

	t := &Transport{cfg: cfg, log: log}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.PingInterval(cfg.PingInterval),
		nats.ConnectHandler(func(c *nats.Conn) {
			log.Info("connected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("async error", "subject", subjectOf(sub), "error", err)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "nats.Connect", err)
	}
	t.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, apperr.New(apperr.KindConnection, "jetstream.New", err)
	}
	t.js = js

	subjects := cfg.StreamSubjects
	if len(subjects) == 0 {
		subjects = []string{cfg.StreamName + ".>"}
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: subjects,
		MaxAge:   cfg.MaxAge,
		MaxBytes: cfg.MaxBytes,
		Storage:  jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		conn.Close()
		return nil, apperr.New(apperr.KindConnection, "ensureStream", err)
	}

	return t, nil
}

func subjectOf(sub *nats.Subscription) string {
	if sub == nil {
		return ""
	}
	return sub.Subject
}

// Kind identifies this transport for logging/metrics labels.
func (t *Transport) Kind() string { return "nats" }

// Health reports whether the underlying connection is up.
func (t *Transport) Health(_ context.Context) error {
	if t.conn == nil || !t.conn.IsConnected() {
		return apperr.New(apperr.KindUnavailable, "nats.Health", errors.New("not connected"))
	}
	return nil
}

// Publish appends a message onto the stream and waits for the broker's
// ack, matching at-least-once delivery.
func (t *Transport) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := t.js.Publish(ctx, subject, payload)
	if err != nil {
		return classifyPublishErr(err)
	}
	return nil
}

func classifyPublishErr(err error) error {
	switch {
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrNoServers):
		return apperr.New(apperr.KindConnection, "nats.Publish", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return apperr.New(apperr.KindTimeout, "nats.Publish", err)
	default:
		return apperr.New(apperr.KindPublish, "nats.Publish", err)
	}
}

// SubscribeDurable ensures a durable pull consumer exists for cfg and runs
// a Fetch-batch loop on a background goroutine, dispatching each delivered
// message to handler. Exceeding MaxDeliver dead-letters the message (if
// cfg.DeadLetterSubject is set) and terminates it rather than leaving it to
// redeliver forever.
func (t *Transport) SubscribeDurable(ctx context.Context, cfg pubsub.ConsumerConfig, handler pubsub.Handler) (pubsub.Subscription, error) {
	stream, err := t.js.Stream(ctx, firstNonEmpty(cfg.Stream, t.cfg.StreamName))
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "nats.Stream", err)
	}

	maxDeliver := orDefaultInt(cfg.MaxDeliver, 5)
	consumerCfg := jetstream.ConsumerConfig{
		Durable:   cfg.Durable,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   orDefault(cfg.AckWait, 30*time.Second),
		// One broker delivery beyond maxDeliver, so handleOne sees that
		// attempt and dead-letters it instead of the broker dropping it.
		MaxDeliver:     maxDeliver + 1,
		FilterSubjects: cfg.FilterSubjects,
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerCfg)
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "nats.CreateOrUpdateConsumer", err)
	}

	maxBatch := orDefaultInt(cfg.MaxBatch, 32)
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}

	go t.pullLoop(subCtx, consumer, maxBatch, maxDeliver, cfg.DeadLetterSubject, handler)

	return sub, nil
}

func (t *Transport) pullLoop(ctx context.Context, consumer jetstream.Consumer, maxBatch, maxDeliver int, deadLetterSubject string, handler pubsub.Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := consumer.Fetch(maxBatch, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("fetch failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for msg := range batch.Messages() {
			t.handleOne(ctx, msg, maxDeliver, deadLetterSubject, handler)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.log.Warn("batch error", "error", err)
		}
	}
}

func (t *Transport) handleOne(ctx context.Context, msg jetstream.Msg, maxDeliver int, deadLetterSubject string, handler pubsub.Handler) {
	meta, _ := msg.Metadata()
	attempt := 1
	if meta != nil {
		attempt = int(meta.NumDelivered)
	}

	if maxDeliver > 0 && attempt > maxDeliver {
		if deadLetterSubject != "" {
			if _, err := t.js.Publish(ctx, deadLetterSubject, msg.Data()); err != nil {
				t.log.Error("dead-letter publish failed", "error", err)
			}
		}
		_ = msg.Term()
		return
	}

	pm := pubsub.Message{
		Subject:         msg.Subject(),
		Data:            msg.Data(),
		DeliveryAttempt: attempt,
		Ack:             func() error { return msg.Ack() },
		Nak:             func() error { return msg.Nak() },
		Term:            func() error { return msg.Term() },
	}

	if err := handler(ctx, pm); err != nil {
		t.log.Warn("handler failed, nak", "subject", pm.Subject, "attempt", attempt, "error", err)
		_ = msg.Nak()
		return
	}
	if err := msg.Ack(); err != nil {
		t.log.Warn("ack failed", "subject", pm.Subject, "error", err)
	}
}

// Close drains the connection. Intended for fx.Lifecycle OnStop.
func (t *Transport) Close() error {
	if t.conn != nil {
		return t.conn.Drain()
	}
	return nil
}

type subscription struct {
	cancel context.CancelFunc
}

func (s *subscription) Close() error {
	s.cancel()
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}

func orDefaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
