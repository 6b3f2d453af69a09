// Package amqp implements C2's compile-time alternative transport: watermill
// over RabbitMQ (AMQP 0.9.1), selected via messaging.provider: amqp in
// config instead of the default NATS JetStream transport.
//
// Grounded on the teacher's internal/handler/amqp/{bind,router,module}.go —
// the per-node unique-queue naming (so every instance of a fan-out service
// gets its own copy of a broadcast message) and the
// message.Router/NoPublishHandlerFunc registration shape are both kept
// nearly verbatim, adapted from the teacher's ad-hoc *MessageHandler wiring
// (which itself depended on a missing internal/pubsub factory package) onto
// the pubsub.Transport contract so it's swappable with the NATS transport.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/apperr"
)

// Config is the minimal AMQP connection surface spec.md's configuration
// section names for the alternative transport.
type Config struct {
	URI      string
	Exchange string
}

// Transport implements pubsub.Transport over a single shared watermill
// Publisher and one Subscriber per durable consumer.
type Transport struct {
	cfg       Config
	log       *slog.Logger
	publisher message.Publisher
	router    *message.Router
	nodeID    string
}

var _ pubsub.Transport = (*Transport)(nil)

// Connect dials RabbitMQ, builds the shared publisher, and starts an empty
// router — SubscribeDurable adds handlers to it as callers register them.
func Connect(cfg Config, log *slog.Logger) (*Transport, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pubsub.amqp")
	wmLogger := watermill.NewSlogLogger(log)

	amqpCfg := wmamqp.NewDurablePubSubConfig(cfg.URI, wmamqp.GenerateQueueNameTopicNameWithSuffix("notify"))

	pub, err := wmamqp.NewPublisher(amqpCfg, wmLogger)
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "amqp.NewPublisher", err)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "watermill.NewRouter", err)
	}

	nodeID, err := os.Hostname()
	if err != nil || nodeID == "" {
		nodeID = watermill.NewShortUUID()
	}

	t := &Transport{cfg: cfg, log: log, publisher: pub, router: router, nodeID: nodeID}
	go func() {
		if err := router.Run(context.Background()); err != nil {
			log.Error("router stopped", "error", err)
		}
	}()

	return t, nil
}

func (t *Transport) Kind() string { return "amqp" }

func (t *Transport) Health(_ context.Context) error {
	if t.router.IsRunning() {
		return nil
	}
	return apperr.New(apperr.KindUnavailable, "amqp.Health", errors.New("router not running"))
}

func (t *Transport) Publish(_ context.Context, subject string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := t.publisher.Publish(subject, msg); err != nil {
		return apperr.New(apperr.KindPublish, "amqp.Publish", err)
	}
	return nil
}

// SubscribeDurable gives this node its own uniquely-named queue bound to
// cfg.Durable+subject (one per filter subject), so a fan-out exchange
// delivers to every running instance rather than load-balancing across
// them — required for C5, since every node must independently fan out to
// its own locally-connected users.
func (t *Transport) SubscribeDurable(ctx context.Context, cfg pubsub.ConsumerConfig, handler pubsub.Handler) (pubsub.Subscription, error) {
	amqpCfg := wmamqp.NewDurablePubSubConfig(t.cfg.URI, wmamqp.GenerateQueueNameTopicNameWithSuffix(fmt.Sprintf("%s.%s", cfg.Durable, t.nodeID)))
	sub, err := wmamqp.NewSubscriber(amqpCfg, watermill.NewSlogLogger(t.log))
	if err != nil {
		return nil, apperr.New(apperr.KindConnection, "amqp.NewSubscriber", err)
	}

	maxDeliver := cfg.MaxDeliver
	deliveries := newDeliveryTracker()

	for _, subject := range cfg.FilterSubjects {
		handlerName := fmt.Sprintf("%s.%s.%s", cfg.Durable, subject, t.nodeID)
		t.router.AddNoPublisherHandler(handlerName, subject, sub, func(msg *message.Message) error {
			attempt := deliveries.next(msg.UUID)
			if maxDeliver > 0 && attempt > maxDeliver {
				if cfg.DeadLetterSubject != "" {
					dl := message.NewMessage(watermill.NewUUID(), msg.Payload)
					_ = t.publisher.Publish(cfg.DeadLetterSubject, dl)
				}
				deliveries.forget(msg.UUID)
				return nil
			}

			pm := pubsub.Message{
				Subject:         subject,
				Data:            msg.Payload,
				DeliveryAttempt: attempt,
				Ack:             func() error { return nil },
				Nak:             func() error { return nil },
				Term:            func() error { return nil },
			}
			err := handler(ctx, pm)
			if err == nil {
				deliveries.forget(msg.UUID)
			}
			return err
		})
	}

	return &subscription{closeFn: sub.Close}, nil
}

// Close stops the router and publisher. Intended for fx.Lifecycle OnStop.
func (t *Transport) Close() error {
	routerErr := t.router.Close()
	if err := t.publisher.Close(); err != nil && routerErr == nil {
		return err
	}
	return routerErr
}

type subscription struct {
	closeFn func() error
}

func (s *subscription) Close() error { return s.closeFn() }

// deliveryTracker approximates NumDelivered for AMQP, which (unlike
// JetStream) doesn't report a redelivery count on the message itself:
// watermill's router already retries a NACKed message via the broker's
// requeue, so this only needs to count attempts seen by this process
// since last restart — good enough to bound dead-lettering without a
// second round trip to the broker.
type deliveryTracker struct {
	mu   sync.Mutex
	seen map[string]int
}

func newDeliveryTracker() *deliveryTracker {
	return &deliveryTracker{seen: make(map[string]int)}
}

func (d *deliveryTracker) next(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id]++
	return d.seen[id]
}

func (d *deliveryTracker) forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}
