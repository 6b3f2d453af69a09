// Package pubsub defines C2's transport-agnostic contract. Two concrete
// transports implement it — NATS JetStream (primary) and watermill/AMQP
// (compile-time alternative) — so the rest of the fabric never imports a
// broker SDK directly.
package pubsub

import (
	"context"
	"time"
)

// ConsumerConfig describes a durable pull consumer, mapping 1:1 onto
// spec.md §6's stream/consumer configuration surface.
type ConsumerConfig struct {
	Stream            string
	Durable           string
	FilterSubjects    []string
	AckWait           time.Duration
	MaxDeliver        int
	MaxBatch          int
	IdleHeartbeat     time.Duration
	DeadLetterSubject string
}

// Message is one delivered, not-yet-acked unit of work.
type Message struct {
	Subject         string
	Data            []byte
	DeliveryAttempt int
	Ack             func() error
	Nak             func() error
	Term            func() error // give up permanently, e.g. after dead-lettering
}

// Handler processes one message. Returning an error naks it (triggering
// redelivery, subject to MaxDeliver); returning nil acks it.
type Handler func(ctx context.Context, msg Message) error

// Subscription is a live durable-consumer loop; Close stops it.
type Subscription interface {
	Close() error
}

// Transport is the shared contract C2 exposes to the rest of the fabric.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	SubscribeDurable(ctx context.Context, cfg ConsumerConfig, handler Handler) (Subscription, error)
	Health(ctx context.Context) error
	Kind() string
}
