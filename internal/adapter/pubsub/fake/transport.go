// Package fake provides an in-memory pubsub.Transport for unit tests that
// need to exercise C8 (publish) and C2/C5 (consume) wiring without a live
// NATS or RabbitMQ broker.
package fake

import (
	"context"
	"sync"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
)

var _ pubsub.Transport = (*Transport)(nil)

// Transport is a synchronous, in-process Transport: Publish immediately
// invokes every handler subscribed on the matching subject.
type Transport struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	published []Published
}

type handlerEntry struct {
	cfg string // durable name, for inspection in tests
	fn  func(ctx context.Context, subject string, data []byte) error
}

// Published records one call to Publish, for test assertions.
type Published struct {
	Subject string
	Data    []byte
}

func New() *Transport {
	return &Transport{handlers: make(map[string][]handlerEntry)}
}

func (t *Transport) Kind() string { return "fake" }

func (t *Transport) Health(_ context.Context) error { return nil }

func (t *Transport) Publish(ctx context.Context, subject string, payload []byte) error {
	t.mu.Lock()
	t.published = append(t.published, Published{Subject: subject, Data: payload})
	handlers := append([]handlerEntry(nil), t.handlers[subject]...)
	t.mu.Unlock()

	for _, h := range handlers {
		if err := h.fn(ctx, subject, payload); err != nil {
			return err
		}
	}
	return nil
}

// PublishedTo returns every payload published to subject so far, for
// assertions.
func (t *Transport) PublishedTo(subject string) [][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out [][]byte
	for _, p := range t.published {
		if p.Subject == subject {
			out = append(out, p.Data)
		}
	}
	return out
}

type subscription struct {
	stop func()
}

func (s *subscription) Close() error {
	s.stop()
	return nil
}

// SubscribeDurable registers handler against every filter subject in cfg.
// There is no redelivery simulation: a handler error is returned from the
// Publish call that triggered it, and the message is not delivered again,
// since the fake transport models "happy path broker" rather than broker
// failure semantics.
func (t *Transport) SubscribeDurable(_ context.Context, cfg pubsub.ConsumerConfig, handler pubsub.Handler) (pubsub.Subscription, error) {
	entry := handlerEntry{
		cfg: cfg.Durable,
		fn: func(ctx context.Context, subject string, data []byte) error {
			return handler(ctx, pubsub.Message{Subject: subject, Data: data, DeliveryAttempt: 1, Ack: func() error { return nil }, Nak: func() error { return nil }, Term: func() error { return nil }})
		},
	}

	t.mu.Lock()
	for _, subj := range cfg.FilterSubjects {
		t.handlers[subj] = append(t.handlers[subj], entry)
	}
	t.mu.Unlock()

	return &subscription{stop: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, subj := range cfg.FilterSubjects {
			filtered := t.handlers[subj][:0]
			for _, h := range t.handlers[subj] {
				if h.cfg != cfg.Durable {
					filtered = append(filtered, h)
				}
			}
			t.handlers[subj] = filtered
		}
	}}, nil
}
