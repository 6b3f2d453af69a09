// Package ingress implements C8: the producer-side counterpart of the
// fabric. Write handlers (send message, create chat, ...) call Publish
// once their domain service has committed the write; this package stamps,
// signs, and hands the envelope to C2, retrying internally without ever
// rolling back the caller's already-committed persistence.
//
// Grounded on spec.md §4.8 directly; there is no original_source
// equivalent module (fechatter_server publishes ad hoc from its handlers),
// so the retry/backoff shape is carried over from
// internal/service/analytics.Publisher.publishWithRetry rather than
// invented fresh.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/apperr"
	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Publisher is the narrow interface write handlers depend on, so handler
// packages never import the concrete ingress type or its pubsub
// dependency.
type Publisher interface {
	Publish(ctx context.Context, workspaceID ids.WorkspaceID, chatID ids.ChatID, actorUserID ids.UserID, payload event.Payload) error
}

// Config mirrors the teacher's retry-tunable shape used elsewhere in this
// fabric (internal/service/analytics.Config).
type Config struct {
	SubjectPrefix   string
	SigningKey      []byte
	MaxPublishRetry int
	RetryBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "notify"
	}
	if c.MaxPublishRetry <= 0 {
		c.MaxPublishRetry = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	return c
}

// EventPublisher implements Publisher over a pubsub.Transport.
type EventPublisher struct {
	cfg       Config
	transport pubsub.Transport
	log       *slog.Logger
}

var _ Publisher = (*EventPublisher)(nil)

func New(cfg Config, transport pubsub.Transport, log *slog.Logger) *EventPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &EventPublisher{
		cfg:       cfg.withDefaults(),
		transport: transport,
		log:       log.With("component", "service.ingress"),
	}
}

// Publish builds, signs, and publishes an envelope for payload. The
// publish-with-retry happens synchronously on the calling goroutine —
// handlers are expected to call this after their own persistence
// transaction has already committed (spec.md §4.8: "on success of the
// persistence transaction"), so there is no caller-visible rollback to
// coordinate; retries only smooth over a transient broker blip before the
// handler's HTTP response returns. Persistence is never unwound on a
// publish failure after exhausting retries — spec.md §4.8 assigns that
// reconciliation to an out-of-scope "consistency sweep" collaborator.
func (p *EventPublisher) Publish(ctx context.Context, workspaceID ids.WorkspaceID, chatID ids.ChatID, actorUserID ids.UserID, payload event.Payload) error {
	env := event.NewEnvelope(workspaceID, chatID, actorUserID, payload)

	if len(p.cfg.SigningKey) > 0 {
		if err := event.Sign(env, p.cfg.SigningKey); err != nil {
			return fmt.Errorf("ingress: sign event %s: %w", env.EventID, err)
		}
	}

	data, err := event.Encode(env)
	if err != nil {
		return fmt.Errorf("ingress: encode event %s: %w", env.EventID, err)
	}

	subject := env.RoutingSubject(p.cfg.SubjectPrefix)
	return p.publishWithRetry(ctx, env.EventID, subject, data)
}

func (p *EventPublisher) publishWithRetry(ctx context.Context, eventID ids.EventID, subject string, data []byte) error {
	backoff := p.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxPublishRetry; attempt++ {
		err := p.transport.Publish(ctx, subject, data)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperr.Retryable(err) {
			break
		}
		if attempt == p.cfg.MaxPublishRetry {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	p.log.Error("event publish failed after retries", "event_id", eventID, "subject", subject, "error", lastErr)
	return fmt.Errorf("ingress: publish event %s: %w", eventID, lastErr)
}
