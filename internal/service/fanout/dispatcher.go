// Package fanout implements C5: the only component in the fabric allowed
// to observe both C3 (membership) and C4 (connection registry), converting
// one decoded envelope into N per-user enqueues.
//
// Grounded on spec.md §4.5's literal five-step algorithm; the actor-mailbox
// enqueue it drives is internal/domain/registry.Hub.Broadcast, adapted from
// the teacher's registry package (see that package's own grounding entry).
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/apperr"
	"github.com/chatfabric/notify-server/internal/domain/event"
	"github.com/chatfabric/notify-server/internal/domain/ids"
)

// Membership is the slice of C3's API this dispatcher needs.
type Membership interface {
	MembersOf(ctx context.Context, chatID ids.ChatID) ([]ids.UserID, error)
	WorkspaceUsers(ctx context.Context, workspaceID ids.WorkspaceID) ([]ids.UserID, error)
}

// Registry is the slice of C4's API this dispatcher needs: a single
// non-blocking enqueue per target user.
type Registry interface {
	Broadcast(userID ids.UserID, env *event.Envelope) bool
}

// Telemetry is the slice of C7's API this dispatcher needs.
type Telemetry interface {
	FanoutCompleted(eventID ids.EventID, delivered, dropped uint32, noTarget bool)
}

// SigningKey is the HMAC secret envelopes are verified against. A distinct
// type (rather than a bare []byte) so fx's container can resolve it
// unambiguously from config.
type SigningKey []byte

// Dispatcher implements C5.
type Dispatcher struct {
	members    Membership
	registry   Registry
	telemetry  Telemetry
	log        *slog.Logger
	signingKey SigningKey
}

// New builds a Dispatcher. signingKey may be nil/empty, in which case
// incoming envelopes are dispatched unverified — set only when
// security.hmac_secret is configured, matching the teacher's
// optional-signing posture in non-production environments.
func New(members Membership, registry Registry, telemetry Telemetry, log *slog.Logger, signingKey SigningKey) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		members:    members,
		registry:   registry,
		telemetry:  telemetry,
		log:        log.With("component", "service.fanout"),
		signingKey: signingKey,
	}
}

// HandleMessage adapts Dispatch to a pubsub.Handler, so it can be wired
// directly as the callback passed to Transport.SubscribeDurable. On a
// signature mismatch or decode failure it naks the first delivery and acks
// (drops) the redelivery, logging each at warn level, so a malformed
// message cannot poison-pill the consumer forever. No drop counter is kept.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg pubsub.Message) error {
	env, err := event.Decode(msg.Data)
	if err != nil {
		d.log.Warn("envelope decode failed", "attempt", msg.DeliveryAttempt, "error", err)
		return d.dropOrRetry(msg, err)
	}

	if len(d.signingKey) > 0 {
		ok, err := event.Verify(env, d.signingKey)
		if err != nil || !ok {
			d.log.Warn("envelope signature rejected", "event_id", env.EventID, "attempt", msg.DeliveryAttempt)
			return d.dropOrRetry(msg, apperr.New(apperr.KindSignature, "fanout.HandleMessage", err))
		}
	}

	return d.Dispatch(ctx, env)
}

func (d *Dispatcher) dropOrRetry(msg pubsub.Message, err error) error {
	if msg.DeliveryAttempt > 1 {
		return nil // ack: give up after one redelivery, per spec.md §4.5 failure semantics
	}
	return err // nak once
}

// Dispatch runs the five-step fan-out algorithm. A non-nil error means the
// routing-set lookup itself failed (e.g. C3's store fallback errored) and
// the caller should nak/redeliver; zero matched targets is not an error —
// it is reported via the no_target telemetry flag and the envelope is
// still acked (spec.md §4 failure semantics: "routing finds zero members
// ... emit a diagnostic record and ack").
func (d *Dispatcher) Dispatch(ctx context.Context, env *event.Envelope) error {
	targets, err := d.routingSet(ctx, env)
	if err != nil {
		return fmt.Errorf("fanout: routing set for event %s: %w", env.EventID, err)
	}

	// Step 2: the envelope is already a single shared *event.Envelope —
	// Go's garbage collector is the reference count, so there is nothing
	// further to do to share it across every Broadcast call below.
	var delivered, dropped uint32
	for _, userID := range targets {
		if d.registry.Broadcast(userID, env) {
			delivered++
		} else {
			dropped++
		}
	}

	noTarget := len(targets) == 0
	d.telemetry.FanoutCompleted(env.EventID, delivered, dropped, noTarget)

	return nil
}

// routingSet implements step 1: pick the routing-set strategy for env.Kind.
func (d *Dispatcher) routingSet(ctx context.Context, env *event.Envelope) ([]ids.UserID, error) {
	if env.Kind.RoutingAuthority() == event.RouteBySnapshot {
		p, ok := env.Payload.(*event.MessageCreatedPayload)
		if !ok {
			return nil, fmt.Errorf("kind %s declares snapshot routing but payload is %T", env.Kind, env.Payload)
		}
		return p.MembersSnapshot, nil
	}

	switch env.Kind.Scope() {
	case event.UserScope:
		userID, ok := singleTargetOf(env.Payload)
		if !ok {
			return nil, fmt.Errorf("kind %s is user-scoped but payload %T carries no target user", env.Kind, env.Payload)
		}
		return []ids.UserID{userID}, nil
	case event.WorkspaceScope:
		return d.members.WorkspaceUsers(ctx, env.WorkspaceID)
	default: // event.ChatScope
		return d.members.MembersOf(ctx, env.ChatID)
	}
}

// singleTargetOf extracts the one addressed user from a UserScope payload.
// DuplicateMessageAttempted is currently the only UserScope kind (see
// event.Kind.Scope).
func singleTargetOf(p event.Payload) (ids.UserID, bool) {
	switch v := p.(type) {
	case *event.DuplicateMessageAttemptedPayload:
		return v.UserID, true
	default:
		return 0, false
	}
}
