package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/config"
	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/adapter/pubsub/amqp"
	"github.com/chatfabric/notify-server/internal/adapter/pubsub/nats"
	"github.com/chatfabric/notify-server/internal/service/fanout"
)

// ProvideTransport picks C2's concrete transport by messaging.provider,
// matching the teacher's single-ProvidePubSub constructor shape (the
// teacher's own ProvidePubSub is undefined in this pack — see DESIGN.md —
// so this is authored fresh against that shape) but generalized to two
// real broker SDKs instead of one.
func ProvideTransport(lc fx.Lifecycle, cfg *config.AppConfig, log *slog.Logger) (pubsub.Transport, error) {
	log = log.With("component", "pubsub")
	if !cfg.Messaging.Enabled {
		return nil, fmt.Errorf("messaging.enabled is false: no transport to provide")
	}

	var transport pubsub.Transport
	switch cfg.Messaging.Provider {
	case "amqp":
		t, err := amqp.Connect(cfg.AmqpTransportConfig(), log)
		if err != nil {
			return nil, fmt.Errorf("connect amqp transport: %w", err)
		}
		transport = t
	case "nats", "":
		t, err := nats.Connect(context.Background(), cfg.NatsTransportConfig(), log)
		if err != nil {
			return nil, fmt.Errorf("connect nats transport: %w", err)
		}
		transport = t
	default:
		return nil, fmt.Errorf("unknown messaging.provider %q", cfg.Messaging.Provider)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if c, ok := transport.(interface{ Close() error }); ok {
				return c.Close()
			}
			return nil
		},
	})
	return transport, nil
}

// InvokeFanoutSubscription binds C5's Dispatcher to C2 as a durable
// consumer: every message C2 delivers is handed to
// Dispatcher.HandleMessage, which decodes and signature-checks it. The subscription's Close is
// deferred to OnStop so shutdown drains in the same order the teacher's
// infra/server hooks do (stop accepting new work, then close transports).
func InvokeFanoutSubscription(lc fx.Lifecycle, cfg *config.AppConfig, transport pubsub.Transport, dispatcher *fanout.Dispatcher, log *slog.Logger) {
	log = log.With("component", "fanout.subscription")
	var sub pubsub.Subscription
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s, err := transport.SubscribeDurable(ctx, cfg.ConsumerConfig(), dispatcher.HandleMessage)
			if err != nil {
				return fmt.Errorf("subscribe fanout consumer: %w", err)
			}
			sub = s
			log.Info("fanout consumer subscribed", "stream", cfg.ConsumerConfig().Stream, "durable", cfg.ConsumerConfig().Durable)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if sub == nil {
				return nil
			}
			return sub.Close()
		},
	})
}
