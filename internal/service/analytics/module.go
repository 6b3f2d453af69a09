package analytics

import (
	"context"

	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/internal/domain/registry"
	"github.com/chatfabric/notify-server/internal/service/fanout"
)

// Module wires C7. A single *Publisher backs three narrower interfaces —
// analytics.Recorder (push's per-connection events), registry.Telemetry
// (hub slow-reader signal), and fanout.Telemetry (dispatch outcome) — since
// Recorder's method set is a superset of both. fx.Annotate binds each
// separately so C4/C5/C6 keep depending only on their own narrow port.
var Module = fx.Module("analytics",
	fx.Provide(
		New,
		fx.Annotate(
			func(p *Publisher) Recorder { return p },
			fx.As(new(Recorder)),
		),
		fx.Annotate(
			func(p *Publisher) registry.Telemetry { return p },
			fx.As(new(registry.Telemetry)),
		),
		fx.Annotate(
			func(p *Publisher) fanout.Telemetry { return p },
			fx.As(new(fanout.Telemetry)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Publisher) {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
			p.Close()
			return nil
		}})
	}),
)
