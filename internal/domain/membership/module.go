package membership

import (
	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/internal/service/fanout"
)

// Module wires C3's membership Index. New runs with its own negative-cache
// and breaker defaults: cmd supplies no Options, so the configured
// membership.negative_cache_size is not applied to the Index.
var Module = fx.Module("membership",
	fx.Provide(
		New,
		fx.Annotate(
			func(ix *Index) fanout.Membership { return ix },
			fx.As(new(fanout.Membership)),
		),
	),
)
