package registry

import (
	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/internal/service/fanout"
)

// Module wires C4. A single *Hub backs both Hubber (push's connect/register
// surface) and fanout.Registry (C5's single-enqueue surface) — two narrow
// interfaces over the same actor-mailbox hub.
var Module = fx.Module("registry",
	fx.Provide(
		NewHub,
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
		fx.Annotate(
			func(h *Hub) fanout.Registry { return h },
			fx.As(new(fanout.Registry)),
		),
	),
)
