package static

import (
	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/internal/domain/membership"
)

// Module wires the dev/local InstanceStore from config.StaticMembershipSeed.
// A deployment with a real relational store swaps this out with
// fx.Replace(fx.Annotate(newProdStore, fx.As(new(membership.InstanceStore))))
// rather than modifying this package.
var Module = fx.Module("membership.static",
	fx.Provide(
		fx.Annotate(
			New,
			fx.As(new(membership.InstanceStore)),
		),
	),
)
