package ingress

import "go.uber.org/fx"

var Module = fx.Module("ingress",
	fx.Provide(
		New,
		fx.Annotate(func(p *EventPublisher) Publisher { return p }, fx.As(new(Publisher))),
	),
)
