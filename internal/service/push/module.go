package push

import "go.uber.org/fx"

// Module wires C6. cmd provides the *TokenVerifier (NewTokenVerifier over
// config's AuthPublicKeyPEM) and the Config (config's PushConfig); zero
// Config fields fall back to withDefaults inside New*Handler.
var Module = fx.Module("push",
	fx.Provide(
		NewSSEHandler,
		NewWSHandler,
	),
)
