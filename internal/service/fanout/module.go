package fanout

import "go.uber.org/fx"

// Module wires C5. The SigningKey comes from config (cmd provides
// AppConfig.SigningKey): with security.verify_signatures off that key is
// nil and New dispatches envelopes unverified. Nothing here defaults it, so
// an app that provides no SigningKey at all fails to build.
var Module = fx.Module("fanout",
	fx.Provide(New),
)
