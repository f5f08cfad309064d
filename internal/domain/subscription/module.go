package subscription

import "go.uber.org/fx"

var Module = fx.Module("subscription",
	fx.Provide(NewManager),
)
