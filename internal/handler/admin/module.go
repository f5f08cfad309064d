package admin

import "go.uber.org/fx"

var Module = fx.Module("admin-handler",
	fx.Provide(NewHandler),
)
