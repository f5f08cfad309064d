package registry

import (
	"go.uber.org/fx"

	appconfig "github.com/visioncast/fleet-gateway/config"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *appconfig.Config) *Registry {
			return New(
				WithShardCount(cfg.Hub.ShardCount),
				WithMaxConnections(cfg.Hub.MaxConnections),
			)
		},
	),
)
