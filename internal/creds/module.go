package creds

import "go.uber.org/fx"

var Module = fx.Module("creds",
	fx.Provide(
		NewRedisLookup,
		fx.Annotate(
			func(l *RedisLookup) Lookup { return l },
			fx.As(new(Lookup)),
		),
	),
)
