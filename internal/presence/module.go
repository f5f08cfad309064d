package presence

import "go.uber.org/fx"

var Module = fx.Module("presence",
	fx.Provide(
		NewRedisStore,
		fx.Annotate(
			func(s *RedisStore) Store { return s },
			fx.As(new(Store)),
		),
	),
)
