package session

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
	"github.com/visioncast/fleet-gateway/internal/presence"
)

var Module = fx.Module("session",
	fx.Provide(
		NewAuthenticator,
		func(
			logger *slog.Logger,
			cfg *config.Config,
			reg *registry.Registry,
			subs *subscription.Manager,
			store presence.Store,
		) *Controller {
			return NewController(logger, reg, subs, store, cfg.Heartbeat.PresenceTTL())
		},
	),
)
