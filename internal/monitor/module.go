package monitor

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/session"
)

var Module = fx.Module("monitor",
	fx.Provide(
		func(logger *slog.Logger, cfg *config.Config, reg *registry.Registry, sessions *session.Controller) *Monitor {
			return New(logger, reg, sessions, cfg.Heartbeat.SweepInterval(), cfg.Heartbeat.Timeout())
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, m *Monitor) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				m.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				m.Stop()
				return nil
			},
		})
	}),
)
