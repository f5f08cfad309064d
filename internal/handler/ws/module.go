package ws

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/session"
)

var Module = fx.Module("ws-handler",
	fx.Provide(
		func(logger *slog.Logger) DeviceFrameHandler {
			return &NopDeviceFrameHandler{Logger: logger}
		},
		func(logger *slog.Logger, auth *session.Authenticator, sessions *session.Controller, frames DeviceFrameHandler, cfg *config.Config) *DeviceHandler {
			return NewDeviceHandler(logger, auth, sessions, frames, cfg.Heartbeat.Timeout())
		},
		func(logger *slog.Logger, auth *session.Authenticator, sessions *session.Controller, cfg *config.Config) *OperatorHandler {
			return NewOperatorHandler(logger, auth, sessions, cfg.Heartbeat.Timeout())
		},
		NewDrainer,
	),
	fx.Invoke(func(lc fx.Lifecycle, d *Drainer) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				d.Drain(ctx)
				return nil
			},
		})
	}),
)
