package cmd

import (
	"go.uber.org/fx"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/adapter/pubsub"
	"github.com/visioncast/fleet-gateway/internal/creds"
	"github.com/visioncast/fleet-gateway/internal/dispatch"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
	"github.com/visioncast/fleet-gateway/internal/handler/admin"
	amqphandler "github.com/visioncast/fleet-gateway/internal/handler/amqp"
	wshandler "github.com/visioncast/fleet-gateway/internal/handler/ws"
	"github.com/visioncast/fleet-gateway/internal/monitor"
	"github.com/visioncast/fleet-gateway/internal/presence"
	"github.com/visioncast/fleet-gateway/internal/server"
	"github.com/visioncast/fleet-gateway/internal/session"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideRedis,
		),
		registry.Module,
		subscription.Module,
		presence.Module,
		creds.Module,
		session.Module,
		dispatch.Module,
		pubsub.Module,
		monitor.Module,
		wshandler.Module,
		amqphandler.Module,
		admin.Module,
		server.Module,
	)
}
