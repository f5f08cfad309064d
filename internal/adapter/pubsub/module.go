package pubsub

import (
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/dispatch"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		NewSubscriber,
		NewPublisher,
		fx.Annotate(
			func(p *amqp.Publisher) message.Publisher { return p },
			fx.As(new(message.Publisher)),
		),
		func(cfg *config.Config, pub message.Publisher) *DeadLetterPublisher {
			return NewDeadLetterPublisher(pub, cfg.AMQP.DeadLetterTopic)
		},
		fx.Annotate(
			func(p *DeadLetterPublisher) dispatch.DeadLetterSink { return p },
			fx.As(new(dispatch.DeadLetterSink)),
		),
	),
)
