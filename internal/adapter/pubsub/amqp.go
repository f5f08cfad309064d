// Package pubsub wires the gateway onto the platform event bus through
// watermill's AMQP transport.
package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"

	"github.com/visioncast/fleet-gateway/config"
)

// consumerGroup keeps every gateway node on its own queue so each node sees
// the full event stream and applies its own locality filter.
const consumerGroup = "fleet-gateway"

func NewSubscriber(cfg *config.Config, logger watermill.LoggerAdapter) (*amqp.Subscriber, error) {
	amqpCfg := amqp.NewDurablePubSubConfig(
		cfg.AMQP.URL,
		amqp.GenerateQueueNameTopicNameWithSuffix(consumerGroup+"."+watermill.NewShortUUID()),
	)
	sub, err := amqp.NewSubscriber(amqpCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: subscriber: %w", err)
	}
	return sub, nil
}

func NewPublisher(cfg *config.Config, logger watermill.LoggerAdapter) (*amqp.Publisher, error) {
	amqpCfg := amqp.NewDurablePubSubConfig(cfg.AMQP.URL, nil)
	pub, err := amqp.NewPublisher(amqpCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: publisher: %w", err)
	}
	return pub, nil
}
