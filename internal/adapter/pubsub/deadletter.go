package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

// DeadLetterEnvelope wraps the undeliverable event with the reason it could
// not be delivered, for the backlog collaborator to replay later.
type DeadLetterEnvelope struct {
	Reason string          `json:"reason"`
	Event  *model.BusEvent `json:"event"`
}

// DeadLetterPublisher implements dispatch.DeadLetterSink over the bus.
type DeadLetterPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewDeadLetterPublisher(publisher message.Publisher, topic string) *DeadLetterPublisher {
	return &DeadLetterPublisher{publisher: publisher, topic: topic}
}

func (p *DeadLetterPublisher) PublishDeadLetter(ctx context.Context, ev *model.BusEvent, reason string) error {
	payload, err := json.Marshal(&DeadLetterEnvelope{Reason: reason, Event: ev})
	if err != nil {
		return fmt.Errorf("pubsub: dead-letter marshal: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("reason", reason)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("pubsub: dead-letter publish to %s: %w", p.topic, err)
	}
	return nil
}
