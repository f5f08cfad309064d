package amqp

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

// DomainHandler is the business signature bridged onto the bus.
type DomainHandler func(ctx context.Context, ev *model.BusEvent) error

// Bind connects watermill to domain logic, handling panic recovery and
// poison-pill protection. ACK/NACK policy: malformed payloads are terminal
// (ACK), business failures propagate to the retry middleware (NACK).
func Bind(h *EventHandler, fn DomainHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic recovered in event handler",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID,
				)
			}
		}()

		ev := &model.BusEvent{}
		if err := json.Unmarshal(msg.Payload, ev); err != nil {
			h.logger.Error("event decode failed", "err", err, "msg_id", msg.UUID)
			return nil
		}

		return fn(msg.Context(), ev)
	}
}

// OnBusEvent hands the decoded event to the dispatcher. Partial delivery is
// success; only infrastructure failures (dead-letter publish) NACK for a
// retry.
func (h *EventHandler) OnBusEvent(ctx context.Context, ev *model.BusEvent) error {
	result, err := h.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		return err
	}

	h.logger.Debug("event dispatched",
		"event_type", ev.EventType,
		"target_kind", ev.TargetKind.String(),
		"message_id", result.MessageID,
		"resolved", result.Resolved,
		"delivered", result.Delivered,
		"failed", result.Failed,
	)
	return nil
}
