// Package amqp consumes business events from the platform bus and feeds
// them into the dispatcher.
package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	amqptransport "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/dispatch"
)

type EventHandler struct {
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
}

func NewEventHandler(logger *slog.Logger, dispatcher *dispatch.Dispatcher) *EventHandler {
	return &EventHandler{logger: logger, dispatcher: dispatcher}
}

func NewRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// RegisterHandlers binds the event consumer onto the router with the
// standard middleware chain. One bad event must never block the queue:
// decode failures go to the poison topic, business failures retry with
// backoff and then poison out.
func RegisterHandlers(
	cfg *config.Config,
	router *message.Router,
	subscriber *amqptransport.Subscriber,
	publisher message.Publisher,
	h *EventHandler,
) error {
	poison, err := middleware.PoisonQueue(publisher, cfg.AMQP.DeadLetterTopic+".poison")
	if err != nil {
		return fmt.Errorf("amqp: poison queue setup: %w", err)
	}

	router.AddNoPublisherHandler(
		"on_bus_event",
		cfg.AMQP.EventsTopic,
		subscriber,
		Bind(h, h.OnBusEvent),
	).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(h.logger),
		NewRetryMiddleware().Middleware,
		poison,
		middleware.Timeout(30*time.Second),
	)

	h.logger.Info("event bus consumer registered", "topic", cfg.AMQP.EventsTopic)
	return nil
}
