package amqp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visioncast/fleet-gateway/internal/dispatch"
	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
)

type nopDeadLetter struct{ published int }

func (n *nopDeadLetter) PublishDeadLetter(_ context.Context, _ *model.BusEvent, _ string) error {
	n.published++
	return nil
}

func newTestHandler(t *testing.T) (*EventHandler, *registry.Registry, *nopDeadLetter) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(registry.WithShardCount(4), registry.WithMaxConnections(10))
	dl := &nopDeadLetter{}
	d := dispatch.NewDispatcher(logger, reg, subscription.NewManager(), dl)
	return NewEventHandler(logger, d), reg, dl
}

func TestBindMalformedPayloadIsAcked(t *testing.T) {
	h, _, _ := newTestHandler(t)

	fn := Bind(h, h.OnBusEvent)
	msg := message.NewMessage(watermill.NewUUID(), []byte("{not json"))

	assert.NoError(t, fn(msg), "malformed payloads are terminal, never retried")
}

func TestBindUnknownTargetKindIsAcked(t *testing.T) {
	h, _, _ := newTestHandler(t)

	fn := Bind(h, h.OnBusEvent)
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"event_type":"x","target_kind":"CARRIER_PIGEON"}`))

	assert.NoError(t, fn(msg), "an undecodable kind must not block the queue")
}

func TestBindDispatchesDecodedEvent(t *testing.T) {
	h, _, dl := newTestHandler(t)

	ev := &model.BusEvent{
		EventType:  "command.result",
		TargetKind: model.TargetDevice,
		TargetIDs:  []string{"device-offline"},
		Class:      model.ClassPersistent,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	fn := Bind(h, h.OnBusEvent)
	msg := message.NewMessage(watermill.NewUUID(), payload)

	require.NoError(t, fn(msg))
	assert.Equal(t, 1, dl.published, "offline persistent target reaches the dead-letter sink")
}
