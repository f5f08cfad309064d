package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
	"github.com/visioncast/fleet-gateway/internal/presence"
	"github.com/visioncast/fleet-gateway/internal/session"
)

type captureSink struct {
	mu     sync.Mutex
	open   bool
	frames [][]byte
}

func (s *captureSink) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *captureSink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func TestDrainNotifiesAndUnregisters(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(registry.WithShardCount(4), registry.WithMaxConnections(10))
	subs := subscription.NewManager()
	ctrl := session.NewController(logger, reg, subs, presence.NewMemoryStore(), time.Minute)
	d := NewDrainer(logger, reg, ctrl)

	deviceSink := &captureSink{open: true}
	device := model.NewConnectionHandle("device-1", "org-1", model.PrincipalDevice, "addr", deviceSink)
	require.NoError(t, reg.Add(device))

	operatorSink := &captureSink{open: true}
	operator := model.NewConnectionHandle("u1", "org-1", model.PrincipalOperator, "addr", operatorSink)
	require.NoError(t, reg.Add(operator))
	require.NoError(t, ctrl.Subscribe(operator, model.OrgTopic("org-1")))

	d.Drain(context.Background())

	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, subs.Len())
	assert.False(t, deviceSink.IsOpen())
	assert.False(t, operatorSink.IsOpen())

	require.Len(t, deviceSink.frames, 1)
	msg := &model.WireMessage{}
	require.NoError(t, json.Unmarshal(deviceSink.frames[0], msg))
	assert.Equal(t, "disconnected", msg.EventType)
	assert.Equal(t, model.DeviceTopic("device-1"), msg.Topic)

	require.Len(t, operatorSink.frames, 1)
	require.NoError(t, json.Unmarshal(operatorSink.frames[0], msg))
	assert.Equal(t, model.UserTopic("u1"), msg.Topic)

	payload := &model.DisconnectedPayload{}
	require.NoError(t, json.Unmarshal(msg.Payload, payload))
	assert.Equal(t, string(session.ReasonShutdown), payload.Reason)
}
