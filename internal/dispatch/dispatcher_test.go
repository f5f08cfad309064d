package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
)

type recordingSink struct {
	mu     sync.Mutex
	open   bool
	fail   bool
	frames [][]byte
}

func (s *recordingSink) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("write refused")
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *recordingSink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *recordingSink) received(t *testing.T) []*model.WireMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.WireMessage, 0, len(s.frames))
	for _, f := range s.frames {
		msg := &model.WireMessage{}
		require.NoError(t, json.Unmarshal(f, msg))
		out = append(out, msg)
	}
	return out
}

type fakeDeadLetter struct {
	mu      sync.Mutex
	events  []*model.BusEvent
	reasons []string
	err     error
}

func (f *fakeDeadLetter) PublishDeadLetter(_ context.Context, ev *model.BusEvent, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	f.reasons = append(f.reasons, reason)
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	registry   *registry.Registry
	subs       *subscription.Manager
	deadLetter *fakeDeadLetter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(registry.WithShardCount(4), registry.WithMaxConnections(100))
	subs := subscription.NewManager()
	dl := &fakeDeadLetter{}
	return &fixture{
		dispatcher: NewDispatcher(logger, reg, subs, dl),
		registry:   reg,
		subs:       subs,
		deadLetter: dl,
	}
}

func (f *fixture) connect(t *testing.T, principalID string, kind model.PrincipalKind) (*model.ConnectionHandle, *recordingSink) {
	t.Helper()

	sink := &recordingSink{open: true}
	h := model.NewConnectionHandle(principalID, "org-42", kind, "addr", sink)
	require.NoError(t, f.registry.Add(h))
	return h, sink
}

func TestDispatchToDevice(t *testing.T) {
	f := newFixture(t)
	_, sink := f.connect(t, "device-1", model.PrincipalDevice)

	result, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "command.result",
		TargetKind: model.TargetDevice,
		TargetIDs:  []string{"device-1"},
		Payload:    json.RawMessage(`{"status":"done"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Resolved)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, result.Failed)

	msgs := sink.received(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "device:device-1", msgs[0].Topic)
	assert.Equal(t, "command.result", msgs[0].EventType)
	assert.Equal(t, result.MessageID, msgs[0].MessageID)
}

func TestOrgBroadcastFanOut(t *testing.T) {
	f := newFixture(t)

	topic := model.OrgTopic("42")
	var sinks []*recordingSink
	for _, user := range []string{"u1", "u2", "u3"} {
		h, sink := f.connect(t, user, model.PrincipalOperator)
		f.subs.Subscribe(h.SessionID, topic)
		sinks = append(sinks, sink)
	}
	// A connected but unsubscribed session receives nothing.
	_, bystander := f.connect(t, "u4", model.PrincipalOperator)

	result, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "program.updated",
		TargetKind: model.TargetOrgBroadcast,
		OrgID:      "42",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Delivered)

	var ids []string
	for _, sink := range sinks {
		msgs := sink.received(t)
		require.Len(t, msgs, 1, "every subscriber receives exactly one message")
		assert.Equal(t, topic, msgs[0].Topic)
		ids = append(ids, msgs[0].MessageID)
	}
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[1], ids[2], "fan-out shares one message id")

	assert.Empty(t, bystander.received(t))
}

func TestDispatchToUsersUnion(t *testing.T) {
	f := newFixture(t)
	_, sink1 := f.connect(t, "u1", model.PrincipalOperator)
	_, sink2 := f.connect(t, "u2", model.PrincipalOperator)

	result, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "notice",
		TargetKind: model.TargetUsers,
		TargetIDs:  []string{"u1", "u2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Delivered)
	assert.Len(t, sink1.received(t), 1)
	assert.Len(t, sink2.received(t), 1)
	assert.Equal(t, sink1.received(t)[0].MessageID, sink2.received(t)[0].MessageID)
}

func TestUserTopicSubscriberIncluded(t *testing.T) {
	f := newFixture(t)

	// Another session following u1's topic gets the message too, once.
	target, targetSink := f.connect(t, "u1", model.PrincipalOperator)
	follower, followerSink := f.connect(t, "u2", model.PrincipalOperator)
	f.subs.Subscribe(follower.SessionID, model.UserTopic("u1"))
	f.subs.Subscribe(target.SessionID, model.UserTopic("u1"))

	result, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "notice",
		TargetKind: model.TargetUser,
		TargetIDs:  []string{"u1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Delivered)
	assert.Len(t, targetSink.received(t), 1, "own subscription must not duplicate delivery")
	assert.Len(t, followerSink.received(t), 1)
}

func TestPartialFailureIsReportedNotFatal(t *testing.T) {
	f := newFixture(t)
	_, ok1 := f.connect(t, "u1", model.PrincipalOperator)
	_, broken := f.connect(t, "u2", model.PrincipalOperator)
	broken.fail = true

	result, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "notice",
		TargetKind: model.TargetUsers,
		TargetIDs:  []string{"u1", "u2"},
	})
	require.NoError(t, err, "partial delivery is success with a count")

	assert.Equal(t, 2, result.Resolved)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, ok1.received(t), 1)
}

func TestUnreachablePersistentGoesToDeadLetter(t *testing.T) {
	f := newFixture(t)

	ev := &model.BusEvent{
		EventType:  "command.result",
		TargetKind: model.TargetDevice,
		TargetIDs:  []string{"device-offline"},
		Class:      model.ClassPersistent,
	}
	result, err := f.dispatcher.Dispatch(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, result.Unreachable())
	require.Len(t, f.deadLetter.events, 1)
	assert.Equal(t, ev, f.deadLetter.events[0])
	assert.Equal(t, "no_live_destinations", f.deadLetter.reasons[0])
}

func TestUnreachableEphemeralIsDropped(t *testing.T) {
	f := newFixture(t)

	result, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "status.changed",
		TargetKind: model.TargetUser,
		TargetIDs:  []string{"u-offline"},
		Class:      model.ClassEphemeral,
	})
	require.NoError(t, err)

	assert.True(t, result.Unreachable())
	assert.Empty(t, f.deadLetter.events)
}

func TestRequireAckForcesDeadLetter(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "command.result",
		TargetKind: model.TargetUser,
		TargetIDs:  []string{"u-offline"},
		Class:      model.ClassEphemeral,
		RequireAck: true,
	})
	require.NoError(t, err)
	assert.Len(t, f.deadLetter.events, 1)
}

func TestDeadLetterFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.deadLetter.err = errors.New("broker down")

	_, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "command.result",
		TargetKind: model.TargetDevice,
		TargetIDs:  []string{"device-offline"},
		Class:      model.ClassPersistent,
	})
	require.Error(t, err)
}

func TestUnknownTargetKindIsError(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Dispatch(context.Background(), &model.BusEvent{
		EventType:  "x",
		TargetKind: model.TargetKind(99),
	})
	require.Error(t, err)
}
