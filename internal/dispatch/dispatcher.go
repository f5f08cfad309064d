// Package dispatch converts internal business events into wire messages and
// delivers them to the live connections that should receive them.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
)

// DeadLetterSink receives events that resolved zero live destinations but
// must not be lost. Backlog replay on next login is handled by an external
// collaborator; the gateway only publishes the event with a reason code.
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, ev *model.BusEvent, reason string) error
}

// destination groups the handles addressed by one topic of a dispatch.
type destination struct {
	topic   string
	handles []*model.ConnectionHandle
}

type Dispatcher struct {
	logger     *slog.Logger
	registry   *registry.Registry
	subs       *subscription.Manager
	deadLetter DeadLetterSink
}

func NewDispatcher(logger *slog.Logger, reg *registry.Registry, subs *subscription.Manager, dl DeadLetterSink) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		registry:   reg,
		subs:       subs,
		deadLetter: dl,
	}
}

// Dispatch resolves the event's destinations, writes one wire message per
// live connection and reports counts. Partial delivery is success with a
// count; only a malformed event returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.BusEvent) (model.DispatchResult, error) {
	dests, err := d.resolve(ev)
	if err != nil {
		return model.DispatchResult{}, err
	}

	// One message id for the whole fan-out so receivers can deduplicate
	// and delivery logging stays idempotent.
	messageID := ""
	result := model.DispatchResult{}

	for _, dest := range dests {
		msg := model.NewWireMessage(dest.topic, ev.EventType, ev.Priority, ev.Payload, ev.RequireAck)
		if messageID == "" {
			messageID = msg.MessageID
		} else {
			msg.MessageID = messageID
		}
		result.MessageID = messageID

		// Encode once per topic group, not once per connection.
		data, err := msg.Encode()
		if err != nil {
			return model.DispatchResult{}, fmt.Errorf("dispatch: encode %s: %w", dest.topic, err)
		}

		for _, h := range dest.handles {
			result.Resolved++
			if werr := h.Write(data); werr != nil {
				result.Failed++
				d.logWriteFailure(ev, h, werr)
				continue
			}
			result.Delivered++
		}
	}

	if result.Unreachable() {
		return result, d.handleUnreachable(ctx, ev)
	}
	return result, nil
}

// resolve maps the closed target-kind set to live handles. The switch is
// exhaustive; an unknown kind is a terminal decoding error, not a retry.
func (d *Dispatcher) resolve(ev *model.BusEvent) ([]destination, error) {
	switch ev.TargetKind {
	case model.TargetDevice:
		dests := make([]destination, 0, len(ev.TargetIDs))
		for _, id := range ev.TargetIDs {
			dests = append(dests, destination{topic: model.DeviceTopic(id), handles: d.registry.Get(id)})
		}
		return dests, nil

	case model.TargetUser, model.TargetUsers:
		dests := make([]destination, 0, len(ev.TargetIDs))
		for _, id := range ev.TargetIDs {
			dests = append(dests, destination{topic: model.UserTopic(id), handles: d.userHandles(id)})
		}
		return dests, nil

	case model.TargetOrgBroadcast:
		topic := model.OrgTopic(ev.OrgID)
		var handles []*model.ConnectionHandle
		for _, sessionID := range d.subs.SubscribersOf(topic) {
			if h, ok := d.registry.GetBySession(sessionID); ok {
				handles = append(handles, h)
			}
		}
		return []destination{{topic: topic, handles: handles}}, nil

	default:
		return nil, fmt.Errorf("dispatch: unknown target kind %d", ev.TargetKind)
	}
}

// userHandles unions the user's registered connections with sessions that
// explicitly subscribed to the user topic, deduplicated by session id.
func (d *Dispatcher) userHandles(userID string) []*model.ConnectionHandle {
	handles := d.registry.Get(userID)
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		seen[h.SessionID.String()] = struct{}{}
	}
	for _, sessionID := range d.subs.SubscribersOf(model.UserTopic(userID)) {
		if _, dup := seen[sessionID.String()]; dup {
			continue
		}
		if h, ok := d.registry.GetBySession(sessionID); ok {
			handles = append(handles, h)
			seen[sessionID.String()] = struct{}{}
		}
	}
	return handles
}

// handleUnreachable routes persistent-class events to the dead-letter sink
// and silently drops ephemeral ones.
func (d *Dispatcher) handleUnreachable(ctx context.Context, ev *model.BusEvent) error {
	if !ev.Persistent() {
		d.logger.Debug("ephemeral event dropped, no live destinations",
			"event_type", ev.EventType, "target_kind", ev.TargetKind.String())
		return nil
	}

	if err := d.deadLetter.PublishDeadLetter(ctx, ev, "no_live_destinations"); err != nil {
		return fmt.Errorf("dispatch: dead-letter publish: %w", err)
	}
	d.logger.Info("persistent event routed to dead-letter",
		"event_type", ev.EventType, "target_kind", ev.TargetKind.String())
	return nil
}

func (d *Dispatcher) logWriteFailure(ev *model.BusEvent, h *model.ConnectionHandle, err error) {
	// High-priority failures are operationally interesting; ephemeral churn
	// from dying sockets is not.
	attrs := []any{
		"event_type", ev.EventType,
		"principal_id", h.PrincipalID,
		"session_id", h.SessionID,
		"err", err,
	}
	if ev.Priority >= model.PriorityHigh {
		d.logger.Warn("wire write failed", attrs...)
		return
	}
	d.logger.Debug("wire write failed", attrs...)
}
