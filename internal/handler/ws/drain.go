package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/session"
)

// Drainer closes every live session when the gateway stops. Each socket
// gets a final disconnected frame before the unregister path tears it
// down, so clients can distinguish a planned shutdown from a network
// failure and reconnect immediately.
type Drainer struct {
	logger   *slog.Logger
	registry *registry.Registry
	sessions *session.Controller
}

func NewDrainer(logger *slog.Logger, reg *registry.Registry, sessions *session.Controller) *Drainer {
	return &Drainer{logger: logger, registry: reg, sessions: sessions}
}

func (d *Drainer) Drain(ctx context.Context) {
	drained := 0
	for i := 0; i < d.registry.ShardCount(); i++ {
		d.registry.ScanShard(i, func(h *model.ConnectionHandle) {
			d.notify(h)
			d.sessions.Unregister(ctx, h, session.ReasonShutdown)
			drained++
		})
	}
	d.logger.Info("sessions drained", "count", drained)
}

// notify pushes the termination frame. Best effort: a dead socket is about
// to be unregistered anyway.
func (d *Drainer) notify(h *model.ConnectionHandle) {
	raw, err := json.Marshal(&model.DisconnectedPayload{Reason: string(session.ReasonShutdown)})
	if err != nil {
		return
	}

	topic := model.UserTopic(h.PrincipalID)
	if h.Kind == model.PrincipalDevice {
		topic = model.DeviceTopic(h.PrincipalID)
	}
	msg := model.NewWireMessage(topic, "disconnected", model.PriorityNormal, raw, false)
	data, err := msg.Encode()
	if err != nil {
		return
	}
	if werr := h.Write(data); werr != nil {
		d.logger.Debug("termination frame write failed",
			"principal_id", h.PrincipalID, "err", werr)
	}
}
