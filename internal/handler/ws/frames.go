package ws

import (
	"context"
	"log/slog"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

// Application-level heartbeat frames. These ride inside the data stream and
// are distinct from the transport ping/pong control frames; both refresh
// liveness.
const (
	HeartbeatFrame      = "--heartbeat--"
	HeartbeatReplyFrame = "--heartbeat-ack--"
)

// operatorFrame is the inbound control surface of an operator session.
type operatorFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// DeviceFrameHandler consumes business frames sent by a device. Pluggable;
// the gateway core only guarantees liveness bookkeeping around it.
type DeviceFrameHandler interface {
	HandleDeviceFrame(ctx context.Context, h *model.ConnectionHandle, frame []byte) error
}

// NopDeviceFrameHandler logs and drops business frames. Stands in until a
// platform-specific handler is mounted.
type NopDeviceFrameHandler struct {
	Logger *slog.Logger
}

func (n *NopDeviceFrameHandler) HandleDeviceFrame(_ context.Context, h *model.ConnectionHandle, frame []byte) error {
	n.Logger.Debug("device frame ignored",
		"principal_id", h.PrincipalID, "size", len(frame))
	return nil
}
