package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/session"
)

// IdentityHeader carries the operator identity encoded by the trusted edge
// component. Decoded here, verified there.
const IdentityHeader = "X-Fleet-Identity"

// OperatorHandler terminates the sockets of logged-in operator sessions.
type OperatorHandler struct {
	logger      *slog.Logger
	auth        *session.Authenticator
	sessions    *session.Controller
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

func NewOperatorHandler(
	logger *slog.Logger,
	auth *session.Authenticator,
	sessions *session.Controller,
	readTimeout time.Duration,
) *OperatorHandler {
	return &OperatorHandler{
		logger:   logger,
		auth:     auth,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		readTimeout: readTimeout,
	}
}

func (h *OperatorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident, err := h.auth.DecodeIdentity(r.Header.Get(IdentityHeader))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("operator upgrade failed", "err", err)
		return
	}
	sink := newWSSink(conn)

	handle, err := h.sessions.RegisterOperator(r.Context(), ident, r.RemoteAddr, sink)
	if err != nil {
		if errors.Is(err, registry.ErrCapacityExceeded) {
			_ = sink.writeControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity_exceeded"))
		}
		_ = sink.Close()
		return
	}

	l := h.logger.With(
		slog.String("user_id", handle.PrincipalID),
		slog.String("session_id", handle.SessionID.String()),
	)
	l.Info("operator socket opened", "client_addr", r.RemoteAddr)

	h.sendSystemFrame(sink, handle, "connected", &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  handle.SessionID.String(),
		ServerVersion: model.ServerVersion,
	})

	reason := session.ReasonTransportError
	defer func() {
		h.sessions.Unregister(context.Background(), handle, reason)
	}()

	h.serve(r.Context(), conn, sink, handle, l, &reason)
}

func (h *OperatorHandler) serve(ctx context.Context, conn *websocket.Conn, sink *wsSink, handle *model.ConnectionHandle, l *slog.Logger, reason *session.CloseReason) {
	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		h.sessions.Heartbeat(ctx, handle)
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				*reason = session.ReasonClientClose
			}
			l.Info("operator socket closed", "err", err)
			return
		}

		h.sessions.Heartbeat(ctx, handle)
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		if string(data) == HeartbeatFrame {
			if err := sink.WriteMessage([]byte(HeartbeatReplyFrame)); err != nil {
				l.Warn("heartbeat ack failed", "err", err)
				return
			}
			continue
		}

		h.handleControlFrame(sink, handle, data, l)
	}
}

func (h *OperatorHandler) handleControlFrame(sink *wsSink, handle *model.ConnectionHandle, data []byte, l *slog.Logger) {
	frame := &operatorFrame{}
	if err := json.Unmarshal(data, frame); err != nil {
		l.Debug("unparseable operator frame dropped", "err", err)
		return
	}

	switch frame.Action {
	case actionSubscribe:
		if err := h.sessions.Subscribe(handle, frame.Topic); err != nil {
			l.Info("subscription rejected", "topic", frame.Topic, "err", err)
			h.sendSystemFrame(sink, handle, "subscription_rejected",
				&model.DisconnectedPayload{Reason: "topic_forbidden"})
			return
		}
		h.sendSystemFrame(sink, handle, "subscribed", map[string]string{"topic": frame.Topic})

	case actionUnsubscribe:
		h.sessions.Unsubscribe(handle, frame.Topic)
		h.sendSystemFrame(sink, handle, "unsubscribed", map[string]string{"topic": frame.Topic})

	default:
		l.Debug("unknown operator action dropped", "action", frame.Action)
	}
}

// sendSystemFrame pushes a gateway-originated envelope to this session
// only. Best effort: a failed write surfaces through the read loop.
func (h *OperatorHandler) sendSystemFrame(sink *wsSink, handle *model.ConnectionHandle, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("system frame marshal failed", "event_type", eventType, "err", err)
		return
	}
	msg := model.NewWireMessage(model.UserTopic(handle.PrincipalID), eventType, model.PriorityNormal, raw, false)
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("system frame encode failed", "event_type", eventType, "err", err)
		return
	}
	if err := sink.WriteMessage(data); err != nil {
		h.logger.Debug("system frame write failed", "event_type", eventType, "err", err)
	}
}
