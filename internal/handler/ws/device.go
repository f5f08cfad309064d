package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/session"
)

// DeviceHandler terminates the persistent sockets of the display fleet.
type DeviceHandler struct {
	logger   *slog.Logger
	auth     *session.Authenticator
	sessions *session.Controller
	frames   DeviceFrameHandler
	upgrader websocket.Upgrader

	// readTimeout bounds a silent socket at the transport level; the
	// heartbeat monitor owns the authoritative timeout.
	readTimeout time.Duration
}

func NewDeviceHandler(
	logger *slog.Logger,
	auth *session.Authenticator,
	sessions *session.Controller,
	frames DeviceFrameHandler,
	readTimeout time.Duration,
) *DeviceHandler {
	return &DeviceHandler{
		logger:   logger,
		auth:     auth,
		sessions: sessions,
		frames:   frames,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		readTimeout: readTimeout,
	}
}

func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Authenticate before upgrading: a failed handshake never registers a
	// handle and never holds a socket.
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="fleet-gateway"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	acct, info, err := h.auth.AuthenticateDevice(r.Context(), username, password)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("device upgrade failed", "err", err)
		return
	}
	sink := newWSSink(conn)

	handle, err := h.sessions.RegisterDevice(r.Context(), acct, info, r.RemoteAddr, sink)
	if err != nil {
		if errors.Is(err, registry.ErrCapacityExceeded) {
			// Explicit rejection instead of a silent drop; the device backs
			// off and retries elsewhere.
			_ = sink.writeControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity_exceeded"))
		}
		_ = sink.Close()
		return
	}

	l := h.logger.With(
		slog.String("principal_id", handle.PrincipalID),
		slog.String("session_id", handle.SessionID.String()),
	)
	l.Info("device socket opened", "client_addr", r.RemoteAddr)

	// The unregister path must be reachable from every exit of the read
	// loop, including panics in the pluggable frame handler.
	reason := session.ReasonTransportError
	defer func() {
		h.sessions.Unregister(context.Background(), handle, reason)
	}()

	h.serve(r.Context(), conn, sink, handle, l, &reason)
}

func (h *DeviceHandler) serve(ctx context.Context, conn *websocket.Conn, sink *wsSink, handle *model.ConnectionHandle, l *slog.Logger, reason *session.CloseReason) {
	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		// Transport-level pong also counts as liveness.
		h.sessions.Heartbeat(ctx, handle)
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				*reason = session.ReasonClientClose
			}
			l.Info("device socket closed", "err", err)
			return
		}

		// Refresh is a side effect of any inbound activity, not only pings.
		h.sessions.Heartbeat(ctx, handle)
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		if string(data) == HeartbeatFrame {
			if err := sink.WriteMessage([]byte(HeartbeatReplyFrame)); err != nil {
				l.Warn("heartbeat ack failed", "err", err)
				return
			}
			continue
		}

		if err := h.frames.HandleDeviceFrame(ctx, handle, data); err != nil {
			l.Warn("device frame handler failed", "err", err)
		}
	}
}
