// Package session orchestrates the lifecycle of every physical connection:
// authenticate, register, serve, unregister. Disconnect is modeled as a
// single idempotent unregister operation invoked from every exit path, so
// an abrupt network failure and a graceful close run the same cleanup.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/visioncast/fleet-gateway/internal/creds"
	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
	"github.com/visioncast/fleet-gateway/internal/presence"
)

// CloseReason names the exit path that triggered an unregister.
type CloseReason string

const (
	ReasonClientClose    CloseReason = "client_close"
	ReasonTransportError CloseReason = "transport_error"
	ReasonTimeout        CloseReason = "heartbeat_timeout"
	ReasonCapacity       CloseReason = "capacity_exceeded"
	ReasonShutdown       CloseReason = "server_shutdown"
)

// ErrTopicForbidden rejects a subscription outside the session's own scope.
var ErrTopicForbidden = errors.New("session: topic not permitted for this session")

type Controller struct {
	logger   *slog.Logger
	registry *registry.Registry
	subs     *subscription.Manager
	store    presence.Store

	// presenceTTL outlives the heartbeat window slightly, so the record
	// self-expires when a node dies without running cleanup.
	presenceTTL time.Duration
}

func NewController(
	logger *slog.Logger,
	reg *registry.Registry,
	subs *subscription.Manager,
	store presence.Store,
	presenceTTL time.Duration,
) *Controller {
	return &Controller{
		logger:      logger,
		registry:    reg,
		subs:        subs,
		store:       store,
		presenceTTL: presenceTTL,
	}
}

// RegisterDevice attaches an authenticated device socket to the node.
func (c *Controller) RegisterDevice(ctx context.Context, acct *creds.Account, info *creds.DeviceInfo, clientAddr string, sink model.Sink) (*model.ConnectionHandle, error) {
	h := model.NewConnectionHandle(acct.PrincipalID, info.OrgID, model.PrincipalDevice, clientAddr, sink)
	return c.register(ctx, h)
}

// RegisterOperator attaches an operator socket under its decoded identity.
func (c *Controller) RegisterOperator(ctx context.Context, ident *model.Identity, clientAddr string, sink model.Sink) (*model.ConnectionHandle, error) {
	h := model.NewConnectionHandle(ident.UserID, ident.OrgID, model.PrincipalOperator, clientAddr, sink)
	return c.register(ctx, h)
}

func (c *Controller) register(ctx context.Context, h *model.ConnectionHandle) (*model.ConnectionHandle, error) {
	err := c.registry.Add(h)
	switch {
	case errors.Is(err, registry.ErrDuplicateSession):
		// Already registered under this session id: idempotent no-op.
		c.logger.Debug("duplicate session registration ignored",
			"principal_id", h.PrincipalID, "session_id", h.SessionID)
	case err != nil:
		return nil, err
	}

	if perr := c.refreshPresence(ctx, h); perr != nil {
		// Presence is best-effort: the in-process registry stays the local
		// source of truth even when the shared store is down.
		c.logger.Warn("presence write failed", "principal_id", h.PrincipalID, "err", perr)
	}

	c.logger.Info("session registered",
		"principal_id", h.PrincipalID,
		"session_id", h.SessionID,
		"kind", h.Kind.String(),
		"client_addr", h.ClientAddr,
	)
	return h, nil
}

// Heartbeat refreshes liveness for the handle. Any inbound activity counts;
// the caller decides what qualifies.
func (c *Controller) Heartbeat(ctx context.Context, h *model.ConnectionHandle) {
	h.Touch()
	if err := c.refreshPresence(ctx, h); err != nil {
		c.logger.Warn("presence refresh failed", "principal_id", h.PrincipalID, "err", err)
	}
}

func (c *Controller) refreshPresence(ctx context.Context, h *model.ConnectionHandle) error {
	return c.store.Set(ctx, presence.Key(h.PrincipalID),
		time.Now().UTC().Format(time.RFC3339), c.presenceTTL)
}

// Subscribe adds a topic subscription after scoping it to the session's
// organization. Operators may listen on their own user topic and on their
// org's broadcast topic; anything else is rejected.
func (c *Controller) Subscribe(h *model.ConnectionHandle, topic string) error {
	if topic != model.UserTopic(h.PrincipalID) && topic != model.OrgTopic(h.OrgID) {
		return ErrTopicForbidden
	}
	c.subs.Subscribe(h.SessionID, topic)
	return nil
}

func (c *Controller) Unsubscribe(h *model.ConnectionHandle, topic string) {
	c.subs.Unsubscribe(h.SessionID, topic)
}

// Unregister runs the disconnect path: remove from the registry, drop
// subscriptions, delete presence when the principal's last handle is gone,
// close the transport. Every step is idempotent, so the read loop, the
// heartbeat monitor and shutdown may all race to call it.
func (c *Controller) Unregister(ctx context.Context, h *model.ConnectionHandle, reason CloseReason) {
	removed := c.registry.Remove(h.PrincipalID, h.SessionID)

	c.subs.CleanupSession(h.SessionID)
	h.CloseSink()

	if removed && len(c.registry.Get(h.PrincipalID)) == 0 {
		if err := c.store.Delete(ctx, presence.Key(h.PrincipalID)); err != nil {
			// The record self-expires; deletion is just the fast path.
			c.logger.Warn("presence delete failed", "principal_id", h.PrincipalID, "err", err)
		}
	}

	if removed {
		c.logger.Info("session unregistered",
			"principal_id", h.PrincipalID,
			"session_id", h.SessionID,
			"reason", string(reason),
		)
	}
}
