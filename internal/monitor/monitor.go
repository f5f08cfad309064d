// Package monitor sweeps the connection registry on a fixed period and
// reaps sockets that stopped heartbeating.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/session"
)

// Monitor enforces the only timeout semantics in the gateway. A connection
// whose heartbeat is older than the window is force-closed through the same
// idempotent unregister path every other disconnect uses, so racing with a
// concurrent client close is harmless.
type Monitor struct {
	logger   *slog.Logger
	registry *registry.Registry
	sessions *session.Controller

	interval time.Duration
	timeout  time.Duration

	done chan struct{}
}

func New(logger *slog.Logger, reg *registry.Registry, sessions *session.Controller, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		logger:   logger,
		registry: reg,
		sessions: sessions,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic sweep in its own goroutine.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) Stop() {
	close(m.done)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("heartbeat monitor started",
		"interval", m.interval.String(), "timeout", m.timeout.String())

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep(context.Background())
		}
	}
}

// Sweep scans every shard once and reaps timed-out handles. Shards are
// swept in parallel; a failure on one entry never aborts the rest of the
// scan. Shard locks are held only while snapshotting, never during reaping,
// so the sweep cannot block the read/write path.
func (m *Monitor) Sweep(ctx context.Context) {
	now := time.Now()
	g := new(errgroup.Group)

	for i := 0; i < m.registry.ShardCount(); i++ {
		i := i
		g.Go(func() error {
			m.registry.ScanShard(i, func(h *model.ConnectionHandle) {
				age := now.Sub(h.LastHeartbeatAt())
				if age <= m.timeout {
					return
				}
				m.logger.Warn("heartbeat timeout, reaping connection",
					"principal_id", h.PrincipalID,
					"session_id", h.SessionID,
					"silent_for", age.String(),
				)
				m.sessions.Unregister(ctx, h, session.ReasonTimeout)
			})
			return nil
		})
	}
	_ = g.Wait()
}
