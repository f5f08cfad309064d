// Package admin exposes operational read-only endpoints.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/visioncast/fleet-gateway/internal/domain/registry"
	"github.com/visioncast/fleet-gateway/internal/domain/subscription"
)

type Handler struct {
	logger    *slog.Logger
	registry  *registry.Registry
	subs      *subscription.Manager
	startedAt time.Time
}

func NewHandler(logger *slog.Logger, reg *registry.Registry, subs *subscription.Manager) *Handler {
	return &Handler{
		logger:    logger,
		registry:  reg,
		subs:      subs,
		startedAt: time.Now(),
	}
}

type statsResponse struct {
	TotalPrincipals  int                  `json:"total_principals"`
	TotalConnections int                  `json:"total_connections"`
	MaxConnections   int                  `json:"max_connections"`
	Subscriptions    int                  `json:"subscriptions"`
	UptimeSeconds    int64                `json:"uptime_seconds"`
	Shards           []shardStatsResponse `json:"shards"`
}

type shardStatsResponse struct {
	ShardID     int `json:"shard_id"`
	Principals  int `json:"principals"`
	Connections int `json:"connections"`
}

// Stats serves the registry snapshot consumed by the stats dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()

	resp := statsResponse{
		TotalPrincipals:  stats.TotalPrincipals,
		TotalConnections: stats.TotalConnections,
		MaxConnections:   stats.MaxConnections,
		Subscriptions:    h.subs.Len(),
		UptimeSeconds:    int64(time.Since(h.startedAt).Seconds()),
		Shards:           make([]shardStatsResponse, len(stats.Shards)),
	}
	for i, s := range stats.Shards {
		resp.Shards[i] = shardStatsResponse(s)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("stats encode failed", "err", err)
	}
}

// Healthz reports process liveness for the platform's probes.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
