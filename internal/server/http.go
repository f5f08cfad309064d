// Package server hosts the gateway's HTTP surface: the websocket endpoints
// and the admin API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"

	"github.com/visioncast/fleet-gateway/config"
	"github.com/visioncast/fleet-gateway/internal/handler/admin"
	"github.com/visioncast/fleet-gateway/internal/handler/ws"
)

func NewMux(device *ws.DeviceHandler, operator *ws.OperatorHandler, adm *admin.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws/device", device.ServeHTTP)
	r.Get("/ws/operator", operator.ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", adm.Stats)
		r.Get("/healthz", adm.Healthz)
	})
	return r
}

var Module = fx.Module("http-server",
	fx.Provide(NewMux),
	fx.Invoke(func(lc fx.Lifecycle, logger *slog.Logger, cfg *config.Config, mux *chi.Mux) {
		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", cfg.Listen)
				if err != nil {
					return err
				}
				logger.Info("http server listening", "addr", cfg.Listen)
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server failed", "err", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
