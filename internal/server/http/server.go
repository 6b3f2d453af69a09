// Package httpserver assembles C6's HTTP surface: the SSE/WS push
// endpoints plus the health/readiness/metrics surface spec.md §6 and the
// expanded ambient stack require. Grounded on the teacher's chi-based
// infra/server wiring shape, generalized from gRPC to this fabric's HTTP
// transports.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/domain/registry"
	"github.com/chatfabric/notify-server/internal/service/push"
)

// Config tunes the HTTP server and its connect-rate limiter.
type Config struct {
	Port              int
	ConnectRatePerSec float64
	ConnectBurst      int
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ConnectRatePerSec == 0 {
		c.ConnectRatePerSec = 5
	}
	if c.ConnectBurst == 0 {
		c.ConnectBurst = 20
	}
	return c
}

// NewRouter builds the chi.Mux mounting every route spec.md §6 names.
func NewRouter(cfg Config, sse *push.SSEHandler, ws *push.WSHandler, transport pubsub.Transport, hub *registry.Hub, zlog zerolog.Logger, metrics *Metrics) chi.Router {
	cfg = cfg.withDefaults()
	limiter := newConnectLimiter(cfg.ConnectRatePerSec, cfg.ConnectBurst, 5*time.Minute)
	health := newHealthHandlers(transport, hub)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(zlog))

	r.Get("/health", health.health)
	r.Get("/ready", health.ready)
	r.Get("/live", health.live)
	r.Handle("/metrics", promHandler())

	r.Handle("/events", rateLimitConnect(limiter, metrics, connectionCounted(metrics, sse)))
	r.Handle("/events/ws", rateLimitConnect(limiter, metrics, connectionCounted(metrics, ws)))

	return r
}

// connectionCounted wraps a long-lived push handler so the connections
// gauge reflects reality: /events and /events/ws only return once the
// stream closes, so incrementing before and decrementing after ServeHTTP
// brackets the connection's entire lifetime.
func connectionCounted(metrics *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.ConnectionOpened()
		defer metrics.ConnectionClosed()
		next.ServeHTTP(w, r)
	})
}

// NewServer builds the *http.Server; fx.Lifecycle owns Start/Shutdown.
func NewServer(cfg Config, router chi.Router) *http.Server {
	cfg = cfg.withDefaults()
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
}

// Module wires C6's HTTP surface as an fx.Module, starting the server on
// OnStart and draining connections on OnStop, matching the teacher's
// infra/server lifecycle-hook convention.
var Module = fx.Module("server.http",
	fx.Provide(
		NewRouter,
		NewServer,
		NewMetrics,
	),
	fx.Invoke(func(lc fx.Lifecycle, srv *http.Server, log *slog.Logger) {
		if log == nil {
			log = slog.Default()
		}
		log = log.With("component", "server.http")
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return err
				}
				go func() {
					log.Info("http server listening", "addr", srv.Addr)
					if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
						log.Error("http server stopped unexpectedly", "error", err)
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
