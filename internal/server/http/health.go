package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/domain/registry"
)

// healthStatus is the §6 JSON shape: component status plus open-connection
// count.
type healthStatus struct {
	Status           string `json:"status"`
	BrokerReachable  bool   `json:"broker_reachable"`
	OpenConnections  int    `json:"open_connections"`
}

type healthHandlers struct {
	transport pubsub.Transport
	hub       *registry.Hub
	startedAt time.Time
}

func newHealthHandlers(transport pubsub.Transport, hub *registry.Hub) *healthHandlers {
	return &healthHandlers{transport: transport, hub: hub, startedAt: time.Now()}
}

// live reports liveness only — the process is up and serving, independent
// of any upstream dependency. spec.md §6 names /live alongside /health and
// /ready but only /ready gates on broker reachability.
func (h *healthHandlers) live(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "alive",
		"uptime_seconds":   time.Since(h.startedAt).Seconds(),
		"open_connections": stats.TotalConnections,
	})
}

// health reports component status: broker reachable, open-connection count.
// The relational store membership hydrates from is an external collaborator
// this repo never dials directly (see DESIGN.md) so it is not probed here.
func (h *healthHandlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	brokerOK := h.transport.Health(ctx) == nil
	stats := h.hub.Stats()

	status := "ok"
	if !brokerOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthStatus{
		Status:          status,
		BrokerReachable: brokerOK,
		OpenConnections: stats.TotalConnections,
	})
}

// ready gates on broker reachability: spec.md §6 requires /ready return 503
// when the broker is unreachable, since C5 cannot route anything useful
// without C2.
func (h *healthHandlers) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.transport.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthStatus{
			Status:          "unavailable",
			BrokerReachable: false,
			OpenConnections: h.hub.Stats().TotalConnections,
		})
		return
	}
	writeJSON(w, http.StatusOK, healthStatus{
		Status:          "ready",
		BrokerReachable: true,
		OpenConnections: h.hub.Stats().TotalConnections,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
