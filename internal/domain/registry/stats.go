package registry

import "time"

// HubStats is a point-in-time snapshot for the health/readiness and admin
// surfaces. Adapted from the delivery-service's introspection model, which
// tracked the same shape for a sharded hub; this hub is single-sharded
// (one sync.Map), so Shards always has length 1.
type HubStats struct {
	TotalUsers       int           `json:"total_users"`
	TotalConnections int           `json:"total_connections"`
	Uptime           time.Duration `json:"uptime"`
	Shards           []ShardStats  `json:"shards,omitempty"`
}

type ShardStats struct {
	ShardID     int `json:"shard_id"`
	UserCount   int `json:"user_count"`
	ActiveCells int `json:"active_cells"`
}

// Stats walks the cell table and reports aggregate occupancy. Intended for
// the /ready and admin-facing diagnostics endpoints, not the hot path.
func (h *Hub) Stats() HubStats {
	var users, conns int
	h.cells.Range(func(_, value any) bool {
		users++
		if cs, ok := value.(*Cell); ok {
			cs.mu.RLock()
			conns += len(cs.sessions)
			cs.mu.RUnlock()
		}
		return true
	})
	return HubStats{
		TotalUsers:       users,
		TotalConnections: conns,
		Shards: []ShardStats{{
			ShardID:     0,
			UserCount:   users,
			ActiveCells: users,
		}},
	}
}
