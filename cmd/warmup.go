package cmd

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"go.uber.org/fx"

	"github.com/chatfabric/notify-server/config"
	"github.com/chatfabric/notify-server/internal/domain/membership"
)

// InvokeMembershipWarmup prefetches membership.warm_workspace_ids into C3's
// Index before the server starts accepting connections, so the first
// UserPresence fan-out for a warm workspace doesn't pay the relational-store
// hydration cost on the hot path. Fan-out pattern grounded on the teacher's
// concurrent two-lookup ResolvePeers (internal/service/peer_enricher.go),
// generalized from a fixed pair to an arbitrary workspace list.
func InvokeMembershipWarmup(lc fx.Lifecycle, cfg *config.AppConfig, index *membership.Index, log *slog.Logger) {
	workspaces := cfg.WarmWorkspaceIDs()
	if len(workspaces) == 0 {
		return
	}
	log = log.With("component", "membership.warmup")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			g, gCtx := errgroup.WithContext(ctx)
			for _, wsID := range workspaces {
				wsID := wsID
				g.Go(func() error {
					if _, err := index.WorkspaceUsers(gCtx, wsID); err != nil {
						log.Warn("workspace warmup failed", "workspace_id", int64(wsID), "error", err)
						return nil
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				log.Warn("membership warmup incomplete", "error", err)
			} else {
				log.Info("membership warmup complete", "workspaces", len(workspaces))
			}
			return nil
		},
	})
}
