package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/agentctl/internal/metrics"
	"github.com/codeready-toolchain/agentctl/pkg/approval"
	"github.com/codeready-toolchain/agentctl/pkg/channel"
	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
	"github.com/codeready-toolchain/agentctl/pkg/streaming"
)

// pollMetrics keeps the gauges that have no natural write-path event (the
// approval backlog, channel health, per-agent streaming connection counts)
// fresh, since those reflect point-in-time state rather than a discrete
// occurrence worth a counter increment.
func pollMetrics(ctx context.Context, reg *metrics.Registry, approvals *approval.Gate, supervisor *channel.Supervisor, hub *streaming.Hub, registry *lifecycle.Registry) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	log := slog.With("component", "metrics_poller")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := approvals.CountPending(ctx); err != nil {
				log.Warn("count pending approvals failed", "error", err)
			} else {
				reg.ApprovalBacklog.Set(float64(n))
			}

			for _, snap := range supervisor.Snapshots() {
				healthy := 0.0
				if snap.State == channel.StateHealthy {
					healthy = 1.0
				}
				reg.ChannelHealth.WithLabelValues(snap.ChannelType).Set(healthy)
			}

			for _, agent := range registry.All() {
				reg.StreamingConns.WithLabelValues(agent.ID()).Set(float64(hub.ConnectionCount(agent.ID())))
			}
		}
	}
}
