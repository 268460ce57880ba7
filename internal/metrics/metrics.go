// Package metrics defines the prometheus collectors shared across
// components: queue depth, breaker state, approval backlog, streaming
// connections.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the control plane exposes on /metrics.
type Registry struct {
	JobsByStatus      *prometheus.GaugeVec
	JobAttempts       prometheus.Histogram
	BreakerState      *prometheus.GaugeVec
	ApprovalBacklog   prometheus.Gauge
	StreamingConns    *prometheus.GaugeVec
	ChannelHealth     *prometheus.GaugeVec
	WorkerClaims      *prometheus.CounterVec
	MemoryDedupTotal  *prometheus.CounterVec
	RouteDecisions    *prometheus.CounterVec
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		JobsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane", Name: "jobs_by_status", Help: "Current job count per status.",
		}, []string{"status"}),
		JobAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "controlplane", Name: "job_attempts", Help: "Attempts taken before a job reaches a terminal status.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane", Name: "breaker_state", Help: "Circuit breaker state (0=closed,1=half-open,2=open) per provider.",
		}, []string{"provider"}),
		ApprovalBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "controlplane", Name: "approval_backlog", Help: "Pending approval requests.",
		}),
		StreamingConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane", Name: "streaming_connections", Help: "Open streaming connections per agent.",
		}, []string{"agent_id"}),
		ChannelHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane", Name: "channel_health", Help: "Channel adapter health (1=healthy,0=otherwise).",
		}, []string{"channel_type"}),
		WorkerClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane", Name: "worker_claims_total", Help: "Jobs claimed per task name.",
		}, []string{"task"}),
		MemoryDedupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane", Name: "memory_outcomes_total", Help: "Memory extraction outcomes.",
		}, []string{"outcome"}),
		RouteDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane", Name: "route_decisions_total", Help: "Provider router decisions.",
		}, []string{"provider", "decision"}),
	}

	reg.MustRegister(
		m.JobsByStatus, m.JobAttempts, m.BreakerState, m.ApprovalBacklog,
		m.StreamingConns, m.ChannelHealth, m.WorkerClaims, m.MemoryDedupTotal,
		m.RouteDecisions,
	)
	return m
}
