// Package metrics exposes the kernel's Prometheus collectors (SPEC_FULL 12.4).
//
// Metrics are pure observability: nothing here gates a commit or a read.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the kernel records.
type Collectors struct {
	CommitsTotal            *prometheus.CounterVec
	CommitDuration          prometheus.Histogram
	RiskRejectionsTotal     *prometheus.CounterVec
	EventAppendDuration     prometheus.Histogram
	EventFsyncDuration      prometheus.Histogram
	ChainVerifyDuration     prometheus.Histogram
	ProjectionLagSequences  prometheus.Gauge
}

// New registers and returns the kernel's collectors against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		CommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_commits_total",
			Help: "Total number of commit attempts, labeled by result.",
		}, []string{"result"}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_commit_duration_seconds",
			Help:    "Latency of the full write-coordinator commit pipeline.",
			Buckets: prometheus.DefBuckets,
		}),
		RiskRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_risk_rejections_total",
			Help: "Total number of candidate entries rejected by the risk engine, labeled by reason.",
		}, []string{"reason"}),
		EventAppendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_eventstore_append_duration_seconds",
			Help:    "Latency of appending a sealed entry to the event store.",
			Buckets: prometheus.DefBuckets,
		}),
		EventFsyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_eventstore_fsync_duration_seconds",
			Help:    "Latency of the fsync call within an append.",
			Buckets: prometheus.DefBuckets,
		}),
		ChainVerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_chain_verify_duration_seconds",
			Help:    "Latency of a full hash-chain verification pass.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ProjectionLagSequences: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_projection_lag_sequences",
			Help: "Difference between the event store's last sequence and the projection's checkpoint sequence.",
		}),
	}

	reg.MustRegister(
		c.CommitsTotal,
		c.CommitDuration,
		c.RiskRejectionsTotal,
		c.EventAppendDuration,
		c.EventFsyncDuration,
		c.ChainVerifyDuration,
		c.ProjectionLagSequences,
	)

	return c
}

// NewUnregistered builds collectors without attaching them to a registry;
// useful for unit tests that don't want a global registry side effect.
func NewUnregistered() *Collectors {
	return New(prometheus.NewRegistry())
}

// ObserveDuration is a small helper to time a block via defer:
//
//	defer metrics.ObserveDuration(c.CommitDuration, time.Now())
func ObserveDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
