// Package metrics exposes Prometheus instruments for the patch-merge engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

const namespace = "patchcache"

// Metrics holds the engine's collectors.
type Metrics struct {
	PatchesApplied *prometheus.CounterVec
	PatchFailures  *prometheus.CounterVec
	MergeDuration  prometheus.Histogram
	CacheMisses    prometheus.Counter
	Evictions      prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PatchesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_applied_total",
			Help:      "Patches applied successfully, by operation.",
		}, []string{"operation"}),
		PatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_failures_total",
			Help:      "Patches that failed, by error kind.",
		}, []string{"kind"}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Time to load, patch and optionally store one instance.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Merges skipped because the instance was not cached.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Cached instances evicted because they could not be patched.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PatchesApplied, m.PatchFailures, m.MergeDuration, m.CacheMisses, m.Evictions)
	}
	return m
}

// PatchApplied counts a successful patch.
func (m *Metrics) PatchApplied(op types.PatchOperation) {
	if m == nil {
		return
	}
	m.PatchesApplied.WithLabelValues(string(op)).Inc()
}

// PatchFailed counts a failed patch by the kind of its error.
func (m *Metrics) PatchFailed(err error) {
	if m == nil {
		return
	}
	kind := string(types.PatchErrorKindOf(err))
	if kind == "" {
		kind = "OTHER"
	}
	m.PatchFailures.WithLabelValues(kind).Inc()
}

// ObserveMerge records the duration of a merge that started at start.
func (m *Metrics) ObserveMerge(start time.Time) {
	if m == nil {
		return
	}
	m.MergeDuration.Observe(time.Since(start).Seconds())
}

// CacheMiss counts a merge against an uncached instance.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// Evicted counts an eviction.
func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}
