package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PatchApplied(types.PatchReplace)
	m.PatchApplied(types.PatchReplace)
	m.PatchApplied(types.PatchAddItem)
	m.PatchFailed(&types.PatchOperationError{Kind: types.KindCardinality})
	m.PatchFailed(errors.New("plain"))
	m.CacheMiss()
	m.Evicted()
	m.ObserveMerge(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PatchesApplied.WithLabelValues("REPLACE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchesApplied.WithLabelValues("ADD_ITEM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchFailures.WithLabelValues("CARDINALITY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchFailures.WithLabelValues("OTHER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))

	count, err := testutil.GatherAndCount(reg, "patchcache_merge_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PatchApplied(types.PatchRemoveItem)
		m.PatchFailed(errors.New("x"))
		m.CacheMiss()
		m.Evicted()
		m.ObserveMerge(time.Now())
	})
}

func TestNewWithoutRegisterer(t *testing.T) {
	m := New(nil)
	m.CacheMiss()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
}
