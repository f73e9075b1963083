package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.AnalysisRequests.WithLabelValues(OutcomeSuccess).Inc()
	m.AnalysisRequests.WithLabelValues(OutcomeSuccess).Inc()
	m.AnalysisRequests.WithLabelValues(OutcomeInvalid).Inc()
	m.CacheEntries.Set(3)
	m.RateLimitHits.WithLabelValues("premium").Inc()
	m.StoreErrors.WithLabelValues("snapshot", "load").Inc()
	m.RPCCallLatency.WithLabelValues("getTransaction").Observe((250 * time.Millisecond).Seconds())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysisRequests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisRequests.WithLabelValues(OutcomeInvalid)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitHits.WithLabelValues("premium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("snapshot", "load")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_analysis_requests_total"])
	assert.True(t, names["test_cache_entries"])
	assert.True(t, names["test_solana_rpc_call_latency_seconds"])
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering the same namespace twice on one registry panics; separate
	// registries must not collide.
	assert.NotPanics(t, func() {
		NewMetrics("dup", prometheus.NewRegistry())
		NewMetrics("dup", prometheus.NewRegistry())
	})
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.RecordsFetched)
	RecordFetch(5, 2)
	assert.Equal(t, before+5, testutil.ToFloat64(DefaultMetrics.RecordsFetched))

	evictions := testutil.ToFloat64(DefaultMetrics.CacheEvictions)
	RecordCacheEvictions(0)
	RecordCacheEvictions(2)
	assert.Equal(t, evictions+2, testutil.ToFloat64(DefaultMetrics.CacheEvictions))

	UpdateWatchedAddresses(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(DefaultMetrics.WatchedAddresses))
}
