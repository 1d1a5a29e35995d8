package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveTurn("new")
	m.ObserveTurn("new")
	m.ObserveTurn("follow_up")
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveOracle("classifier", 120*time.Millisecond)
	m.ObserveApproval(true)
	m.ObserveApproval(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("follow_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheReqs.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheReqs.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvals.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvals.WithLabelValues("rejected")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["buyerd_turns_total"])
	assert.True(t, names["buyerd_oracle_seconds"])
}
