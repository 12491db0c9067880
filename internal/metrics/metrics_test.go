package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementRequests("info", "youtube", "ok")
	m.IncrementRequests("info", "youtube", "ok")
	m.ObserveOptions("tiktok", 2, 1)
	m.IncrementToolProcesses()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("info", "youtube", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimatesUnknown.WithLabelValues("tiktok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolProcesses))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// a second instance on a fresh registry must not collide
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
