package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics("zonewatch")
	b := NewMetrics("zonewatch")

	a.Exchanges.WithLabelValues("ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Exchanges.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Exchanges.WithLabelValues("ok")))
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("zonewatch")
	m.ObserveUpstreamLatency(1500 * time.Millisecond)
	m.GaugeFunc("zonewatch", "sessions", "Stored sessions.", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "zonewatch_upstream_latency_seconds_count 1")
	assert.Contains(t, string(body), "zonewatch_sessions 3")
}
