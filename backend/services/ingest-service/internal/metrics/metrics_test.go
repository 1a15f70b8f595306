package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ObserveCycle("success", 2*time.Second)
	m.ObserveCycle("failure", time.Second)
	m.ObserveCycle("success", time.Second)
	m.AddPointsEmitted("nisource:cost", 3)
	m.AddRowsSkipped("nisource:cost", 1)
	m.ObservePortalRequest("/login", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pointsEmitted.WithLabelValues("nisource:cost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.portalRequests.WithLabelValues("/login", "ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gasledger_ingest_cycles_total")
	assert.Contains(t, string(body), `gasledger_ingest_rows_skipped_total{series="nisource:cost"} 1`)
}
