package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveProbe("user_scoped", "hit")
	m.ObserveProbe("user_scoped", "hit")
	m.ObserveImport("transaction", 3, 1)
	m.ObserveSync("push", 10, nil)
	m.ObserveSync("push", 0, errors.New("unreachable"))
	m.ObserveRPC("/finance.v1.RecoveryService/Scan", "ok", 20*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.probes.WithLabelValues("user_scoped", "hit")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.importedDocuments.WithLabelValues("transaction")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.importErrors.WithLabelValues("transaction")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.syncRuns.WithLabelValues("push", "error")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.syncDocuments.WithLabelValues("push")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProbe("root_user_id", "empty")
		m.ObserveRecoveryRun("success")
		m.ObserveImport("goal", 1, 0)
		m.ObserveSync("pull", 1, nil)
		m.ObserveRPC("/x", "ok", time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRecoveryRun("partial-success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `finance_recovery_runs_total{state="partial-success"} 1`)
}
