package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveRequest("read", "ok", 0.01)
	m.ObserveRequest("read", "ok", 0.02)
	m.ObserveRequest("write", "created", 0.01)
	m.AddBytes("out", 5)
	m.AddBytes("out", 0)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.RootEvent("CREATE")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("read", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("write", "created")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Bytes.WithLabelValues("out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RootEvents.WithLabelValues("CREATE")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("list", "ok", 1)
		m.AddBytes("in", 1)
		m.ConnOpened()
		m.ConnClosed()
		m.RootEvent("WRITE")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("list", "not found", 0.5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ftserver_requests_total{op="list",status="not found"} 1`)
}
