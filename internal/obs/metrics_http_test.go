package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func healthz(t *testing.T, checks ...Check) (int, healthReport) {
	t.Helper()
	rec := httptest.NewRecorder()
	metricsMux(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var rep healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	return rec.Code, rep
}

func TestHealthz(t *testing.T) {
	down := errors.New("connection refused")

	code, rep := healthz(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", rep.Status)

	code, rep = healthz(t,
		Check{Name: "db", Probe: probe(nil)},
		Check{Name: "redis", Probe: probe(down), Optional: true},
	)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", rep.Status)
	assert.Equal(t, "connection refused", rep.Checks["redis"])

	code, rep = healthz(t,
		Check{Name: "db", Probe: probe(down)},
		Check{Name: "redis", Probe: probe(down), Optional: true},
	)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", rep.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	metricsMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
