package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Validation("ok")
		m.Issued()
		m.Revoked("logout", 1)
		m.Rotated()
		m.StoreError(errors.New("x"))
		m.RoleChange(ResultSuccess)
		m.Login("ok")
		m.ObserveHTTP(http.MethodGet, "GET /healthz", 200, time.Millisecond)
		m.InFlight(1)
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.Validation("ok")
	m.Validation("ok")
	m.Validation("session_revoked")
	m.Revoked("role_change", 3)
	m.Revoked("logout", 0)
	m.StoreError(fmt.Errorf("get: %w", context.DeadlineExceeded))
	m.Login("denied")

	body := scrape(t, m)
	assert.Contains(t, body, `wallmag_session_validations_total{outcome="ok"} 2`)
	assert.Contains(t, body, `wallmag_session_validations_total{outcome="session_revoked"} 1`)
	assert.Contains(t, body, `wallmag_session_revoked_total{reason="role_change"} 3`)
	assert.NotContains(t, body, `reason="logout"`)
	assert.Contains(t, body, `wallmag_session_store_errors_total{class="timeout"} 1`)
	assert.Contains(t, body, `wallmag_auth_logins_total{outcome="denied"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Issued()
	m.ObserveHTTP(http.MethodGet, "GET /healthz", 200, 5*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, "wallmag_session_issued_total 1")
	assert.Contains(t, body, `wallmag_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, "timeout", Classify(context.DeadlineExceeded))
	assert.Equal(t, "canceled", Classify(fmt.Errorf("wrap: %w", context.Canceled)))
	assert.Equal(t, "unavailable", Classify(errors.New("dial tcp: refused")))
}
