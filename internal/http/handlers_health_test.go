package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		method   string
		wantBody string
	}{
		{http.MethodGet, healthResponse},
		{http.MethodHead, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()

			healthHandler(rec, httptest.NewRequest(tt.method, "/healthz", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

type readinessBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serveReadiness(t *testing.T, checks map[string]ReadinessCheck) (int, readinessBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	ReadinessHandler(checks, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body readinessBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadinessHandler_DatabasePing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checks := map[string]ReadinessCheck{
		"postgres": db.PingContext,
		"redis":    func(context.Context) error { return nil },
	}

	mock.ExpectPing()
	code, body := serveReadiness(t, checks)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, body.Checks)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	code, body = serveReadiness(t, checks)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "unavailable", body.Checks["postgres"])
	assert.Equal(t, "ok", body.Checks["redis"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadinessHandler_NoChecks(t *testing.T) {
	code, body := serveReadiness(t, nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestReadinessHandler_ErrorsDoNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp 10.1.2.3:6379: i/o timeout") },
	}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.1.2.3")
}
