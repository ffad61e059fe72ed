package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const healthResponse = `{"status":"ok"}`

// readinessTimeout bounds each dependency probe.
const readinessTimeout = 2 * time.Second

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadinessCheck probes one dependency.
type ReadinessCheck func(ctx context.Context) error

// ReadinessHandler reports 200 when every dependency answers and 503 otherwise.
// GET /readyz.
func ReadinessHandler(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "unavailable"
		}
		WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
