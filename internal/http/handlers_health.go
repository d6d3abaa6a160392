package httpx

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler serves liveness when checks is empty and readiness otherwise.
// Checks run concurrently; any failure answers 503.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, body := runHealthChecks(r.Context(), checks)
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			return
		}
		WriteJSON(w, code, body)
	}
}

func runHealthChecks(ctx context.Context, checks map[string]HealthCheck) (int, healthStatus) {
	out := healthStatus{Status: "ok"}
	if len(checks) == 0 {
		return http.StatusOK, out
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	out.Checks = make(map[string]string, len(checks))
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			err := check(ctx)
			result := "ok"
			if err != nil {
				result = "unavailable"
			}
			mu.Lock()
			out.Checks[name] = result
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		out.Status = "unavailable"
		return http.StatusServiceUnavailable, out
	}
	return http.StatusOK, out
}
