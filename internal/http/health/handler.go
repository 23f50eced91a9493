package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	applog "github.com/digitalimmortality/backend/internal/platform/logging"
)

const checkTimeout = 2 * time.Second

// Response is the payload for the health endpoints. Checks is only filled
// by the readiness endpoint.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// Handler is the liveness probe: the process is up and serving.
func Handler(w http.ResponseWriter, _ *http.Request) {
	write(w, http.StatusOK, Response{Status: "healthy"})
}

// Ready returns a readiness probe running every check with a shared
// timeout. Any failing check turns the response into a 503.
func Ready(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		resp := Response{Status: "healthy", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				applog.LogWarn(r.Context(), "readiness check failed", zap.String("check", name), zap.Error(err))
				resp.Checks[name] = "failing"
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		write(w, status, resp)
	}
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
