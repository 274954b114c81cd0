package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// readyTimeout bounds all dependency checks of one readiness probe.
const readyTimeout = 5 * time.Second

// HealthChecker is a dependency the readiness probe pings.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlersConfig lists the dependencies behind /ready. A nil checker
// is reported as not_configured and does not fail the probe.
type HealthHandlersConfig struct {
	DBChecker      HealthChecker
	RedisChecker   HealthChecker
	MetricsEnabled bool
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	checkers map[string]HealthChecker
	metrics  bool
	started  time.Time
}

func NewHealthHandlers(cfg HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		checkers: map[string]HealthChecker{
			"database": cfg.DBChecker,
			"redis":    cfg.RedisChecker,
		},
		metrics: cfg.MetricsEnabled,
		started: time.Now(),
	}
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Health handles GET /health. Answering at all means the process is live.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.response(true, map[string]string{"runtime": "ok"}))
}

// Ready handles GET /ready. Configured dependencies are checked in
// parallel; any failure answers 503.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		checks  = make(map[string]string, len(h.checkers)+1)
	)
	for name, checker := range h.checkers {
		if checker == nil {
			checks[name] = "not_configured"
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "ok"
			if err := checker.HealthCheck(ctx); err != nil {
				slog.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
				result = "error"
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = result
			healthy = healthy && result == "ok"
		}()
	}
	wg.Wait()

	if h.metrics {
		checks["metrics"] = "ok"
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, h.response(healthy, checks))
}

func (h *HealthHandlers) response(healthy bool, checks map[string]string) HealthResponse {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	now := time.Now()
	return HealthResponse{
		Status:        status,
		Checks:        checks,
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}
}
