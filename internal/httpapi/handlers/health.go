package handlers

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"upscaled/internal/httpkit"
)

const healthCheckTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also probes every configured
// dependency and reports "degraded" when one fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "upscaled",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"admission": {"status": "ok", "max_jobs": h.maxJobs},
	}

	if h.postgres != nil {
		checks["postgres"] = probe(ctx, h.postgres.Ping)
	}
	if h.redis != nil {
		checks["redis"] = probe(ctx, h.redis.Ping)
	}
	if h.sp != nil {
		c := probe(ctx, h.sp.Check)
		c["provider"] = h.sp.Provider()
		checks["storage"] = c
	}
	if h.program != "" {
		checks["worker"] = h.checkWorker()
	}

	return checks
}

func probe(ctx context.Context, ping func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkWorker() map[string]any {
	result := map[string]any{"status": "ok", "program": h.program}
	path, err := exec.LookPath(h.program)
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
		return result
	}
	result["path"] = path
	return result
}
