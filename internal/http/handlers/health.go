package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/carechat/server/internal/logging"
	"go.uber.org/zap"
)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler reports whether every dependency answers.
type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			failed[c.Name] = "unavailable"
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	body := map[string]any{"status": status}
	if len(failed) > 0 {
		body["checks"] = failed
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
