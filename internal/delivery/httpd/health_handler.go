package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

const pingTimeout = 2 * time.Second

func (h *Handler) ping(ctx context.Context, p Pinger, name string) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
		return false
	}
	return true
}

// HealthCheck reports 503 when either store is unreachable, since every
// submission would fail closed.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := models.HealthCheckResponse{
		Status:    "healthy",
		Ledger:    h.ping(ctx, h.ledger, "ledger"),
		Window:    h.ping(ctx, h.window, "window"),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}

	status := http.StatusOK
	if !resp.Ledger || !resp.Window {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func (h *Handler) GetServiceStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"service":    "submission-service",
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"started_at": h.startedAt.UTC(),
	}
	if h.status != nil {
		resp["worker"] = h.status.GetStats()
	}

	writeSuccess(w, resp)
}
