package handlers

import (
	"net/http"
	"time"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/platform/httpx"
	"github.com/sellerhub/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs the probe handlers. A nil system service
// degrades to a static liveness response.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    string(domain.HealthStatusOK),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	report := h.system.Liveness(r.Context())
	httpx.WriteJSON(w, http.StatusOK, healthPayload(report))
}

// Readyz probes dependencies and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": string(domain.HealthStatusOK)})
		return
	}
	report, err := h.system.Health(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.Internal("health_collect_failed", "failed to collect dependency health"))
		return
	}
	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, healthPayload(report))
}

func healthPayload(report domain.SystemHealthReport) map[string]any {
	payload := map[string]any{
		"status":    string(report.Status),
		"timestamp": report.GeneratedAt.UTC().Format(time.RFC3339),
		"uptime":    report.Uptime.String(),
	}
	if report.Version != "" {
		payload["version"] = report.Version
	}
	if report.Environment != "" {
		payload["environment"] = report.Environment
	}
	if len(report.Checks) > 0 {
		checks := make(map[string]any, len(report.Checks))
		for name, check := range report.Checks {
			entry := map[string]any{
				"status":     string(check.Status),
				"latency_ms": check.Latency.Milliseconds(),
			}
			if check.Error != "" {
				entry["error"] = check.Error
			}
			checks[name] = entry
		}
		payload["checks"] = checks
	}
	return payload
}
