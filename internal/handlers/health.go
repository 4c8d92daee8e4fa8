package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/shopfront/api/internal/domain"
	"github.com/shopfront/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build  services.BuildInfo
	health services.HealthService
	now    func() time.Time
}

// HealthHandlersOption customises HealthHandlers construction.
type HealthHandlersOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to probe responses.
func WithHealthBuildInfo(build services.BuildInfo) HealthHandlersOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthService wires the dependency probe aggregate used by Readyz.
func WithHealthService(svc services.HealthService) HealthHandlersOption {
	return func(h *HealthHandlers) {
		h.health = svc
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthHandlersOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the probe endpoints.
func NewHealthHandlers(opts ...HealthHandlersOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness. It never consults dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptimeSeconds"] = int64(now.Sub(h.build.StartedAt).Seconds())
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type readyzCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

type readyzPayload struct {
	Status      string                        `json:"status"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	GeneratedAt string                        `json:"generatedAt,omitempty"`
	Checks      map[string]readyzCheckPayload `json:"checks"`
	Details     []string                      `json:"details"`
}

// Readyz runs the dependency probes and reports 503 until every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSONResponse(w, http.StatusOK, readyzPayload{
			Status:  domain.HealthStatusOK,
			Checks:  map[string]readyzCheckPayload{},
			Details: []string{},
		})
		return
	}

	report, err := h.health.Check(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzPayload{
			Status:  domain.HealthStatusError,
			Checks:  map[string]readyzCheckPayload{},
			Details: []string{"health: " + err.Error()},
		})
		return
	}

	payload := readyzPayload{
		Status:      report.Status,
		Environment: report.Environment,
		Checks:      make(map[string]readyzCheckPayload, len(report.Checks)),
		Details:     []string{},
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.String()
	}
	if !report.GeneratedAt.IsZero() {
		payload.GeneratedAt = report.GeneratedAt.UTC().Format(time.RFC3339)
	}

	for name, check := range report.Checks {
		entry := readyzCheckPayload{
			Status: check.Status,
			Detail: check.Detail,
			Error:  check.Error,
		}
		if check.Latency > 0 {
			entry.LatencyMS = check.Latency.Milliseconds()
		}
		payload.Checks[name] = entry
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			payload.Details = append(payload.Details, name+": "+check.Error)
		}
	}
	sort.Strings(payload.Details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
