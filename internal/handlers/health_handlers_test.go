package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/shopfront/api/internal/domain"
	"github.com/shopfront/api/internal/services"
)

type stubHealthService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthService) Check(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.HealthService = (*stubHealthService)(nil)

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return start.Add(30 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	decodeBody(t, rr, &body)
	for field, want := range map[string]any{
		"status":        domain.HealthStatusOK,
		"version":       "1.0.0",
		"commitSha":     "abc123",
		"environment":   "prod",
		"uptimeSeconds": float64(30),
	} {
		if body[field] != want {
			t.Fatalf("expected %s=%v, got %v", field, want, body[field])
		}
	}
}

func runReadyz(t *testing.T, report domain.SystemHealthReport) *httptest.ResponseRecorder {
	t.Helper()

	now := time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC)
	handlers := NewHealthHandlers(
		WithHealthService(&stubHealthService{report: report}),
		WithHealthClock(func() time.Time { return now }),
	)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rr
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC)
	rr := runReadyz(t, domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Environment: "prod",
		Uptime:      time.Minute,
		GeneratedAt: now,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond, CheckedAt: now},
			"catalog":   {Status: domain.HealthStatusOK, Latency: 40 * time.Millisecond, CheckedAt: now},
		},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
		Details []string `json:"details"`
	}
	decodeBody(t, rr, &body)

	if body.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if len(body.Details) != 0 {
		t.Fatalf("expected no details, got %v", body.Details)
	}
	if body.Checks["firestore"].Status != domain.HealthStatusOK {
		t.Fatalf("expected firestore status ok, got %s", body.Checks["firestore"].Status)
	}
}

func TestHealthHandlersReadyzFailure(t *testing.T) {
	rr := runReadyz(t, domain.SystemHealthReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]domain.SystemHealthCheck{
			"catalog": {Status: domain.HealthStatusDegraded, Error: "upstream status 503"},
		},
	})

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var body struct {
		Status  string   `json:"status"`
		Details []string `json:"details"`
	}
	decodeBody(t, rr, &body)

	if body.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", body.Status)
	}
	if len(body.Details) != 1 || body.Details[0] != "catalog: upstream status 503" {
		t.Fatalf("expected details with catalog failure, got %v", body.Details)
	}
}
