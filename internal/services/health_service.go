package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/shopfront/api/internal/domain"
	"github.com/shopfront/api/internal/repositories"
)

var errHealthRepositoryRequired = errors.New("health service: repository is required")

// BuildInfo describes the running binary for health reporting.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthServiceDeps lists the collaborators for NewHealthService.
type HealthServiceDeps struct {
	Repo  repositories.HealthRepository
	Build BuildInfo
	Clock func() time.Time
}

type healthService struct {
	repo  repositories.HealthRepository
	build BuildInfo
	now   func() time.Time
}

// NewHealthService wraps the dependency probe repository with build metadata.
func NewHealthService(deps HealthServiceDeps) (HealthService, error) {
	if deps.Repo == nil {
		return nil, errHealthRepositoryRequired
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &healthService{repo: deps.Repo, build: deps.Build, now: now}, nil
}

func (s *healthService) Check(ctx context.Context) (domain.SystemHealthReport, error) {
	report, err := s.repo.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, err
	}
	report.Environment = s.build.Environment
	if !s.build.StartedAt.IsZero() {
		report.Uptime = s.now().Sub(s.build.StartedAt)
	}
	return report, nil
}
