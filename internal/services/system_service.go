package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct the system service.
type SystemServiceDeps struct {
	Health      repositories.HealthRepository
	Version     string
	CommitSHA   string
	Environment string
	Clock       func() time.Time
}

type systemService struct {
	health      repositories.HealthRepository
	version     string
	commitSHA   string
	environment string
	clock       func() time.Time
	startedAt   time.Time
}

// NewSystemService wires dependencies into a concrete SystemService implementation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		health:      deps.Health,
		version:     deps.Version,
		commitSHA:   deps.CommitSHA,
		environment: deps.Environment,
		clock: func() time.Time {
			return clock().UTC()
		},
		startedAt: clock().UTC(),
	}, nil
}

func (s *systemService) Health(ctx context.Context) (domain.SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, err
	}
	s.annotate(&report)
	return report, nil
}

func (s *systemService) Liveness(_ context.Context) domain.SystemHealthReport {
	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		GeneratedAt: s.clock(),
	}
	s.annotate(&report)
	return report
}

func (s *systemService) annotate(report *domain.SystemHealthReport) {
	report.Version = s.version
	report.CommitSHA = s.commitSHA
	report.Environment = s.environment
	report.Uptime = s.clock().Sub(s.startedAt)
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.clock()
	}
}
