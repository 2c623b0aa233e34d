package analysis

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"athensenergy/server/config"
	"athensenergy/server/internal/database"
	"athensenergy/server/internal/grouping"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
	"athensenergy/server/internal/pipeline"
)

// Service runs the pipeline and persists every run it makes.
type Service struct {
	db       *database.Database
	settings config.Pipeline
	logger   *logrus.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

func NewService(db *database.Database, settings config.Pipeline, logger *logrus.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Service {
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		db:       db,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// Settings returns a copy of the configured pipeline settings.
func (s *Service) Settings() config.Pipeline {
	settings := s.settings
	settings.WarningOnlyFlags = append([]string(nil), s.settings.WarningOnlyFlags...)
	return settings
}

// Run analyses records with settings and stores the result. Invalid settings
// return an error wrapping config.ErrInvalidConfig before anything runs.
func (s *Service) Run(settings config.Pipeline, records []models.PropertyRecord) (pipeline.Result, error) {
	p, err := pipeline.New(settings, grouping.Strategy{}, s.logger, s.metrics, s.clock)
	if err != nil {
		return pipeline.Result{}, err
	}

	result := p.Run(records)
	if err := s.db.SaveRun(result); err != nil {
		return result, fmt.Errorf("failed to save analysis run %s: %w", result.RunID, err)
	}
	return result, nil
}

// RunStored analyses the stored listings of one neighborhood, or all of them
// when neighborhood is empty, with the configured settings.
func (s *Service) RunStored(neighborhood string) (pipeline.Result, error) {
	return s.RunStoredWith(s.Settings(), neighborhood)
}

func (s *Service) RunStoredWith(settings config.Pipeline, neighborhood string) (pipeline.Result, error) {
	if err := settings.Validate(); err != nil {
		return pipeline.Result{}, err
	}
	records, err := s.db.GetListings(neighborhood)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to load listings: %w", err)
	}
	return s.Run(settings, records)
}
