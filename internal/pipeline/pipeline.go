package pipeline

import (
	"time"

	"athensenergy/server/config"
	"athensenergy/server/internal/aggregate"
	"athensenergy/server/internal/grouping"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
	"athensenergy/server/internal/validation"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Result is everything one run produces. Rejections and Results are in input
// order; Groups and Summaries share the same order.
type Result struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Strategy  string          `json:"strategy"`
	Settings  config.Pipeline `json:"settings"`

	InputCount    int `json:"input_count"`
	CleanCount    int `json:"clean_count"`
	RejectedCount int `json:"rejected_count"`
	WarnedCount   int `json:"warned_count"`

	Groups     []models.Group               `json:"groups"`
	Summaries  []models.GroupSummary        `json:"summaries"`
	Rejections []models.Rejection           `json:"rejections"`
	Results    []models.ValidationResult    `json:"validation_results"`
	Stats      validation.NeighborhoodStats `json:"neighborhood_stats"`
}

// RejectionsByFlag counts rejected records per flag. A record with several
// flags is counted once under each.
func (r Result) RejectionsByFlag() map[models.Flag]int {
	out := make(map[models.Flag]int)
	for _, rej := range r.Rejections {
		for _, f := range rej.Result.Flags {
			out[f]++
		}
	}
	return out
}

// Pipeline runs filter, grouping and aggregation over a batch of records.
// Validation always completes before any group is formed.
type Pipeline struct {
	settings  config.Pipeline
	strategy  grouping.Strategy
	validator *validation.Validator
	filter    *validation.Filter
	grouper   *grouping.Grouper
	logger    *logrus.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
}

// New validates settings and wires the stages. A zero strategy selects the
// one named in settings.
func New(settings config.Pipeline, strategy grouping.Strategy, logger *logrus.Logger, metrics *observability.Metrics, clock clockwork.Clock) (*Pipeline, error) {
	validator, err := validation.NewValidator(settings)
	if err != nil {
		return nil, err
	}

	if strategy.Key == nil {
		strategy, err = grouping.StrategyFor(settings)
		if err != nil {
			return nil, err
		}
	}
	if strategy.Name == "" {
		strategy.Name = "custom"
	}

	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Pipeline{
		settings:  settings,
		strategy:  strategy,
		validator: validator,
		filter:    validation.NewFilter(validator, logger),
		grouper:   grouping.NewGrouper(settings),
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
	}, nil
}

func (p *Pipeline) Settings() config.Pipeline {
	return p.settings
}

func (p *Pipeline) StrategyName() string {
	return p.strategy.Name
}

// Run never fails on bad input; problems surface as rejections and flags.
func (p *Pipeline) Run(records []models.PropertyRecord) Result {
	start := p.clock.Now()
	runID := uuid.NewString()

	p.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"records":  len(records),
		"strategy": p.strategy.Name,
	}).Info("Starting analysis run")

	filtered := p.filter.Filter(records)
	groups := p.grouper.Apply(filtered.Clean, p.strategy)
	summaries := aggregate.SummarizeAll(groups)

	result := Result{
		RunID:         runID,
		StartedAt:     start,
		Strategy:      p.strategy.Name,
		Settings:      p.settings,
		InputCount:    len(records),
		CleanCount:    len(filtered.Clean),
		RejectedCount: len(filtered.Rejected),
		WarnedCount:   len(filtered.Warned()),
		Groups:        groups,
		Summaries:     summaries,
		Rejections:    filtered.Rejected,
		Results:       filtered.Results,
		Stats:         filtered.Stats,
	}
	result.Duration = p.clock.Since(start)

	p.record(result)

	p.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"clean":    result.CleanCount,
		"rejected": result.RejectedCount,
		"warned":   result.WarnedCount,
		"groups":   len(groups),
		"duration": result.Duration.String(),
	}).Info("Finished analysis run")

	return result
}

func (p *Pipeline) record(result Result) {
	p.metrics.PipelineRuns.Inc()
	p.metrics.PipelineRunDuration.Observe(result.Duration.Seconds())
	p.metrics.RecordsProcessed.Add(float64(result.InputCount))

	for _, rej := range result.Rejections {
		for _, f := range rej.Result.Flags {
			if p.validator.IsRejecting(f) {
				p.metrics.RecordsRejected.WithLabelValues(string(f)).Inc()
			}
		}
	}
	for _, res := range result.Results {
		if !res.IsValid {
			continue
		}
		for _, f := range res.Flags {
			p.metrics.RecordsWarned.WithLabelValues(string(f)).Inc()
		}
	}
	for _, s := range result.Summaries {
		p.metrics.GroupsEmitted.WithLabelValues(s.Status).Inc()
	}
}
