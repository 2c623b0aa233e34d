package pipeline

import (
	"fmt"
	"testing"
	"time"

	"athensenergy/server/config"
	"athensenergy/server/internal/grouping"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newPipeline(t *testing.T, mutate func(p *config.Pipeline)) (*Pipeline, *observability.Metrics) {
	t.Helper()
	settings := config.DefaultPipeline()
	if mutate != nil {
		mutate(&settings)
	}
	logger, _ := test.NewNullLogger()
	metrics := observability.NewMetricsForTesting()

	p, err := New(settings, grouping.Strategy{}, logger, metrics, clockwork.NewFakeClockAt(runTime))
	require.NoError(t, err)
	return p, metrics
}

func flat(id string, area float64, class models.EnergyClass, confirmed bool) models.PropertyRecord {
	return models.PropertyRecord{
		ID:                   id,
		Neighborhood:         "Pangrati",
		AreaSqm:              models.Float(area),
		EnergyClass:          class,
		EnergyClassConfirmed: confirmed,
	}
}

func TestNew_FailsFastOnInvalidSettings(t *testing.T) {
	settings := config.DefaultPipeline()
	settings.PriceMin = 2_000_000
	settings.PriceMax = 1_000

	p, err := New(settings, grouping.Strategy{}, nil, nil, nil)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_ResolvesConfiguredStrategy(t *testing.T) {
	p, _ := newPipeline(t, func(s *config.Pipeline) { s.GroupingStrategy = config.StrategyChunked })
	assert.Equal(t, config.StrategyChunked, p.StrategyName())

	custom, err := New(config.DefaultPipeline(), grouping.Strategy{Key: grouping.ByGeoGrid(15)}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", custom.StrategyName())
}

func TestRun_SuspiciousDefaultExcludedBeforeAggregation(t *testing.T) {
	p, _ := newPipeline(t, nil)

	result := p.Run([]models.PropertyRecord{
		flat("a", 50, models.EnergyA, false),
		flat("c", 50, models.EnergyC, true),
		flat("d", 100, models.EnergyD, true),
	})

	require.Len(t, result.Rejections, 1)
	assert.Equal(t, "a", result.Rejections[0].Record.ID)
	assert.Equal(t, []models.Flag{models.FlagSuspiciousEnergyDefault}, result.Rejections[0].Result.Flags)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, 2, result.Groups[0].Size())
	require.Len(t, result.Summaries, 1)
	require.NotNil(t, result.Summaries[0].WeightedMedianEnergyClass)
	assert.Equal(t, models.EnergyD, *result.Summaries[0].WeightedMedianEnergyClass)
	assert.Equal(t, 150.0, result.Summaries[0].TotalSqm)
}

func TestRun_FilteringChangesTheMedian(t *testing.T) {
	records := []models.PropertyRecord{
		flat("a", 100, models.EnergyA, false),
		flat("c", 50, models.EnergyC, true),
		flat("d", 40, models.EnergyD, true),
	}

	strict, _ := newPipeline(t, nil)
	lenient, _ := newPipeline(t, func(s *config.Pipeline) {
		s.WarningOnlyFlags = []string{string(models.FlagSuspiciousEnergyDefault)}
	})

	filtered := strict.Run(records)
	require.NotNil(t, filtered.Summaries[0].WeightedMedianEnergyClass)
	assert.Equal(t, models.EnergyC, *filtered.Summaries[0].WeightedMedianEnergyClass)

	warned := lenient.Run(records)
	assert.Equal(t, 1, warned.WarnedCount)
	assert.Zero(t, warned.RejectedCount)
	require.NotNil(t, warned.Summaries[0].WeightedMedianEnergyClass)
	assert.Equal(t, models.EnergyA, *warned.Summaries[0].WeightedMedianEnergyClass)
}

func TestRun_ResultBookkeeping(t *testing.T) {
	p, metrics := newPipeline(t, func(s *config.Pipeline) { s.MaxGroupSize = 3 })

	var records []models.PropertyRecord
	for i := 0; i < 7; i++ {
		records = append(records, flat(fmt.Sprintf("p%d", i), float64(60+i), models.EnergyC, true))
	}
	records = append(records,
		models.PropertyRecord{ID: "shape"},
		models.PropertyRecord{ID: "tiny", Neighborhood: "Plaka", AreaSqm: models.Float(4), Price: models.Float(10)},
	)

	result := p.Run(records)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, runTime, result.StartedAt)
	assert.Equal(t, config.StrategyNeighborhood, result.Strategy)
	assert.Equal(t, 9, result.InputCount)
	assert.Equal(t, 7, result.CleanCount)
	assert.Equal(t, 2, result.RejectedCount)
	assert.Len(t, result.Results, 9)

	ids := make([]string, len(result.Groups))
	for i, g := range result.Groups {
		ids[i] = g.ID
		assert.True(t, g.LowConfidence)
	}
	assert.Equal(t, []string{"pangrati", "pangrati#2", "pangrati#3"}, ids)
	for _, s := range result.Summaries {
		assert.Equal(t, models.StatusLowConfidence, s.Status)
	}

	byFlag := result.RejectionsByFlag()
	assert.Equal(t, 1, byFlag[models.FlagInvalidRecordShape])
	assert.Equal(t, 1, byFlag[models.FlagPriceOutOfRange])
	assert.Equal(t, 1, byFlag[models.FlagAreaOutOfRange])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns))
	assert.Equal(t, 9.0, testutil.ToFloat64(metrics.RecordsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsRejected.WithLabelValues(string(models.FlagInvalidRecordShape))))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.GroupsEmitted.WithLabelValues(models.StatusLowConfidence)))
}

func TestRun_EmptyInput(t *testing.T) {
	p, _ := newPipeline(t, nil)

	result := p.Run(nil)

	assert.Zero(t, result.InputCount)
	assert.Empty(t, result.Groups)
	assert.Empty(t, result.Summaries)
	assert.Empty(t, result.Rejections)
}

func TestRun_IsRepeatable(t *testing.T) {
	p, _ := newPipeline(t, nil)
	records := []models.PropertyRecord{
		flat("1", 70, models.EnergyB, true),
		flat("2", 90, models.EnergyE, true),
		{ID: "3", Neighborhood: "Plaka", AreaSqm: models.Float(55), EnergyClass: models.EnergyD},
	}

	first := p.Run(records)
	second := p.Run(records)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.Summaries, second.Summaries)
	assert.Equal(t, first.Results, second.Results)
}
