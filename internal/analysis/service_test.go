package analysis

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"athensenergy/server/config"
	"athensenergy/server/internal/database"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
)

func newTestService(t *testing.T) (*Service, *database.Database, *clockwork.FakeClock) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC))
	return NewService(db, config.DefaultPipeline(), logger, observability.NewMetricsForTesting(), clock), db, clock
}

func listing(id, nb string, price, area float64, class models.EnergyClass) models.PropertyRecord {
	return models.PropertyRecord{
		ID:           id,
		Neighborhood: nb,
		Price:        models.Float(price),
		AreaSqm:      models.Float(area),
		EnergyClass:  class,
	}
}

func TestRunPersistsResult(t *testing.T) {
	s, db, clock := newTestService(t)

	records := []models.PropertyRecord{
		listing("a", "Pangrati", 150000, 50, models.EnergyA),
		listing("b", "Pangrati", 160000, 50, models.EnergyC),
		listing("c", "Pangrati", 320000, 100, models.EnergyD),
		listing("d", "Pangrati", 20, 60, models.EnergyB),
	}
	records[0].EnergyClassConfirmed = true

	result, err := s.Run(s.Settings(), records)
	require.NoError(t, err)
	assert.Equal(t, 3, result.CleanCount)
	assert.Equal(t, 1, result.RejectedCount)

	run, err := db.GetRun(result.RunID)
	require.NoError(t, err)
	assert.True(t, run.StartedAt.Equal(clock.Now()))
	assert.Equal(t, 4, run.InputCount)
	assert.Equal(t, 1, run.GroupCount)

	groups, err := db.GetRunGroups(result.RunID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].Summary.WeightedMedianEnergyClass)
	assert.Equal(t, models.EnergyD, *groups[0].Summary.WeightedMedianEnergyClass)

	rejections, err := db.GetRunRejections(result.RunID)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, "d", rejections[0].Record.ID)
}

func TestRunRejectsInvalidSettings(t *testing.T) {
	s, db, _ := newTestService(t)

	settings := s.Settings()
	settings.PriceMin = 500
	settings.PriceMax = 100

	_, err := s.Run(settings, []models.PropertyRecord{listing("a", "Plaka", 100000, 50, models.EnergyB)})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = s.RunStoredWith(settings, "")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunStored(t *testing.T) {
	s, db, _ := newTestService(t)

	require.NoError(t, db.Gorm().Transaction(func(tx *gorm.DB) error {
		return database.UpsertListings(tx, []models.PropertyRecord{
			listing("k1", "Kolonaki", 400000, 80, models.EnergyB),
			listing("k2", "Kolonaki", 450000, 90, models.EnergyC),
			listing("p1", "Plaka", 300000, 70, models.EnergyE),
		})
	}))

	result, err := s.RunStored("kolonaki")
	require.NoError(t, err)
	assert.Equal(t, 2, result.InputCount)

	result, err = s.RunStored("")
	require.NoError(t, err)
	assert.Equal(t, 3, result.InputCount)
	assert.Len(t, result.Groups, 2)

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSettingsReturnsCopy(t *testing.T) {
	s, _, _ := newTestService(t)
	s.settings.WarningOnlyFlags = []string{string(models.FlagSuspiciousEnergyDefault)}

	settings := s.Settings()
	settings.WarningOnlyFlags[0] = "CHANGED"
	settings.PriceMax = 1

	assert.Equal(t, string(models.FlagSuspiciousEnergyDefault), s.Settings().WarningOnlyFlags[0])
	assert.Equal(t, float64(10_000_000), s.Settings().PriceMax)
}
