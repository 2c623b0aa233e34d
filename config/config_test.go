package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"athensenergy/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultPipeline(), cfg.Pipeline)
	assert.Equal(t, "5250", cfg.Server.Port)
	assert.Equal(t, "database/listings.db", cfg.Server.DBPath)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100, cfg.BatchProcessing.MaxBatchSize)
	assert.Equal(t, 32, cfg.BatchProcessing.QueueSize)
	assert.Equal(t, 3, cfg.BatchProcessing.MaxRetries)
	assert.Equal(t, 5, cfg.BatchProcessing.RetryDelay)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "raw-listings", cfg.Kafka.Topic)
	assert.Zero(t, cfg.Schedule.Interval)
}

func TestLoadConfig_Schedule(t *testing.T) {
	t.Setenv("ANALYSIS_INTERVAL", "6h")
	t.Setenv("ANALYSIS_NEIGHBORHOODS", "Kolonaki,Plaka")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, cfg.Schedule.Interval)
	assert.Equal(t, []string{"Kolonaki", "Plaka"}, cfg.Schedule.Neighborhoods)

	t.Setenv("ANALYSIS_INTERVAL", "-1m")
	_, err = LoadConfig()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig_CustomEnv(t *testing.T) {
	t.Setenv("PRICE_MIN", "1000")
	t.Setenv("PRICE_MAX", "2000000")
	t.Setenv("AREA_MIN", "20")
	t.Setenv("RATIO_OUTLIER_STDDEV", "2.5")
	t.Setenv("WARNING_ONLY_FLAGS", "SUSPICIOUS_ENERGY_DEFAULT,area_out_of_range")
	t.Setenv("GROUPING_STRATEGY", "grid")
	t.Setenv("GRID_ZOOM", "16")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1000.0, cfg.Pipeline.PriceMin)
	assert.Equal(t, 2000000.0, cfg.Pipeline.PriceMax)
	assert.Equal(t, 20.0, cfg.Pipeline.AreaMin)
	assert.Equal(t, 2.5, cfg.Pipeline.RatioOutlierStdDev)
	assert.Equal(t, StrategyGrid, cfg.Pipeline.GroupingStrategy)
	assert.Equal(t, 16, cfg.Pipeline.GridZoom)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)

	warn := cfg.Pipeline.WarningOnly()
	assert.True(t, warn[models.FlagSuspiciousEnergyDefault])
	assert.True(t, warn[models.FlagAreaOutOfRange])
	assert.False(t, warn[models.FlagPriceOutOfRange])
}

func TestLoadConfig_InvalidNumber(t *testing.T) {
	t.Setenv("MAX_GROUP_SIZE", "lots")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsInvertedRange(t *testing.T) {
	t.Setenv("PRICE_MIN", "500")
	t.Setenv("PRICE_MAX", "100")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "price range")
}

func TestLoadConfig_ProfileOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strict.yaml")
	profile := []byte("price_min: 10000\nmax_group_size: 10\nwarning_only_flags:\n  - SUSPICIOUS_ENERGY_DEFAULT\n")
	require.NoError(t, os.WriteFile(path, profile, 0644))

	t.Setenv("PRICE_MIN", "75")
	t.Setenv("AREA_MAX", "500")
	t.Setenv("PIPELINE_PROFILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.Pipeline.PriceMin)
	assert.Equal(t, 10, cfg.Pipeline.MaxGroupSize)
	// Keys absent from the profile keep the env value.
	assert.Equal(t, 500.0, cfg.Pipeline.AreaMax)
	assert.Equal(t, []string{"SUSPICIOUS_ENERGY_DEFAULT"}, cfg.Pipeline.WarningOnlyFlags)
}

func TestLoadConfig_RejectsNaNProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("price_max: .nan\nratio_outlier_stddev: .nan\n"), 0644))
	t.Setenv("PIPELINE_PROFILE", path)

	_, err := LoadConfig()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "price range")
	assert.Contains(t, err.Error(), "RATIO_OUTLIER_STDDEV")
}

func TestLoadConfig_MissingProfile(t *testing.T) {
	t.Setenv("PIPELINE_PROFILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read profile file")
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "custom.yaml")
	p := DefaultPipeline()
	p.MinNeighborhoodSample = 8
	p.GroupingStrategy = StrategyChunked

	require.NoError(t, SaveProfile(path, p))

	loaded := DefaultPipeline()
	require.NoError(t, LoadProfile(path, &loaded))
	assert.Equal(t, 8, loaded.MinNeighborhoodSample)
	assert.Equal(t, StrategyChunked, loaded.GroupingStrategy)
}

func TestPipelineValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Pipeline)
		wantErr string
	}{
		{
			name:   "Defaults are valid",
			mutate: func(p *Pipeline) {},
		},
		{
			name:   "Equal bounds are valid",
			mutate: func(p *Pipeline) { p.AreaMin, p.AreaMax = 50, 50 },
		},
		{
			name:    "Negative price minimum",
			mutate:  func(p *Pipeline) { p.PriceMin = -1 },
			wantErr: "price range",
		},
		{
			name:    "Inverted area range",
			mutate:  func(p *Pipeline) { p.AreaMin, p.AreaMax = 100, 10 },
			wantErr: "area range",
		},
		{
			name:    "Zero stddev threshold",
			mutate:  func(p *Pipeline) { p.RatioOutlierStdDev = 0 },
			wantErr: "RATIO_OUTLIER_STDDEV",
		},
		{
			name:    "NaN price maximum",
			mutate:  func(p *Pipeline) { p.PriceMax = math.NaN() },
			wantErr: "price range",
		},
		{
			name:    "NaN area minimum",
			mutate:  func(p *Pipeline) { p.AreaMin = math.NaN() },
			wantErr: "area range",
		},
		{
			name:    "NaN stddev threshold",
			mutate:  func(p *Pipeline) { p.RatioOutlierStdDev = math.NaN() },
			wantErr: "RATIO_OUTLIER_STDDEV",
		},
		{
			name:    "Infinite stddev threshold",
			mutate:  func(p *Pipeline) { p.RatioOutlierStdDev = math.Inf(1) },
			wantErr: "RATIO_OUTLIER_STDDEV",
		},
		{
			name:   "Unbounded price maximum is valid",
			mutate: func(p *Pipeline) { p.PriceMax = math.Inf(1) },
		},
		{
			name:    "Zero neighborhood sample",
			mutate:  func(p *Pipeline) { p.MinNeighborhoodSample = 0 },
			wantErr: "MIN_NEIGHBORHOOD_SAMPLE",
		},
		{
			name:    "Zero group size",
			mutate:  func(p *Pipeline) { p.MaxGroupSize = 0 },
			wantErr: "MAX_GROUP_SIZE",
		},
		{
			name:    "Zero confidence threshold",
			mutate:  func(p *Pipeline) { p.MinGroupSizeForConfidence = 0 },
			wantErr: "MIN_GROUP_SIZE_FOR_CONFIDENCE",
		},
		{
			name:    "Unknown energy label",
			mutate:  func(p *Pipeline) { p.SuspiciousEnergyDefault = "Z" },
			wantErr: "SUSPICIOUS_ENERGY_DEFAULT",
		},
		{
			name:    "Unknown warning flag",
			mutate:  func(p *Pipeline) { p.WarningOnlyFlags = []string{"NOT_A_FLAG"} },
			wantErr: "unknown flag",
		},
		{
			name:    "Shape flag cannot be demoted",
			mutate:  func(p *Pipeline) { p.WarningOnlyFlags = []string{"INVALID_RECORD_SHAPE"} },
			wantErr: "unknown flag",
		},
		{
			name:    "Unknown strategy",
			mutate:  func(p *Pipeline) { p.GroupingStrategy = "hexagons" },
			wantErr: "GROUPING_STRATEGY",
		},
		{
			name: "Grid zoom out of range",
			mutate: func(p *Pipeline) {
				p.GroupingStrategy = StrategyGrid
				p.GridZoom = 30
			},
			wantErr: "GRID_ZOOM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPipeline()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSuspiciousClass(t *testing.T) {
	p := DefaultPipeline()
	assert.Equal(t, models.EnergyA, p.SuspiciousClass())

	p.SuspiciousEnergyDefault = "a+"
	assert.Equal(t, models.EnergyAPlus, p.SuspiciousClass())
}
