// Command analyze runs the validation and block aggregation pipeline over a
// JSON or CSV listings file and writes the report files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"athensenergy/server/config"
	"athensenergy/server/internal/geocoding"
	"athensenergy/server/internal/geometry"
	"athensenergy/server/internal/grouping"
	"athensenergy/server/internal/ingest"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
	"athensenergy/server/internal/pipeline"
	"athensenergy/server/internal/report"
)

func main() {
	input := flag.String("input", "", "listings file (.json or .csv)")
	outDir := flag.String("out", "report", "output directory")
	profile := flag.String("profile", "", "YAML pipeline profile, overrides PIPELINE_PROFILE")
	strategy := flag.String("strategy", "", "grouping strategy: neighborhood, grid or chunked")
	saveProfile := flag.String("save-profile", "", "write the effective pipeline settings to this YAML file")
	flag.Parse()

	_ = godotenv.Load()

	logger := observability.NewLogger(os.Getenv("LOG_LEVEL"), "text")
	if err := run(*input, *outDir, *profile, *strategy, *saveProfile, logger); err != nil {
		logger.WithError(err).Fatal("Analysis failed")
	}
}

func run(input, outDir, profile, strategy, saveProfile string, logger *logrus.Logger) error {
	if input == "" {
		return errors.New("-input is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	settings, err := loadSettings(cfg.Pipeline, profile, strategy)
	if err != nil {
		return err
	}
	if saveProfile != "" {
		if err := config.SaveProfile(saveProfile, settings); err != nil {
			return err
		}
	}

	records, err := readListings(input)
	if err != nil {
		return err
	}

	p, err := pipeline.New(settings, grouping.Strategy{}, logger, observability.NewMetricsForTesting(), nil)
	if err != nil {
		return err
	}
	result := p.Run(records)

	groups := make([]models.StoredGroup, len(result.Groups))
	for i := range result.Groups {
		groups[i] = models.StoredGroup{Summary: result.Summaries[i], Members: result.Groups[i].Members}
	}
	var locator geometry.Locator
	if cfg.GeocoderEnabled() {
		locator = geocoding.NewGeocoder(logger, cfg.Geocoder.URL, cfg.Geocoder.CacheDir)
	}
	blocks := geometry.NewBlockMapper(logger, locator).FeatureCollection(result.RunID, groups, result.StartedAt)

	paths, err := report.WriteFiles(outDir, result, blocks)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run_id":   result.RunID,
		"input":    result.InputCount,
		"clean":    result.CleanCount,
		"rejected": result.RejectedCount,
		"groups":   len(result.Groups),
		"files":    strings.Join(paths, ", "),
	}).Info("Report written")
	return nil
}

// loadSettings starts from the environment settings, then applies the
// profile and the strategy flag.
func loadSettings(settings config.Pipeline, profile, strategy string) (config.Pipeline, error) {
	if profile != "" {
		if err := config.LoadProfile(profile, &settings); err != nil {
			return settings, err
		}
	}
	if strategy != "" {
		settings.GroupingStrategy = strategy
	}
	return settings, settings.Validate()
}

func readListings(path string) ([]models.PropertyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listings: %w", err)
	}
	defer f.Close()

	var raws []ingest.RawListing
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		raws, err = ingest.DecodeCSV(f)
	case ".json":
		raws, err = ingest.DecodeJSON(f)
	default:
		return nil, fmt.Errorf("unsupported listings format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return ingest.NormalizeAll(raws), nil
}
