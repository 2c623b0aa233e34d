package config

import (
	"fmt"
	"math"
	"strings"

	"athensenergy/server/internal/models"
)

// Grouping strategies understood by the pipeline.
const (
	StrategyNeighborhood = "neighborhood"
	StrategyGrid         = "grid"
	StrategyChunked      = "chunked"
)

// Pipeline holds every knob of the validation and aggregation run.
type Pipeline struct {
	PriceMin float64 `env:"PRICE_MIN" envDefault:"50" json:"price_min" yaml:"price_min"`
	PriceMax float64 `env:"PRICE_MAX" envDefault:"10000000" json:"price_max" yaml:"price_max"`
	AreaMin  float64 `env:"AREA_MIN" envDefault:"10" json:"area_min" yaml:"area_min"`
	AreaMax  float64 `env:"AREA_MAX" envDefault:"1000" json:"area_max" yaml:"area_max"`

	RatioOutlierStdDev    float64 `env:"RATIO_OUTLIER_STDDEV" envDefault:"3.0" json:"ratio_outlier_stddev" yaml:"ratio_outlier_stddev"`
	MinNeighborhoodSample int     `env:"MIN_NEIGHBORHOOD_SAMPLE" envDefault:"5" json:"min_neighborhood_sample" yaml:"min_neighborhood_sample"`

	SuspiciousEnergyDefault string   `env:"SUSPICIOUS_ENERGY_DEFAULT" envDefault:"A" json:"suspicious_energy_default" yaml:"suspicious_energy_default"`
	WarningOnlyFlags        []string `env:"WARNING_ONLY_FLAGS" envSeparator:"," json:"warning_only_flags" yaml:"warning_only_flags"`

	MaxGroupSize              int `env:"MAX_GROUP_SIZE" envDefault:"15" json:"max_group_size" yaml:"max_group_size"`
	MinGroupSizeForConfidence int `env:"MIN_GROUP_SIZE_FOR_CONFIDENCE" envDefault:"15" json:"min_group_size_for_confidence" yaml:"min_group_size_for_confidence"`

	GroupingStrategy string `env:"GROUPING_STRATEGY" envDefault:"neighborhood" json:"grouping_strategy" yaml:"grouping_strategy"`
	GridZoom         int    `env:"GRID_ZOOM" envDefault:"17" json:"grid_zoom" yaml:"grid_zoom"`
}

// DefaultPipeline returns the settings used when nothing is configured.
func DefaultPipeline() Pipeline {
	return Pipeline{
		PriceMin:                  50,
		PriceMax:                  10_000_000,
		AreaMin:                   10,
		AreaMax:                   1000,
		RatioOutlierStdDev:        3.0,
		MinNeighborhoodSample:     5,
		SuspiciousEnergyDefault:   "A",
		MaxGroupSize:              15,
		MinGroupSizeForConfidence: 15,
		GroupingStrategy:          StrategyNeighborhood,
		GridZoom:                  17,
	}
}

// Validate fails fast on settings that would make the run meaningless.
func (p Pipeline) Validate() error {
	var problems []string

	if !orderedRange(p.PriceMin, p.PriceMax) {
		problems = append(problems, fmt.Sprintf("price range [%g, %g] is not ordered", p.PriceMin, p.PriceMax))
	}
	if !orderedRange(p.AreaMin, p.AreaMax) {
		problems = append(problems, fmt.Sprintf("area range [%g, %g] is not ordered", p.AreaMin, p.AreaMax))
	}
	if math.IsNaN(p.RatioOutlierStdDev) || math.IsInf(p.RatioOutlierStdDev, 0) || p.RatioOutlierStdDev <= 0 {
		problems = append(problems, "RATIO_OUTLIER_STDDEV must be a positive number")
	}
	if p.MinNeighborhoodSample < 1 {
		problems = append(problems, "MIN_NEIGHBORHOOD_SAMPLE must be at least 1")
	}
	if p.MaxGroupSize < 1 {
		problems = append(problems, "MAX_GROUP_SIZE must be at least 1")
	}
	if p.MinGroupSizeForConfidence < 1 {
		problems = append(problems, "MIN_GROUP_SIZE_FOR_CONFIDENCE must be at least 1")
	}
	if _, err := models.ParseEnergyClass(p.SuspiciousEnergyDefault); err != nil {
		problems = append(problems, fmt.Sprintf("SUSPICIOUS_ENERGY_DEFAULT: %v", err))
	}
	for _, name := range p.WarningOnlyFlags {
		if !models.IsValidationFlag(models.Flag(normalizeFlagName(name))) {
			problems = append(problems, fmt.Sprintf("WARNING_ONLY_FLAGS: unknown flag %q", name))
		}
	}
	switch p.GroupingStrategy {
	case StrategyNeighborhood, StrategyChunked:
	case StrategyGrid:
		if p.GridZoom < 1 || p.GridZoom > 22 {
			problems = append(problems, "GRID_ZOOM must be between 1 and 22")
		}
	default:
		problems = append(problems, fmt.Sprintf("GROUPING_STRATEGY: unknown strategy %q", p.GroupingStrategy))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// orderedRange reports whether [min, max] is a usable non-negative range.
// NaN compares false against everything, so it is ruled out explicitly.
func orderedRange(lo, hi float64) bool {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) {
		return false
	}
	return lo >= 0 && lo <= hi
}

// SuspiciousClass returns the parsed suspicious default; call Validate first.
func (p Pipeline) SuspiciousClass() models.EnergyClass {
	class, err := models.ParseEnergyClass(p.SuspiciousEnergyDefault)
	if err != nil {
		return models.EnergyUnknown
	}
	return class
}

// WarningOnly returns the set of flags demoted from rejecting to warning.
func (p Pipeline) WarningOnly() map[models.Flag]bool {
	out := make(map[models.Flag]bool, len(p.WarningOnlyFlags))
	for _, name := range p.WarningOnlyFlags {
		out[models.Flag(normalizeFlagName(name))] = true
	}
	return out
}

func normalizeFlagName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
