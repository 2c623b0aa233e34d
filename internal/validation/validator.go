package validation

import (
	"math"

	"athensenergy/server/config"
	"athensenergy/server/internal/models"
)

// Validator applies the per-record field checks. It holds no state besides
// its settings, so one instance can be shared across goroutines.
type Validator struct {
	settings    config.Pipeline
	suspicious  models.EnergyClass
	warningOnly map[models.Flag]bool
}

// NewValidator returns a validator for the given settings, or an error
// wrapping config.ErrInvalidConfig.
func NewValidator(settings config.Pipeline) (*Validator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Validator{
		settings:    settings,
		suspicious:  settings.SuspiciousClass(),
		warningOnly: settings.WarningOnly(),
	}, nil
}

// IsRejecting reports whether a flag makes a record invalid.
func (v *Validator) IsRejecting(flag models.Flag) bool {
	if flag == models.FlagInvalidRecordShape {
		return true
	}
	return !v.warningOnly[flag]
}

// Validate checks one record against the configured ranges, its
// neighborhood's ratio statistics and the energy-class evidence rule.
func (v *Validator) Validate(record models.PropertyRecord, stats NeighborhoodStats) models.ValidationResult {
	var flags []models.Flag

	if record.Price != nil && !within(*record.Price, v.settings.PriceMin, v.settings.PriceMax) {
		flags = append(flags, models.FlagPriceOutOfRange)
	}
	if record.AreaSqm != nil && !within(*record.AreaSqm, v.settings.AreaMin, v.settings.AreaMax) {
		flags = append(flags, models.FlagAreaOutOfRange)
	}
	if v.isRatioOutlier(record, stats) {
		flags = append(flags, models.FlagAreaPriceRatioOutlier)
	}
	if record.EnergyClass == v.suspicious && !record.EnergyClassConfirmed {
		flags = append(flags, models.FlagSuspiciousEnergyDefault)
	}

	return v.result(record.ID, flags)
}

// ShapeResult is the result recorded for a record that carries no measure.
func (v *Validator) ShapeResult(record models.PropertyRecord) models.ValidationResult {
	return v.result(record.ID, []models.Flag{models.FlagInvalidRecordShape})
}

func (v *Validator) result(id string, flags []models.Flag) models.ValidationResult {
	flags = models.NewFlagSet(flags...)
	valid := true
	for _, f := range flags {
		if v.IsRejecting(f) {
			valid = false
			break
		}
	}
	return models.ValidationResult{
		RecordID: id,
		IsValid:  valid,
		Flags:    flags,
	}
}

func (v *Validator) isRatioOutlier(record models.PropertyRecord, stats NeighborhoodStats) bool {
	ratio, ok := record.PricePerSqm()
	if !ok {
		return false
	}
	st, ok := stats.For(record)
	if !ok || st.Count < v.settings.MinNeighborhoodSample {
		return false
	}
	if st.StdDev == 0 {
		return false
	}
	return math.Abs(ratio-st.Mean) > v.settings.RatioOutlierStdDev*st.StdDev
}

func within(value, min, max float64) bool {
	return value >= min && value <= max
}
