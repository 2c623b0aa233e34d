package validation

import (
	"athensenergy/server/internal/models"

	"github.com/sirupsen/logrus"
)

// FilterResult partitions one batch of records. Clean and Rejected keep the
// input order; Results holds one entry per input record.
type FilterResult struct {
	Clean    []models.PropertyRecord   `json:"clean"`
	Rejected []models.Rejection        `json:"rejected"`
	Results  []models.ValidationResult `json:"results"`
	Stats    NeighborhoodStats         `json:"neighborhood_stats"`
}

// Warned returns the accepted records' results that still carry flags.
func (r FilterResult) Warned() []models.ValidationResult {
	var out []models.ValidationResult
	for _, res := range r.Results {
		if res.IsValid && len(res.Flags) > 0 {
			out = append(out, res)
		}
	}
	return out
}

// Filter runs the two-pass outlier filter: neighborhood statistics over the
// whole batch first, then per-record validation against the final stats.
type Filter struct {
	validator *Validator
	logger    *logrus.Logger
}

func NewFilter(validator *Validator, logger *logrus.Logger) *Filter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Filter{
		validator: validator,
		logger:    logger,
	}
}

// Filter never fails; bad records end up in the rejection log.
func (f *Filter) Filter(records []models.PropertyRecord) FilterResult {
	candidates := make([]models.PropertyRecord, 0, len(records))
	for _, r := range records {
		if r.HasAnyMeasure() {
			candidates = append(candidates, r)
		}
	}

	stats := ComputeNeighborhoodStats(candidates)

	result := FilterResult{
		Clean:   make([]models.PropertyRecord, 0, len(candidates)),
		Results: make([]models.ValidationResult, 0, len(records)),
		Stats:   stats,
	}

	for _, r := range records {
		var res models.ValidationResult
		if !r.HasAnyMeasure() {
			res = f.validator.ShapeResult(r)
			f.logger.WithFields(logrus.Fields{
				"record_id":    r.ID,
				"neighborhood": r.Neighborhood,
				"flag":         models.FlagInvalidRecordShape,
			}).Warn("Dropping record without price, area or energy class")
		} else {
			res = f.validator.Validate(r, stats)
		}

		result.Results = append(result.Results, res)
		if res.IsValid {
			result.Clean = append(result.Clean, r)
			continue
		}

		result.Rejected = append(result.Rejected, models.Rejection{Record: r, Result: res})
		if !res.Has(models.FlagInvalidRecordShape) {
			f.logger.WithFields(logrus.Fields{
				"record_id":    r.ID,
				"neighborhood": r.Neighborhood,
				"flags":        res.Flags,
			}).Debug("Rejected record")
		}
	}

	f.logger.WithFields(logrus.Fields{
		"total":         len(records),
		"clean":         len(result.Clean),
		"rejected":      len(result.Rejected),
		"neighborhoods": len(stats),
	}).Info("Filtered records")

	return result
}
