package aggregate

import (
	"math"
	"sort"

	"athensenergy/server/internal/models"
)

// MedianResult is the outcome of a weighted median computation. When Valid
// is false, Class is EnergyUnknown and Reason explains why.
type MedianResult struct {
	Class       models.EnergyClass
	Valid       bool
	Reason      string
	Weighted    int
	TotalWeight float64
}

// tieTolerance is relative to the total weight so that scaling every area by
// the same factor cannot change which side of W/2 a boundary falls on.
const tieTolerance = 1e-9

// WeightedMedianEnergyClass computes the floor-area weighted median energy
// class. Members without a positive area or a known class do not contribute.
// When the cumulative weight lands exactly on half of the total at a boundary
// between two classes, the worse class is returned.
func WeightedMedianEnergyClass(members []models.PropertyRecord) MedianResult {
	weights := make(map[models.EnergyClass]float64)
	var (
		total    float64
		weighted int
	)
	for _, m := range members {
		if !m.HasEnergyClass() || m.AreaSqm == nil || *m.AreaSqm <= 0 || math.IsInf(*m.AreaSqm, 0) {
			continue
		}
		weights[m.EnergyClass] += *m.AreaSqm
		total += *m.AreaSqm
		weighted++
	}

	if weighted == 0 {
		return MedianResult{Reason: models.ReasonInsufficientData}
	}

	classes := make([]models.EnergyClass, 0, len(weights))
	for c := range weights {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Ordinal() < classes[j].Ordinal() })

	half := total / 2
	eps := total * tieTolerance
	var cumulative float64
	median := classes[len(classes)-1]
	for i, c := range classes {
		cumulative += weights[c]
		if cumulative < half-eps {
			continue
		}
		median = c
		if math.Abs(cumulative-half) <= eps && i+1 < len(classes) {
			median = classes[i+1]
		}
		break
	}

	return MedianResult{
		Class:       median,
		Valid:       true,
		Weighted:    weighted,
		TotalWeight: total,
	}
}

// MedianEnergyClass is the unweighted median over members with a known
// class. For an even count the worse of the two middle classes is returned.
func MedianEnergyClass(members []models.PropertyRecord) (models.EnergyClass, bool) {
	ordinals := make([]int, 0, len(members))
	for _, m := range members {
		if m.HasEnergyClass() {
			ordinals = append(ordinals, m.EnergyClass.Ordinal())
		}
	}
	if len(ordinals) == 0 {
		return models.EnergyUnknown, false
	}
	sort.Ints(ordinals)
	return models.EnergyClass(ordinals[len(ordinals)/2]), true
}
