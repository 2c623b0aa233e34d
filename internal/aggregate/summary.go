package aggregate

import (
	"sort"
	"sync"

	"athensenergy/server/internal/models"
)

// Completeness keys reported per group.
const (
	FieldPrice       = "price"
	FieldArea        = "area_sqm"
	FieldEnergyClass = "energy_class"
	FieldCoordinates = "coordinates"
)

// Summarize derives the aggregate view of one group.
func Summarize(group models.Group) models.GroupSummary {
	summary := models.GroupSummary{
		GroupID:         group.ID,
		BaseKey:         group.BaseKey,
		MemberCount:     group.Size(),
		LowConfidence:   group.LowConfidence,
		EnergyBreakdown: make(map[string]int),
		Completeness:    completeness(group.Members),
	}

	median := WeightedMedianEnergyClass(group.Members)
	summary.WeightedMembers = median.Weighted
	switch {
	case !median.Valid:
		summary.Status = models.StatusInsufficientData
		summary.Reason = median.Reason
	case group.LowConfidence:
		summary.Status = models.StatusLowConfidence
	default:
		summary.Status = models.StatusValidated
	}
	if median.Valid {
		class := median.Class
		summary.WeightedMedianEnergyClass = &class
	}
	if class, ok := MedianEnergyClass(group.Members); ok {
		summary.MedianEnergyClass = &class
	}

	var prices, areas, ratios []float64
	for _, m := range group.Members {
		if m.HasEnergyClass() {
			summary.EnergyBreakdown[m.EnergyClass.String()]++
		}
		if m.Price != nil && *m.Price > 0 {
			prices = append(prices, *m.Price)
		}
		if m.AreaSqm != nil && *m.AreaSqm > 0 {
			areas = append(areas, *m.AreaSqm)
			summary.TotalSqm += *m.AreaSqm
		}
		if r, ok := m.PricePerSqm(); ok {
			ratios = append(ratios, r)
		}
	}

	summary.PriceRange = valueRange(prices)
	summary.AreaRange = valueRange(areas)
	summary.AvgPricePerSqm = mean(ratios)
	summary.MedianPricePerSqm = medianOf(ratios)

	return summary
}

// SummarizeAll summarizes groups concurrently and returns the summaries in
// group order.
func SummarizeAll(groups []models.Group) []models.GroupSummary {
	out := make([]models.GroupSummary, len(groups))
	var wg sync.WaitGroup
	for i := range groups {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = Summarize(groups[i])
		}(i)
	}
	wg.Wait()
	return out
}

func completeness(members []models.PropertyRecord) map[string]float64 {
	out := map[string]float64{
		FieldPrice:       0,
		FieldArea:        0,
		FieldEnergyClass: 0,
		FieldCoordinates: 0,
	}
	if len(members) == 0 {
		return out
	}

	for _, m := range members {
		if m.HasPrice() {
			out[FieldPrice]++
		}
		if m.HasArea() {
			out[FieldArea]++
		}
		if m.HasEnergyClass() {
			out[FieldEnergyClass]++
		}
		if m.HasCoordinates() {
			out[FieldCoordinates]++
		}
	}
	n := float64(len(members))
	for k := range out {
		out[k] /= n
	}
	return out
}

func valueRange(values []float64) models.ValueRange {
	if len(values) == 0 {
		return models.ValueRange{}
	}
	r := models.ValueRange{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	r.Avg = mean(values)
	return r
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func medianOf(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
