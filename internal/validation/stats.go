package validation

import (
	"math"
	"sort"
	"sync"

	"athensenergy/server/internal/models"
)

// RatioStats describes the price-per-m² distribution of one neighborhood.
type RatioStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// NeighborhoodStats maps a normalized neighborhood key to its ratio stats.
type NeighborhoodStats map[string]RatioStats

// For returns the stats of the record's neighborhood. Records without a
// neighborhood never have stats.
func (s NeighborhoodStats) For(record models.PropertyRecord) (RatioStats, bool) {
	key := record.NeighborhoodKey()
	if key == "" {
		return RatioStats{}, false
	}
	st, ok := s[key]
	return st, ok
}

// Neighborhoods returns the keys in sorted order.
func (s NeighborhoodStats) Neighborhoods() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ComputeNeighborhoodStats collects price/area ratios of every shape-valid
// record with positive price and area and reduces them per neighborhood.
// The standard deviation is the population one.
func ComputeNeighborhoodStats(records []models.PropertyRecord) NeighborhoodStats {
	buckets := make(map[string][]float64)
	for _, r := range records {
		if !r.HasAnyMeasure() {
			continue
		}
		key := r.NeighborhoodKey()
		if key == "" {
			continue
		}
		ratio, ok := r.PricePerSqm()
		if !ok {
			continue
		}
		buckets[key] = append(buckets[key], ratio)
	}

	stats := make(NeighborhoodStats, len(buckets))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for key, ratios := range buckets {
		wg.Add(1)
		go func(key string, ratios []float64) {
			defer wg.Done()
			st := reduceRatios(ratios)
			mu.Lock()
			stats[key] = st
			mu.Unlock()
		}(key, ratios)
	}
	wg.Wait()

	return stats
}

func reduceRatios(ratios []float64) RatioStats {
	n := len(ratios)
	if n == 0 {
		return RatioStats{}
	}

	var sum float64
	for _, v := range ratios {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range ratios {
		d := v - mean
		sq += d * d
	}

	return RatioStats{
		Count:  n,
		Mean:   mean,
		StdDev: math.Sqrt(sq / float64(n)),
	}
}
