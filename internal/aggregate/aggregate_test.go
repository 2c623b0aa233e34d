package aggregate

import (
	"fmt"
	"math/rand"
	"testing"

	"athensenergy/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id string, area float64, class models.EnergyClass) models.PropertyRecord {
	r := models.PropertyRecord{ID: id, EnergyClass: class, EnergyClassConfirmed: true}
	if area != 0 {
		r.AreaSqm = models.Float(area)
	}
	return r
}

func mixedBlock() []models.PropertyRecord {
	return []models.PropertyRecord{
		member("1", 72, models.EnergyB),
		member("2", 55, models.EnergyD),
		member("3", 140, models.EnergyC),
		member("4", 90, models.EnergyAPlus),
		member("5", 63, models.EnergyE),
		member("6", 48, models.EnergyC),
		member("7", 110, models.EnergyF),
		member("8", 85, models.EnergyBPlus),
		member("9", 77, models.EnergyD),
	}
}

func TestWeightedMedianEnergyClass(t *testing.T) {
	tests := []struct {
		name     string
		members  []models.PropertyRecord
		expected models.EnergyClass
	}{
		{
			name:     "Single member",
			members:  []models.PropertyRecord{member("1", 80, models.EnergyE)},
			expected: models.EnergyE,
		},
		{
			name: "Larger flat dominates",
			members: []models.PropertyRecord{
				member("1", 50, models.EnergyC),
				member("2", 100, models.EnergyD),
			},
			expected: models.EnergyD,
		},
		{
			name: "Exact half at class boundary picks the worse class",
			members: []models.PropertyRecord{
				member("1", 50, models.EnergyA),
				member("2", 50, models.EnergyC),
			},
			expected: models.EnergyC,
		},
		{
			name: "Boundary tie with a third class",
			members: []models.PropertyRecord{
				member("1", 50, models.EnergyA),
				member("2", 50, models.EnergyC),
				member("3", 100, models.EnergyD),
			},
			expected: models.EnergyD,
		},
		{
			name: "Cumulative passes half inside a class",
			members: []models.PropertyRecord{
				member("1", 30, models.EnergyB),
				member("2", 60, models.EnergyC),
				member("3", 40, models.EnergyD),
			},
			expected: models.EnergyC,
		},
		{
			name: "Members without area are ignored",
			members: []models.PropertyRecord{
				member("1", 0, models.EnergyAPlus),
				member("2", 0, models.EnergyAPlus),
				member("3", 70, models.EnergyE),
			},
			expected: models.EnergyE,
		},
		{
			name: "Members without class are ignored",
			members: []models.PropertyRecord{
				member("1", 500, models.EnergyUnknown),
				member("2", 40, models.EnergyB),
			},
			expected: models.EnergyB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := WeightedMedianEnergyClass(tt.members)
			require.True(t, res.Valid)
			assert.Equal(t, tt.expected, res.Class)
			assert.Empty(t, res.Reason)
		})
	}
}

func TestWeightedMedianEnergyClass_InsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		members []models.PropertyRecord
	}{
		{"No members", nil},
		{"No areas", []models.PropertyRecord{member("1", 0, models.EnergyC)}},
		{"No classes", []models.PropertyRecord{member("1", 80, models.EnergyUnknown)}},
		{"Negative area", []models.PropertyRecord{member("1", -20, models.EnergyC)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := WeightedMedianEnergyClass(tt.members)
			assert.False(t, res.Valid)
			assert.Equal(t, models.EnergyUnknown, res.Class)
			assert.Equal(t, models.ReasonInsufficientData, res.Reason)
		})
	}
}

func TestWeightedMedianEnergyClass_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := mixedBlock()
	want := WeightedMedianEnergyClass(base).Class

	for i := 0; i < 50; i++ {
		shuffled := make([]models.PropertyRecord, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		assert.Equal(t, want, WeightedMedianEnergyClass(shuffled).Class, "shuffle %d", i)
	}

	tie := []models.PropertyRecord{member("1", 50, models.EnergyA), member("2", 50, models.EnergyC)}
	reversed := []models.PropertyRecord{tie[1], tie[0]}
	assert.Equal(t, WeightedMedianEnergyClass(tie).Class, WeightedMedianEnergyClass(reversed).Class)
}

func TestWeightedMedianEnergyClass_UniformClass(t *testing.T) {
	members := []models.PropertyRecord{
		member("1", 12, models.EnergyC),
		member("2", 999, models.EnergyC),
		member("3", 45.5, models.EnergyC),
	}
	assert.Equal(t, models.EnergyC, WeightedMedianEnergyClass(members).Class)
}

func TestWeightedMedianEnergyClass_ScaleInvariant(t *testing.T) {
	blocks := map[string][]models.PropertyRecord{
		"mixed": mixedBlock(),
		"tie":   {member("1", 50, models.EnergyA), member("2", 50, models.EnergyC)},
	}

	for name, members := range blocks {
		want := WeightedMedianEnergyClass(members).Class
		for _, factor := range []float64{0.1, 0.37, 3, 1000} {
			t.Run(fmt.Sprintf("%s x%g", name, factor), func(t *testing.T) {
				scaled := make([]models.PropertyRecord, len(members))
				for i, m := range members {
					scaled[i] = member(m.ID, *m.AreaSqm*factor, m.EnergyClass)
				}
				assert.Equal(t, want, WeightedMedianEnergyClass(scaled).Class)
			})
		}
	}
}

func TestWeightedMedianEnergyClass_TieWithOddTotal(t *testing.T) {
	// W = 51 is not an even integer, yet the walk still lands exactly on W/2.
	members := []models.PropertyRecord{
		member("1", 25.5, models.EnergyB),
		member("2", 25.5, models.EnergyE),
	}
	result := WeightedMedianEnergyClass(members)
	require.True(t, result.Valid)
	assert.Equal(t, models.EnergyE, result.Class)
}

func TestMedianEnergyClass(t *testing.T) {
	_, ok := MedianEnergyClass(nil)
	assert.False(t, ok)

	class, ok := MedianEnergyClass([]models.PropertyRecord{
		member("1", 0, models.EnergyB),
		member("2", 0, models.EnergyD),
		member("3", 0, models.EnergyUnknown),
	})
	require.True(t, ok)
	assert.Equal(t, models.EnergyD, class)
}

func TestSummarize(t *testing.T) {
	group := models.Group{
		ID:      "plaka",
		BaseKey: "plaka",
		Index:   1,
		Members: []models.PropertyRecord{
			{ID: "1", Price: models.Float(200_000), AreaSqm: models.Float(50), EnergyClass: models.EnergyC,
				Latitude: models.Float(37.97), Longitude: models.Float(23.73)},
			{ID: "2", Price: models.Float(450_000), AreaSqm: models.Float(100), EnergyClass: models.EnergyD},
			{ID: "3", Price: models.Float(300_000), EnergyClass: models.EnergyC},
			{ID: "4", AreaSqm: models.Float(30)},
		},
	}

	s := Summarize(group)

	assert.Equal(t, "plaka", s.GroupID)
	assert.Equal(t, 4, s.MemberCount)
	assert.Equal(t, models.StatusValidated, s.Status)
	require.NotNil(t, s.WeightedMedianEnergyClass)
	assert.Equal(t, models.EnergyD, *s.WeightedMedianEnergyClass)
	require.NotNil(t, s.MedianEnergyClass)
	assert.Equal(t, models.EnergyC, *s.MedianEnergyClass)
	assert.Equal(t, 2, s.WeightedMembers)
	assert.Equal(t, 180.0, s.TotalSqm)
	assert.Equal(t, map[string]int{"C": 2, "D": 1}, s.EnergyBreakdown)
	assert.InDelta(t, 4250, s.AvgPricePerSqm, 1e-9)
	assert.InDelta(t, 4250, s.MedianPricePerSqm, 1e-9)
	assert.Equal(t, models.ValueRange{Min: 200_000, Max: 450_000, Avg: 950_000.0 / 3}, s.PriceRange)
	assert.Equal(t, 30.0, s.AreaRange.Min)
	assert.Equal(t, 100.0, s.AreaRange.Max)
	assert.Equal(t, 0.75, s.Completeness[FieldPrice])
	assert.Equal(t, 0.75, s.Completeness[FieldArea])
	assert.Equal(t, 0.75, s.Completeness[FieldEnergyClass])
	assert.Equal(t, 0.25, s.Completeness[FieldCoordinates])
}

func TestSummarize_Status(t *testing.T) {
	low := Summarize(models.Group{
		ID:            "small",
		Members:       []models.PropertyRecord{member("1", 60, models.EnergyB)},
		LowConfidence: true,
	})
	assert.Equal(t, models.StatusLowConfidence, low.Status)
	require.NotNil(t, low.WeightedMedianEnergyClass)
	assert.Equal(t, models.EnergyB, *low.WeightedMedianEnergyClass)

	empty := Summarize(models.Group{
		ID:            "sparse",
		Members:       []models.PropertyRecord{{ID: "1", Price: models.Float(100_000)}},
		LowConfidence: true,
	})
	assert.Equal(t, models.StatusInsufficientData, empty.Status)
	assert.Nil(t, empty.WeightedMedianEnergyClass)
	assert.Equal(t, models.ReasonInsufficientData, empty.Reason)
	assert.Zero(t, empty.TotalSqm)
}

func TestSummarizeAll_KeepsOrder(t *testing.T) {
	var groups []models.Group
	for i := 0; i < 20; i++ {
		groups = append(groups, models.Group{
			ID:      fmt.Sprintf("g%d", i),
			Members: []models.PropertyRecord{member("1", float64(10+i), models.EnergyC)},
		})
	}

	summaries := SummarizeAll(groups)

	require.Len(t, summaries, 20)
	for i, s := range summaries {
		assert.Equal(t, groups[i].ID, s.GroupID)
	}
}
