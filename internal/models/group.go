package models

// Group is one reporting unit, e.g. a city block inside a neighborhood.
// Aggregates are derived from Members on demand and never stored here.
type Group struct {
	ID            string           `json:"group_id"`
	BaseKey       string           `json:"base_key"`
	Index         int              `json:"index"`
	Members       []PropertyRecord `json:"members"`
	LowConfidence bool             `json:"low_confidence"`
}

func (g Group) Size() int {
	return len(g.Members)
}

// Group status values exposed to report consumers.
const (
	StatusValidated        = "validated"
	StatusLowConfidence    = "low_confidence"
	StatusInsufficientData = "insufficient_data"
)

const ReasonInsufficientData = "INSUFFICIENT_DATA"

// ValueRange is a min/avg/max triple over the members that carry the value.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// GroupSummary is the aggregate view of a group handed to report emitters.
type GroupSummary struct {
	GroupID                   string             `json:"group_id"`
	BaseKey                   string             `json:"base_key"`
	MemberCount               int                `json:"member_count"`
	LowConfidence             bool               `json:"low_confidence"`
	Status                    string             `json:"status"`
	WeightedMedianEnergyClass *EnergyClass       `json:"weighted_median_energy_class"`
	Reason                    string             `json:"reason,omitempty"`
	MedianEnergyClass         *EnergyClass       `json:"median_energy_class,omitempty"`
	WeightedMembers           int                `json:"weighted_members"`
	TotalSqm                  float64            `json:"total_sqm"`
	EnergyBreakdown           map[string]int     `json:"energy_breakdown"`
	AvgPricePerSqm            float64            `json:"avg_price_per_sqm"`
	MedianPricePerSqm         float64            `json:"median_price_per_sqm"`
	PriceRange                ValueRange         `json:"price_range"`
	AreaRange                 ValueRange         `json:"area_range"`
	Completeness              map[string]float64 `json:"completeness"`
}
