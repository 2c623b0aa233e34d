package models

import "strings"

// PropertyRecord is a single parsed listing handed over by a collector.
// Records are values: corrections produce a new record.
type PropertyRecord struct {
	ID                   string      `json:"id"`
	Price                *float64    `json:"price,omitempty"`
	AreaSqm              *float64    `json:"area_sqm,omitempty"`
	EnergyClass          EnergyClass `json:"energy_class"`
	EnergyClassConfirmed bool        `json:"energy_class_confirmed_in_source_text"`
	Neighborhood         string      `json:"neighborhood"`
	SourceURL            string      `json:"source_url,omitempty"`
	Latitude             *float64    `json:"latitude,omitempty"`
	Longitude            *float64    `json:"longitude,omitempty"`
}

func (r PropertyRecord) HasPrice() bool { return r.Price != nil }

func (r PropertyRecord) HasArea() bool { return r.AreaSqm != nil }

func (r PropertyRecord) HasEnergyClass() bool { return r.EnergyClass.Known() }

func (r PropertyRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// HasAnyMeasure reports whether the record carries at least one of price,
// area or energy class. Records without any of them cannot be validated.
func (r PropertyRecord) HasAnyMeasure() bool {
	return r.HasPrice() || r.HasArea() || r.HasEnergyClass()
}

// PricePerSqm returns price/area when both are present and positive.
func (r PropertyRecord) PricePerSqm() (float64, bool) {
	if r.Price == nil || r.AreaSqm == nil || *r.Price <= 0 || *r.AreaSqm <= 0 {
		return 0, false
	}
	return *r.Price / *r.AreaSqm, true
}

// NeighborhoodKey is the normalized neighborhood label used for statistics.
func (r PropertyRecord) NeighborhoodKey() string {
	return strings.ToLower(strings.TrimSpace(r.Neighborhood))
}

// Float returns a pointer to v, handy for building optional fields.
func Float(v float64) *float64 {
	return &v
}
