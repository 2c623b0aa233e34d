package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawListing is a listing as a collector scraped it, before any parsing.
type RawListing struct {
	ID                   string   `json:"id,omitempty"`
	URL                  string   `json:"url"`
	Neighborhood         string   `json:"neighborhood"`
	Price                Value    `json:"price"`
	Area                 Value    `json:"area"`
	EnergyClass          string   `json:"energy_class"`
	EnergyClassConfirmed bool     `json:"energy_class_confirmed,omitempty"`
	Title                string   `json:"title,omitempty"`
	Description          string   `json:"description,omitempty"`
	HTML                 string   `json:"html,omitempty"`
	Latitude             *float64 `json:"latitude,omitempty"`
	Longitude            *float64 `json:"longitude,omitempty"`
}

// Value is a scraped field that may arrive as text ("€250.000", "85 m²") or
// as a plain JSON number.
type Value struct {
	Text   string
	Number *float64
}

// Text wraps scraped text.
func Text(s string) Value {
	return Value{Text: s}
}

// Number wraps an already numeric value.
func Number(f float64) Value {
	return Value{Number: &f}
}

func (v Value) IsZero() bool {
	return v.Number == nil && v.Text == ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Number != nil {
		return json.Marshal(*v.Number)
	}
	if v.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode value: %w", err)
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	*v = Number(f)
	return nil
}
