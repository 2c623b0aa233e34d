package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrMissingColumns = errors.New("csv header has no usable columns")

// DecodeJSON reads a JSON array of listings.
func DecodeJSON(r io.Reader) ([]RawListing, error) {
	var listings []RawListing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}

// Header aliases accepted by DecodeCSV, all compared lower-case.
var csvColumns = map[string]string{
	"id":                     "id",
	"url":                    "url",
	"source_url":             "url",
	"link":                   "url",
	"neighborhood":           "neighborhood",
	"neighbourhood":          "neighborhood",
	"area_name":              "neighborhood",
	"price":                  "price",
	"price_eur":              "price",
	"area":                   "area",
	"sqm":                    "area",
	"area_sqm":               "area",
	"energy_class":           "energy_class",
	"energy_class_confirmed": "energy_class_confirmed",
	"title":                  "title",
	"description":            "description",
	"latitude":               "latitude",
	"lat":                    "latitude",
	"longitude":              "longitude",
	"lon":                    "longitude",
	"lng":                    "longitude",
}

// DecodeCSV reads listings from a CSV file with a header row. Unknown columns
// are ignored.
func DecodeCSV(r io.Reader) ([]RawListing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int)
	for i, h := range header {
		if field, ok := csvColumns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	if len(index) == 0 {
		return nil, ErrMissingColumns
	}

	var listings []RawListing
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		listing := RawListing{
			ID:           get("id"),
			URL:          get("url"),
			Neighborhood: get("neighborhood"),
			Price:        Text(get("price")),
			Area:         Text(get("area")),
			EnergyClass:  get("energy_class"),
			Title:        get("title"),
			Description:  get("description"),
		}
		if v := get("energy_class_confirmed"); v != "" {
			confirmed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse energy_class_confirmed on line %d: %w", line, err)
			}
			listing.EnergyClassConfirmed = confirmed
		}
		lat, latErr := parseCoordinate(get("latitude"))
		lon, lonErr := parseCoordinate(get("longitude"))
		if latErr != nil || lonErr != nil {
			return nil, fmt.Errorf("failed to parse coordinates on line %d: %w", line, errors.Join(latErr, lonErr))
		}
		if lat != nil && lon != nil {
			listing.Latitude, listing.Longitude = lat, lon
		}

		listings = append(listings, listing)
	}
	return listings, nil
}

func parseCoordinate(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
