package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"athensenergy/server/internal/models"
)

// Normalize turns a scraped listing into a PropertyRecord. Fields that cannot
// be parsed are left empty; the validator decides what that means.
func Normalize(raw RawListing) models.PropertyRecord {
	evidence := evidenceText(raw)

	neighborhood := CanonicalNeighborhood(raw.Neighborhood)
	if neighborhood == "" {
		if detected, ok := DetectNeighborhood(raw.Title + " " + raw.Description); ok {
			neighborhood = detected
		}
	}

	record := models.PropertyRecord{
		ID:           raw.ID,
		Neighborhood: neighborhood,
		SourceURL:    strings.TrimSpace(raw.URL),
		Latitude:     raw.Latitude,
		Longitude:    raw.Longitude,
	}
	if record.ID == "" {
		if record.SourceURL != "" {
			record.ID = ListingID(record.SourceURL, neighborhood)
		} else {
			record.ID = ContentID(raw, neighborhood)
		}
	}

	if price, ok := ParsePrice(raw.Price); ok {
		record.Price = models.Float(price)
	}
	if area, ok := ParseArea(raw.Area); ok {
		record.AreaSqm = models.Float(area)
	}

	class, err := models.ParseEnergyClass(raw.EnergyClass)
	if err != nil {
		class = models.EnergyUnknown
	}
	confirmed := raw.EnergyClassConfirmed
	if !class.Known() {
		if detected, ok := DetectEnergyClass(evidence); ok {
			class = detected
			confirmed = true
		}
	}
	if class.Known() && !confirmed {
		confirmed = ConfirmEnergyClass(evidence, class) || badgeConfirms(raw.HTML, class)
	}
	record.EnergyClass = class
	record.EnergyClassConfirmed = confirmed

	return record
}

// NormalizeAll normalizes listings in order.
func NormalizeAll(raws []RawListing) []models.PropertyRecord {
	out := make([]models.PropertyRecord, len(raws))
	for i, raw := range raws {
		out[i] = Normalize(raw)
	}
	return out
}

// ListingID derives a stable id from the listing url and neighborhood.
func ListingID(url, neighborhood string) string {
	sum := sha256.Sum256([]byte(url + "|" + strings.ToLower(neighborhood)))
	return hex.EncodeToString(sum[:8])
}

// ContentID derives a stable id for a listing without a url from everything
// it was scraped with. Only identical listings share one.
func ContentID(raw RawListing, neighborhood string) string {
	parts := []string{
		"content",
		strings.ToLower(neighborhood),
		valueKey(raw.Price),
		valueKey(raw.Area),
		strings.ToUpper(strings.TrimSpace(raw.EnergyClass)),
		strings.TrimSpace(raw.Title),
		strings.TrimSpace(raw.Description),
		coordinateKey(raw.Latitude),
		coordinateKey(raw.Longitude),
		raw.HTML,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

func valueKey(v Value) string {
	if v.Number != nil {
		return strconv.FormatFloat(*v.Number, 'g', -1, 64)
	}
	return strings.TrimSpace(v.Text)
}

func coordinateKey(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 7, 64)
}

func evidenceText(raw RawListing) string {
	parts := []string{raw.Title, raw.Description}
	if raw.HTML != "" {
		// Unparseable HTML simply contributes no evidence.
		if text, err := ExtractText(raw.HTML); err == nil {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func badgeConfirms(html string, class models.EnergyClass) bool {
	if html == "" {
		return false
	}
	badges, err := EnergyBadges(html)
	if err != nil {
		return false
	}
	for _, b := range badges {
		if found, err := models.ParseEnergyClass(b); err == nil && found == class {
			return true
		}
		if ConfirmEnergyClass(b, class) {
			return true
		}
	}
	return false
}
