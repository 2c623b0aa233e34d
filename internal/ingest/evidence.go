package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"athensenergy/server/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const labelPattern = `([A-GΑΒΓΔΕΖ]\+?)(?:[^\p{L}+]|$)`

// Phrases that introduce an energy label in English and Greek listing text.
var energyPatterns = compileEnergyPatterns(
	`energy\s+(?:class|rating|certificate|efficiency)`,
	`ενεργειακ[ηή]\s+κλ[αά]ση`,
	`ενεργειακ[οό]\s+πιστοποιητικ[οό]`,
	`κλ[αά]ση\s+εν[εέ]ργει[αά]ς`,
	`ΠΕΑ`,
)

func compileEnergyPatterns(prefixes ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(prefixes))
	for i, p := range prefixes {
		out[i] = regexp.MustCompile(`(?i)` + p + `\s*(?:[:\-–]\s*)?` + labelPattern)
	}
	return out
}

// DetectEnergyClass returns the first energy label stated in text.
func DetectEnergyClass(text string) (models.EnergyClass, bool) {
	for _, re := range energyPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			class, err := models.ParseEnergyClass(m[1])
			if err == nil {
				return class, true
			}
		}
	}
	return models.EnergyUnknown, false
}

// ConfirmEnergyClass reports whether text explicitly states the given class,
// e.g. "Energy class: B" or "Ενεργειακή κλάση Β+".
func ConfirmEnergyClass(text string, class models.EnergyClass) bool {
	if !class.Known() {
		return false
	}
	for _, re := range energyPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			found, err := models.ParseEnergyClass(m[1])
			if err == nil && found == class {
				return true
			}
		}
	}
	return false
}

// ExtractText returns the visible text of an HTML page with whitespace
// collapsed. Scripts and styles are dropped.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse listing html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// EnergyBadges returns the text of elements whose class or id mentions the
// energy certificate, the place listing sites usually render the label.
func EnergyBadges(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing html: %w", err)
	}

	var badges []string
	doc.Find(`[class*="energy"], [id*="energy"], [class*="certificate"]`).Each(func(i int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			badges = append(badges, text)
		}
	})
	return badges, nil
}
