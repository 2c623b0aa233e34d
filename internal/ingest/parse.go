package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberToken  = regexp.MustCompile(`\d+(?:[.,\x{00A0} ]\d{3})*(?:[.,]\d+)?`)
	areaWithUnit = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:m²|m2|τ\.?\s?μ|sq\.?\s*m|square\s+met(?:er|re)s?|τετραγωνικ)`)
)

// ParsePrice reads a price such as "€250.000", "250,000 EUR" or "1.250.000,50".
func ParsePrice(v Value) (float64, bool) {
	if v.Number != nil {
		return *v.Number, true
	}
	token := numberToken.FindString(v.Text)
	if token == "" {
		return 0, false
	}
	return parseNumber(token)
}

// ParseArea reads a floor area such as "85 m²", "85,5 τ.μ." or "120".
// A number followed by an area unit wins over the first bare number.
func ParseArea(v Value) (float64, bool) {
	if v.Number != nil {
		return *v.Number, true
	}
	if m := areaWithUnit.FindStringSubmatch(v.Text); m != nil {
		return parseNumber(m[1])
	}
	token := numberToken.FindString(v.Text)
	if token == "" {
		return 0, false
	}
	return parseNumber(token)
}

// parseNumber resolves thousands and decimal separators in both the Greek
// ("250.000,5") and the English ("250,000.5") convention.
func parseNumber(token string) (float64, bool) {
	token = strings.NewReplacer(" ", "", "\u00a0", "").Replace(token)

	dots := strings.Count(token, ".")
	commas := strings.Count(token, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(token, ",") > strings.LastIndex(token, ".") {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case dots > 1:
		token = strings.ReplaceAll(token, ".", "")
	case commas > 1:
		token = strings.ReplaceAll(token, ",", "")
	case dots == 1 || commas == 1:
		sep := "."
		if commas == 1 {
			sep = ","
		}
		idx := strings.Index(token, sep)
		if isThousandsGroup(idx, len(token)-idx-1) {
			token = strings.Replace(token, sep, "", 1)
		} else {
			token = strings.Replace(token, sep, ".", 1)
		}
	}

	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// A lone separator with one to three leading digits and exactly three
// trailing digits is a thousands separator: "250.000" is 250000.
func isThousandsGroup(leading, trailing int) bool {
	return trailing == 3 && leading >= 1 && leading <= 3
}
