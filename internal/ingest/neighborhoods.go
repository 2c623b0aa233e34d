package ingest

import (
	"strings"
	"unicode"
)

type neighborhood struct {
	name     string
	variants []string
}

// Central Athens neighborhoods with their Greek and transliterated spellings.
var athensNeighborhoods = []neighborhood{
	{"Kolonaki", []string{"kolonaki", "κολωνάκι", "κολωνακι"}},
	{"Pangrati", []string{"pangrati", "pagrati", "παγκράτι", "παγκρατι"}},
	{"Exarchia", []string{"exarchia", "exarcheia", "εξάρχεια", "εξαρχεια"}},
	{"Plaka", []string{"plaka", "πλάκα", "πλακα"}},
	{"Psyrri", []string{"psyrri", "psirri", "ψυρρή", "ψυρρη"}},
	{"Monastiraki", []string{"monastiraki", "μοναστηράκι", "μοναστηρακι"}},
	{"Koukaki", []string{"koukaki", "κουκάκι", "κουκακι"}},
	{"Petralona", []string{"petralona", "πετράλωνα", "πετραλωνα"}},
	{"Kypseli", []string{"kypseli", "kipseli", "κυψέλη", "κυψελη"}},
	{"Ampelokipoi", []string{"ampelokipoi", "ambelokipi", "αμπελόκηποι", "αμπελοκηποι"}},
	{"Neos Kosmos", []string{"neos kosmos", "νέος κόσμος", "νεος κοσμος"}},
	{"Kallithea", []string{"kallithea", "καλλιθέα", "καλλιθεα"}},
	{"Gazi", []string{"gazi", "γκάζι", "γκαζι"}},
	{"Syntagma", []string{"syntagma", "σύνταγμα", "συνταγμα"}},
	{"Mets", []string{"mets", "μετς"}},
}

// CanonicalNeighborhood maps known spellings to one English name and returns
// anything else trimmed but otherwise unchanged.
func CanonicalNeighborhood(name string) string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	for _, n := range athensNeighborhoods {
		for _, v := range n.variants {
			if lower == v {
				return n.name
			}
		}
	}
	return trimmed
}

// DetectNeighborhood finds the first known neighborhood mentioned in text.
func DetectNeighborhood(text string) (string, bool) {
	words := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}), " ") + " "
	for _, n := range athensNeighborhoods {
		for _, v := range n.variants {
			if strings.Contains(words, " "+v+" ") {
				return n.name, true
			}
		}
	}
	return "", false
}
