package models

import "sort"

// Flag is a data-quality reason code attached to a record.
type Flag string

const (
	FlagInvalidRecordShape      Flag = "INVALID_RECORD_SHAPE"
	FlagPriceOutOfRange         Flag = "PRICE_OUT_OF_RANGE"
	FlagAreaOutOfRange          Flag = "AREA_OUT_OF_RANGE"
	FlagAreaPriceRatioOutlier   Flag = "AREA_PRICE_RATIO_OUTLIER"
	FlagSuspiciousEnergyDefault Flag = "SUSPICIOUS_ENERGY_DEFAULT"
)

// ValidationFlags are the flags produced by the field validator; each one
// can be configured as rejecting or warning-only.
var ValidationFlags = []Flag{
	FlagPriceOutOfRange,
	FlagAreaOutOfRange,
	FlagAreaPriceRatioOutlier,
	FlagSuspiciousEnergyDefault,
}

// IsValidationFlag reports whether f names a field validator flag.
func IsValidationFlag(f Flag) bool {
	for _, v := range ValidationFlags {
		if v == f {
			return true
		}
	}
	return false
}

type ValidationResult struct {
	RecordID string `json:"record_id"`
	IsValid  bool   `json:"is_valid"`
	Flags    []Flag `json:"flags"`
}

func (v ValidationResult) Has(flag Flag) bool {
	for _, f := range v.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// NewFlagSet de-duplicates and sorts flags so results compare deterministically.
func NewFlagSet(flags ...Flag) []Flag {
	seen := make(map[Flag]bool, len(flags))
	out := make([]Flag, 0, len(flags))
	for _, f := range flags {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rejection pairs a dropped record with the reason it was dropped.
type Rejection struct {
	Record PropertyRecord   `json:"record"`
	Result ValidationResult `json:"result"`
}
