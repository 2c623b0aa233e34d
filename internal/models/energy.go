package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEnergyClass = errors.New("unknown energy class")

// EnergyClass is the EU-style building efficiency rating. The numeric value is
// the ordinal used for weighted statistics: lower is better.
type EnergyClass int

const (
	EnergyUnknown EnergyClass = iota
	EnergyAPlus
	EnergyA
	EnergyBPlus
	EnergyB
	EnergyCPlus
	EnergyC
	EnergyD
	EnergyE
	EnergyF
)

var energyLabels = map[EnergyClass]string{
	EnergyAPlus: "A+",
	EnergyA:     "A",
	EnergyBPlus: "B+",
	EnergyB:     "B",
	EnergyCPlus: "C+",
	EnergyC:     "C",
	EnergyD:     "D",
	EnergyE:     "E",
	EnergyF:     "F",
}

// Greek listings write the scale with Greek capitals (Α, Β, Γ, Δ, Ε, Ζ).
var greekLookalikes = strings.NewReplacer("Α", "A", "Β", "B", "Γ", "C", "Δ", "D", "Ε", "E", "Ζ", "F")

// AllEnergyClasses lists the known classes from best to worst.
func AllEnergyClasses() []EnergyClass {
	return []EnergyClass{
		EnergyAPlus, EnergyA, EnergyBPlus, EnergyB, EnergyCPlus,
		EnergyC, EnergyD, EnergyE, EnergyF,
	}
}

// ParseEnergyClass converts a label such as "b+" or "Β+" into an EnergyClass.
func ParseEnergyClass(s string) (EnergyClass, error) {
	label := greekLookalikes.Replace(strings.ToUpper(strings.TrimSpace(s)))
	label = strings.ReplaceAll(label, " ", "")
	for class, l := range energyLabels {
		if l == label {
			return class, nil
		}
	}
	return EnergyUnknown, fmt.Errorf("%w: %q", ErrUnknownEnergyClass, s)
}

func (e EnergyClass) Known() bool {
	return e >= EnergyAPlus && e <= EnergyF
}

// Ordinal returns the 1-based position on the best-to-worst scale, 0 when unknown.
func (e EnergyClass) Ordinal() int {
	if !e.Known() {
		return 0
	}
	return int(e)
}

func (e EnergyClass) String() string {
	if l, ok := energyLabels[e]; ok {
		return l
	}
	return ""
}

func (e EnergyClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *EnergyClass) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode energy class: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		*e = EnergyUnknown
		return nil
	}
	class, err := ParseEnergyClass(s)
	if err != nil {
		// Unrecognized labels such as "G" or "Exempt" are kept as unknown.
		*e = EnergyUnknown
		return nil
	}
	*e = class
	return nil
}
