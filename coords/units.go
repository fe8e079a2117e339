// Package coords implements the CF coordinate-renaming/unit-conversion layer
// (spec.md §4.6/§4.7), grounded on cf2cdm's cfcoords.py/cfunits.py/datamodels.py.
package coords

import "fmt"

// UnitIncompatibleError mirrors the root package's taxonomy for this
// package's own pure functions (coords has no dependency on grib, so it
// carries its own copy rather than importing the root package's error type).
type UnitIncompatibleError struct {
	From, To string
}

func (e *UnitIncompatibleError) Error() string {
	return fmt.Sprintf("unit %q is not convertible to %q", e.From, e.To)
}

// unitClass is one equivalence class of commensurable units, each mapped to
// its multiplicative factor relative to the class's base unit (spec.md §4.7).
type unitClass map[string]float64

// pressureClass and lengthClass are the two built-in equivalence classes
// ported verbatim from cf2cdm/cfunits.py's PRESSURE_CONVERSION_RULES and
// LENGTH_CONVERSION_RULES.
var pressureClass = unitClass{
	"Pa":   1,
	"hPa":  100,
	"mbar": 100,
	"dbar": 1e4,
	"bar":  1e5,
	"atm":  101325,
}

var lengthClass = unitClass{
	"m":  1,
	"cm": 0.01,
	"km": 1e3,
}

var unitClasses = []unitClass{pressureClass, lengthClass}

func classOf(unit string) (unitClass, bool) {
	for _, c := range unitClasses {
		if _, ok := c[unit]; ok {
			return c, true
		}
	}
	return nil, false
}

// Convert implements spec.md §4.7's convert(value, from, to): identity when
// the units are equal, otherwise the ratio of the two units' factors within
// whichever equivalence class contains both. Units found in no common class
// (or no class at all) return UnitIncompatibleError.
func Convert(value float64, from, to string) (float64, error) {
	if from == to {
		return value, nil
	}
	fromClass, ok := classOf(from)
	if !ok {
		return 0, &UnitIncompatibleError{From: from, To: to}
	}
	toFactor, ok := fromClass[to]
	if !ok {
		return 0, &UnitIncompatibleError{From: from, To: to}
	}
	return value * fromClass[from] / toFactor, nil
}

// AreConvertible reports whether a and b belong to the same equivalence
// class, per spec.md §4.7's are_convertible = convert(1, a, b) without raising.
func AreConvertible(a, b string) bool {
	_, err := Convert(1, a, b)
	return err == nil
}
