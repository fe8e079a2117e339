package grib

import "time"

// computedKeyNames lists the virtual/computed keys this module overlays on
// top of the decoder's raw keys, grounded on cfgrib/cfmessage.py's
// COMPUTED_KEYS table (spec.md §4.1). Record.Get checks this table before
// falling through to the raw decoder keys; Record.Set always rejects writes
// to a name in this table with ReadOnlyError.
var computedKeyNames = map[string]struct{}{
	"time":           {},
	"step":           {},
	"valid_time":     {},
	"verifying_time": {},
	"indexing_time":  {},
}

// computedGet dispatches a computed-key read. Returning ok=false lets Get
// fall through to the overlay/raw lookup (there is none for these names, so
// it ultimately surfaces KeyNotFoundError, matching a raw key that happens
// to be absent).
func (r *Record) computedGet(key string) (interface{}, bool) {
	switch key {
	case "time":
		t, err := r.computedTime("time")
		if err != nil {
			return nil, false
		}
		return t, true
	case "step":
		s, err := r.computedStep()
		if err != nil {
			return nil, false
		}
		return s, true
	case "valid_time":
		v, err := r.validTimeUnix()
		if err != nil {
			return nil, false
		}
		return v, true
	case "verifying_time":
		// Derived from verifyingMonth, which this decoder's product
		// templates (Template 4.0 only) never carry.
		return nil, false
	case "indexing_time":
		// Derived from indexingDate/indexingTime, likewise absent from
		// Template 4.0 and not produced by this decoder.
		return nil, false
	default:
		return nil, false
	}
}

// computedTime decodes the "time" computed key (seconds since 1970-01-01Z)
// from the raw dataDate/dataTime keys, per spec.md §4.1's date/time decoding
// rule: YYYYMMDD and HHMM packed integers split by integer division/modulo.
func (r *Record) computedTime(key string) (int64, error) {
	dateV, ok := r.rawGet("dataDate")
	if !ok {
		return 0, &KeyNotFoundError{Key: "dataDate"}
	}
	timeV, ok := r.rawGet("dataTime")
	if !ok {
		return 0, &KeyNotFoundError{Key: "dataTime"}
	}
	d := dateV.(int)
	hm := timeV.(int)
	year, month, day := d/10000, (d/100)%100, d%100
	hour, minute := hm/100, hm%100
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	return t.Unix(), nil
}

// stepUnitSeconds converts a GRIB stepUnits code to its length in seconds
// using GRIBStepUnitsToSeconds, surfacing UnsupportedStepUnitError for the
// reserved codes 3..9 instead of guessing (spec.md §9 Open Questions).
func stepUnitSeconds(code int) (int, error) {
	secs, ok := GRIBStepUnitsToSeconds[code]
	if !ok {
		return 0, &UnsupportedStepUnitError{Code: code}
	}
	return secs, nil
}

// computedStep decodes the "step" computed key (in hours) from the raw
// endStep key scaled by stepUnits, per spec.md §4.1.
func (r *Record) computedStep() (float64, error) {
	endStepV, ok := r.rawGet("endStep")
	if !ok {
		return 0, &KeyNotFoundError{Key: "endStep"}
	}
	unitsV, ok := r.rawGet("stepUnits")
	if !ok {
		return 0, &KeyNotFoundError{Key: "stepUnits"}
	}
	secs, err := stepUnitSeconds(unitsV.(int))
	if err != nil {
		return 0, err
	}
	return float64(endStepV.(int)) * float64(secs) / 3600.0, nil
}
