package coords

import (
	"fmt"
	"sort"
)

// AmbiguousCoordError indicates a CoordinateTranslator predicate matched more
// than one source coordinate for a single target (spec.md §4.6 point 2).
type AmbiguousCoordError struct {
	Target  string
	Matches []string
}

func (e *AmbiguousCoordError) Error() string {
	return fmt.Sprintf("ambiguous coordinate %q: matched %v", e.Target, e.Matches)
}

// NameCollisionError indicates a translator rename would land on an existing
// coordinate name that was not itself part of this translation.
type NameCollisionError struct {
	OutName string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("coordinate rename collides with existing coordinate %q", e.OutName)
}

// InvalidDirectionError indicates a configured stored direction is neither
// "increasing" nor "decreasing".
type InvalidDirectionError struct {
	Direction string
}

func (e *InvalidDirectionError) Error() string {
	return fmt.Sprintf("invalid stored direction %q: must be \"increasing\" or \"decreasing\"", e.Direction)
}

// Increasing and Decreasing are the only two legal StoredDirection values
// (spec.md §3's coordinate model / §7's InvalidDirection).
const (
	Increasing = "increasing"
	Decreasing = "decreasing"
)

// Coordinate is a source 1-D coordinate as CoordinateTranslator sees it: a
// name, its CF-ish descriptive attributes, and its current values in whatever
// order the dataset currently holds them. coords has no dependency on the
// grib package's Dataset/Variable types; the root package adapts between the
// two (see translate.go).
type Coordinate struct {
	Name         string
	Dim          string // indexing dimension name (equal to Name for 1-D coords)
	Units        string
	StandardName string
	Values       []float64
}

// TargetCoord is one entry of a CoordModel: the renamed/out name, target
// units, and the direction the axis must be stored in once translated
// (spec.md §4.6/§6).
type TargetCoord struct {
	OutName         string
	Units           string
	StoredDirection string
}

// CoordModel maps a canonical predicate key (see predicateTable) to its
// target rename/unit/direction, per spec.md §3's "Coordinate model".
type CoordModel map[string]TargetCoord

// CDS is the default coordinate model (spec.md §6).
var CDS = CoordModel{
	"latitude":        {OutName: "lat", Units: "degrees_north", StoredDirection: Increasing},
	"longitude":       {OutName: "lon", Units: "degrees_east", StoredDirection: Increasing},
	"depthBelowLand":  {OutName: "depth", Units: "m", StoredDirection: Increasing},
	"isobaricInhPa":   {OutName: "plev", Units: "Pa", StoredDirection: Decreasing},
	"number":          {OutName: "realization", Units: "1", StoredDirection: Increasing},
	"time":            {OutName: "forecast_reference_time", Units: "seconds since 1970-01-01T00:00:00Z", StoredDirection: Increasing},
	"valid_time":      {OutName: "time", Units: "seconds since 1970-01-01T00:00:00Z", StoredDirection: Increasing},
	"step":            {OutName: "leadtime", Units: "hours", StoredDirection: Increasing},
	"forecastMonth":   {OutName: "leadtime_month", Units: "1", StoredDirection: Increasing},
}

// ECMWF is the alternate coordinate model (spec.md §6): it keeps ECMWF's
// historical "level" naming rather than CDS's "plev"/"depth" split, and does
// not rename time/step/forecastMonth at all.
var ECMWF = CoordModel{
	"depthBelowLand": {OutName: "level", Units: "m", StoredDirection: Increasing},
	"isobaricInhPa":  {OutName: "level", Units: "hPa", StoredDirection: Decreasing},
	"isobaricInPa":   {OutName: "level", Units: "hPa", StoredDirection: Decreasing},
	"hybrid":         {OutName: "level", Units: "1", StoredDirection: Increasing},
}

// predicate reports whether c is the source coordinate for a given canonical
// target key, grounded on cf2cdm/cfcoords.py's is_latitude/is_longitude/
// is_time/.../is_forecast_month table (spec.md §4.6 point 1).
type predicate func(c Coordinate) bool

var latitudeUnits = map[string]bool{
	"degrees_north": true, "degree_north": true, "degree_N": true,
	"degrees_N": true, "degreeN": true, "degreesN": true,
}

var longitudeUnits = map[string]bool{
	"degrees_east": true, "degree_east": true, "degree_E": true,
	"degrees_E": true, "degreeE": true, "degreesE": true,
}

var predicateTable = map[string]predicate{
	"latitude":  func(c Coordinate) bool { return latitudeUnits[c.Units] },
	"longitude": func(c Coordinate) bool { return longitudeUnits[c.Units] },
	"time":      func(c Coordinate) bool { return c.StandardName == "forecast_reference_time" },
	"valid_time": func(c Coordinate) bool {
		return c.Name == "valid_time" || c.StandardName == "time"
	},
	"step":          func(c Coordinate) bool { return c.Name == "step" },
	"number":        func(c Coordinate) bool { return c.StandardName == "realization" || c.Name == "number" },
	"forecastMonth": func(c Coordinate) bool { return c.Name == "forecastMonth" },
	// The grib package's DatasetBuilder already renames the generic "level"
	// header dimension to one of these canonical keys at build time, the way
	// cfgrib/dataset.py renames it to GRIB_typeOfLevel before cf2cdm ever
	// runs (spec.md §4.5's "vertical" encode_cf group), so by the time a
	// Coordinate reaches Translate it already carries its target name.
	"isobaricInhPa": func(c Coordinate) bool {
		return c.Name == "isobaricInhPa" || (c.Name == "level" && AreConvertible(c.Units, "Pa"))
	},
	"isobaricInPa": func(c Coordinate) bool {
		return c.Name == "isobaricInPa" || (c.Name == "level" && c.Units == "Pa")
	},
	"depthBelowLand": func(c Coordinate) bool {
		return c.Name == "depthBelowLand" || (c.Name == "level" && AreConvertible(c.Units, "m"))
	},
	"hybrid": func(c Coordinate) bool {
		return c.Name == "hybrid" || (c.Name == "level" && (c.Units == "" || c.Units == "1"))
	},
}

// Translation is the result of translating a single source coordinate: its
// new name, converted values, and whether the caller must reverse the axis
// (and every variable that shares its dimension) to honor StoredDirection.
type Translation struct {
	SourceName string
	SourceDim  string
	OutName    string
	Units      string
	Values     []float64
	Reverse    bool
}

// Translate matches every target in model against the supplied source
// coordinates (spec.md §4.6): each target fails with AmbiguousCoordError if
// more than one source coordinate matches its predicate, is a no-op if none
// match, and otherwise is renamed, unit-converted, and flagged for reversal
// if its current order disagrees with the model's configured StoredDirection.
// A target OutName that collides with another target's (different) source
// coordinate is reported as NameCollisionError.
func Translate(source []Coordinate, model CoordModel) ([]Translation, error) {
	keys := make([]string, 0, len(model))
	for k := range model {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic iteration order regardless of map order

	var out []Translation
	usedOutNames := make(map[string]string) // out name -> source coordinate it came from

	for _, key := range keys {
		target := model[key]
		if target.StoredDirection != Increasing && target.StoredDirection != Decreasing {
			return nil, &InvalidDirectionError{Direction: target.StoredDirection}
		}
		pred, ok := predicateTable[key]
		if !ok {
			continue
		}
		var matches []Coordinate
		for _, c := range source {
			if pred(c) {
				matches = append(matches, c)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.Name
			}
			return nil, &AmbiguousCoordError{Target: key, Matches: names}
		}

		src := matches[0]
		if prevSrc, ok := usedOutNames[target.OutName]; ok && prevSrc != src.Name {
			return nil, &NameCollisionError{OutName: target.OutName}
		}
		usedOutNames[target.OutName] = src.Name

		converted := make([]float64, len(src.Values))
		for i, v := range src.Values {
			cv, err := Convert(v, unitsOrDefault(src.Units), target.Units)
			if err != nil {
				// Units outside any known equivalence class (e.g. the
				// dimensionless "1" used by realization/forecastMonth, or
				// an already-correct seconds-since epoch) pass through
				// unconverted; UnitConverter only covers pressure/length.
				converted[i] = v
			} else {
				converted[i] = cv
			}
		}

		out = append(out, Translation{
			SourceName: src.Name,
			SourceDim:  src.Dim,
			OutName:    target.OutName,
			Units:      target.Units,
			Values:     converted,
			Reverse:    needsReversal(converted, target.StoredDirection),
		})
	}
	return out, nil
}

func unitsOrDefault(u string) string {
	if u == "" {
		return "1"
	}
	return u
}

// needsReversal reports whether values' current order disagrees with want
// (spec.md §4.6 point 3: "reverse along the axis iff the first value compared
// to the last disagrees with the target direction").
func needsReversal(values []float64, want string) bool {
	if len(values) < 2 {
		return false
	}
	first, last := values[0], values[len(values)-1]
	if first == last {
		return false
	}
	increasing := first < last
	if want == Increasing {
		return !increasing
	}
	return increasing
}

// ReverseFloat64 reverses a dense slice of values in place and returns it,
// for callers applying a Translation's Reverse flag to coordinate data.
func ReverseFloat64(values []float64) []float64 {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	return values
}
