package grib

import (
	"github.com/ecmwf/cfgrib-go/coords"
	"github.com/ecmwf/cfgrib-go/internal"
)

// TranslateDataset applies a CoordinateTranslator pass over ds (spec.md
// §4.6): every 1-D dimension coordinate is matched against model's predicate
// table, renamed, unit-converted, and (if its current order disagrees with
// the model's configured StoredDirection) reversed along with every other
// variable that shares its dimension. ds itself is left untouched; a new
// Dataset is returned.
//
// Per spec.md §4.6's "Errors behaviour is selectable at the translation-group
// level": a translation failure (AmbiguousCoordError, NameCollisionError,
// InvalidDirectionError) aborts the whole pass, not individual coordinates.
// ErrorsRaise propagates it, ErrorsWarn logs and returns ds unchanged,
// ErrorsIgnore silently returns ds unchanged.
func TranslateDataset(ds *Dataset, model coords.CoordModel, policy ErrorPolicy) (*Dataset, error) {
	source := collectCoordinates(ds)
	translations, err := coords.Translate(source, model)
	if err != nil {
		err = wrapCoordError(err)
		switch policy {
		case ErrorsRaise:
			return nil, err
		case ErrorsWarn:
			internal.Warnf("grib: coordinate translation skipped: %v", err)
			return ds, nil
		default:
			return ds, nil
		}
	}
	if len(translations) == 0 {
		return ds, nil
	}

	bySourceDim := make(map[string]coords.Translation, len(translations))
	bySourceName := make(map[string]coords.Translation, len(translations))
	for _, t := range translations {
		bySourceDim[t.SourceDim] = t
		bySourceName[t.SourceName] = t
	}

	out := &Dataset{
		Dimensions: make(map[string]int, len(ds.Dimensions)),
		Variables:  make(map[string]Variable, len(ds.Variables)),
		Attributes: ds.Attributes,
		Encoding:   ds.Encoding,
	}
	for k, v := range ds.Dimensions {
		out.Dimensions[k] = v
	}

	// Reverse every variable that is NOT itself a translated coordinate but
	// shares a dimension being reversed (the coordinate's own reversed
	// values are built directly from the Translation below, since the
	// translator already computed them in converted-but-unreversed form).
	for name, v := range ds.Variables {
		if _, isCoord := bySourceName[name]; isCoord {
			continue
		}
		for dim, t := range bySourceDim {
			if t.Reverse && containsDim(v.Data.Dims(), dim) {
				v = v.ReverseAxis(dim)
			}
		}
		out.Variables[name] = v
	}

	// Rename dimension sizes.
	for dim, t := range bySourceDim {
		if size, ok := out.Dimensions[dim]; ok {
			delete(out.Dimensions, dim)
			out.Dimensions[t.OutName] = size
		}
	}

	// Rename every surviving variable's own Dims list to the new dimension
	// names (a data variable may span a renamed dim without itself being a
	// renamed coordinate).
	renamed := make(map[string]Variable, len(out.Variables))
	for name, v := range out.Variables {
		renamed[name] = renameVariableDims(v, bySourceDim)
	}

	// Build (or overwrite) the translated coordinate variables themselves.
	for _, t := range translations {
		values := append([]float64(nil), t.Values...)
		if t.Reverse {
			values = coords.ReverseFloat64(values)
		}
		src := ds.Variables[t.SourceName]
		attrs := make(map[string]interface{}, len(src.Attributes)+1)
		for k, v := range src.Attributes {
			attrs[k] = v
		}
		attrs["units"] = t.Units
		delete(renamed, t.SourceName)
		renamed[t.OutName] = NewCoordinateVariable(t.OutName, t.OutName, values, attrs)
	}

	out.Variables = renamed
	return out, nil
}

// collectCoordinates extracts every 1-D dimension coordinate from ds (a
// Dense variable whose single dimension is its own name) as a coords.Coordinate,
// the input shape coords.Translate expects. Data variables and multi-
// dimensional coordinates (valid_time when both time and step are present,
// curvilinear (y, x) lat/lon) are not candidates: spec.md §4.6 operates on
// named 1-D CF coordinates.
func collectCoordinates(ds *Dataset) []coords.Coordinate {
	var out []coords.Coordinate
	for name, v := range ds.Variables {
		dense, ok := v.Data.(DenseData)
		if !ok || len(dense.DimNames) != 1 || dense.DimNames[0] != name {
			continue
		}
		out = append(out, coords.Coordinate{
			Name:         name,
			Dim:          name,
			Units:        attrString(v.Attributes, "units"),
			StandardName: attrString(v.Attributes, "standard_name"),
			Values:       dense.Values,
		})
	}
	return out
}

// wrapCoordError maps the coords package's self-contained error types onto
// this package's own error taxonomy (spec.md §7), so callers of
// TranslateDataset only ever need to type-switch on grib's own error types,
// regardless of which internal package detected the condition.
func wrapCoordError(err error) error {
	switch e := err.(type) {
	case *coords.AmbiguousCoordError:
		return &AmbiguousCoordError{CoordName: e.Target, Matches: e.Matches}
	case *coords.NameCollisionError:
		return &NameCollisionError{OutName: e.OutName}
	case *coords.InvalidDirectionError:
		return &InvalidDirectionError{Direction: e.Direction}
	default:
		return err
	}
}

func attrString(attrs map[string]interface{}, key string) string {
	if s, ok := attrs[key].(string); ok {
		return s
	}
	return ""
}

func containsDim(dims []string, dim string) bool {
	for _, d := range dims {
		if d == dim {
			return true
		}
	}
	return false
}

// renameVariableDims rewrites v's Dims list in place per bySourceDim's
// old-dim -> Translation mapping, without touching its values (reversal, if
// any, was already applied by the caller before dimension renaming).
func renameVariableDims(v Variable, bySourceDim map[string]coords.Translation) Variable {
	switch d := v.Data.(type) {
	case DenseData:
		names := renameDimNames(d.DimNames, bySourceDim)
		return Variable{Name: v.Name, Data: DenseData{DimNames: names, DataShape: d.DataShape, Values: d.Values}, Attributes: v.Attributes}
	case LazyData:
		names := renameDimNames(d.DimNames, bySourceDim)
		return Variable{Name: v.Name, Data: LazyData{DimNames: names, Array: d.Array}, Attributes: v.Attributes}
	default:
		return v
	}
}

func renameDimNames(dims []string, bySourceDim map[string]coords.Translation) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		if t, ok := bySourceDim[d]; ok {
			out[i] = t.OutName
		} else {
			out[i] = d
		}
	}
	return out
}
