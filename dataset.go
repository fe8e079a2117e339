package grib

import (
	"fmt"
	"sort"
	"time"

	"github.com/ecmwf/cfgrib-go/internal"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// DefaultTimeDims is the default header-dimension pair cfgrib's build_variable_components
// uses for the reference-time axes when encode_cf includes "time" (spec.md §4.5 point 3).
var DefaultTimeDims = []string{"time", "step"}

// dataAttrKeys are the keys build_variable_components requires unique across a
// paramId subindex; a key carrying more than one distinct value triggers
// AmbiguousVariableError (spec.md §4.5 point 1).
var dataAttrKeys = []string{"dataType", "numberOfPoints", "typeOfLevel", "stepUnits", "stepType", "gridType"}

// headerDimCandidates enumerates every key DatasetBuilder will consider as a
// header (non-geography) dimension, in the priority order spec.md §4.5 and
// its supplemented forecastMonth/number handling (SPEC_FULL.md §6) describe.
// A key only becomes a real dimension when it carries at least one non-undef
// value across the variable's subindex.
var headerDimCandidates = []string{"number", "time", "step", "level", "directionNumber", "frequencyNumber", "forecastMonth"}

// decreasingByDefault names coordinates that are conventionally stored in
// descending order (pressure levels run from the surface upward).
var decreasingByDefault = map[string]bool{"level": true}

// EncodeCFOptions selects which cfgrib-style encode_cf groups DatasetBuilder
// applies, per spec.md §4.5 point 3.
type EncodeCFOptions struct {
	Parameter bool
	Time      bool
	Geography bool
	Vertical  bool
}

// DefaultEncodeCF turns on every group, matching cfgrib's default
// encode_cf=("parameter", "time", "geography", "vertical").
var DefaultEncodeCF = EncodeCFOptions{Parameter: true, Time: true, Geography: true, Vertical: true}

// BuildOptions configures DatasetBuilder's variable/dataset assembly.
type BuildOptions struct {
	ErrorPolicy ErrorPolicy
	Squeeze     bool
	TimeDims    []string
	ExtraCoords map[string]string // coordinate name -> indexing dimension
	ReadKeys    []string
	EncodeCF    EncodeCFOptions
}

// VariableComponents is the intermediate result of build_variable_components:
// a set of coordinate variables, a lazily-backed data variable, and the
// dimensions the data variable spans, in order.
type VariableComponents struct {
	Name       string
	Dims       []string
	DimSizes   map[string]int
	Coords     map[string]Variable
	DataVar    Variable
	Attributes map[string]interface{}
}

// BuildVariableComponents implements spec.md §4.5's build_variable_components
// for the single paramId value. stream supplies random access for reading
// best-effort descriptive attributes and for the OnDiskArray backing the
// result; idx must already be projected to the set of messages participating
// in this variable (ordinarily the whole file index; filtering by paramId is
// done internally).
func BuildVariableComponents(stream *FileStream, idx *FileIndex, paramID interface{}, opts BuildOptions) (*VariableComponents, error) {
	sub := idx.Subindex(map[string]interface{}{"paramId": paramID})
	if len(sub.Entries) == 0 {
		return nil, errors.Errorf("no messages for paramId %v", paramID)
	}

	for _, key := range dataAttrKeys {
		vals := sub.Values(key)
		if len(vals) > 1 {
			return nil, &AmbiguousVariableError{
				Key:          key,
				Values:       vals,
				RetryFilters: retryFiltersFor(paramID, key, vals),
			}
		}
	}

	attrs := bestEffortAttributes(sub, stream)

	timeDims := opts.TimeDims
	if len(timeDims) == 0 {
		timeDims = DefaultTimeDims
	}
	if opts.EncodeCF.Time {
		if !isSubsetOf(timeDims, []string{"time", "step", "valid_time", "verifying_time", "indexing_time"}) {
			return nil, &IllegalTimeDimsError{Requested: timeDims, Supported: []string{"time", "step", "valid_time", "verifying_time", "indexing_time"}}
		}
	} else {
		timeDims = []string{"dataDate", "dataTime", "endStep"}
	}

	dimKeys := buildHeaderDimKeys(sub, timeDims)

	coordValues := make(map[string][]interface{}, len(dimKeys))
	coordPos := make(map[string]map[interface{}]int, len(dimKeys))
	dims := make([]string, 0, len(dimKeys))
	dimSizes := make(map[string]int, len(dimKeys))
	coords := make(map[string]Variable, len(dimKeys))

	for _, key := range dimKeys {
		vals := sub.Values(key)
		if len(vals) == 0 {
			continue
		}
		sortValues(vals)
		if decreasingByDefault[key] {
			reverseValues(vals)
		}
		pos := make(map[interface{}]int, len(vals))
		for i, v := range vals {
			pos[v] = i
		}
		coordValues[key] = vals
		coordPos[key] = pos
		dims = append(dims, key)
		dimSizes[key] = len(vals)
		coords[key] = NewCoordinateVariable(key, key, toFloat64Slice(vals), coordAttributes(key, attrs))
	}

	geoDims, geoSizes, geoCoords, gridShape, err := buildGeographyCoordinates(sub, stream, opts.EncodeCF.Geography)
	if err != nil {
		return nil, err
	}
	for k, v := range geoCoords {
		coords[k] = v
	}
	for k, v := range geoSizes {
		dimSizes[k] = v
	}

	if _, hasTime := coordValues["time"]; hasTime {
		if _, hasStep := coordValues["step"]; hasStep {
			coords["valid_time"] = buildValidTime(coordValues["time"], coordValues["step"])
		}
	}

	// Header dims of size 1 drop out of the data variable's shape under
	// squeeze (spec.md §4.5 point 6; cfgrib/dataset.py:509's
	// "not squeeze or c.data.size > 1"); their coordinates still end up in
	// the dataset as scalar variables via Variable.Squeeze() in
	// BuildDatasetComponents, just no longer as array dimensions.
	keepDims := append([]string(nil), dims...)
	if opts.Squeeze {
		keepDims = keepDims[:0]
		for _, d := range dims {
			if dimSizes[d] > 1 {
				keepDims = append(keepDims, d)
			}
		}
	}

	offsets := make(map[string]Offset, len(sub.Entries))
	for _, e := range sub.Entries {
		coord := make([]int, len(keepDims))
		ok := true
		for i, key := range keepDims {
			p := sub.indexOf(key)
			if p < 0 {
				ok = false
				break
			}
			v := e.Header[p]
			if v.IsUndef() {
				ok = false
				break
			}
			idxPos, found := coordPos[key][v.Value()]
			if !found {
				ok = false
				break
			}
			coord[i] = idxPos
		}
		if !ok || len(e.Offsets) == 0 {
			continue
		}
		offsets[encodeHeaderKey(coord)] = e.Offsets[0]
	}

	missing := 9999.0
	if mv, ok := attrs["missingValue"]; ok {
		if f, ok := mv.(float64); ok {
			missing = f
		}
	} else {
		internal.Warnf("grib: paramId %v has no explicit missingValue, defaulting to 9999", paramID)
	}

	finalDimSizes := make(map[string]int, len(keepDims)+len(geoSizes))
	for _, d := range keepDims {
		finalDimSizes[d] = dimSizes[d]
	}
	for k, v := range geoSizes {
		finalDimSizes[k] = v
	}

	if opts.EncodeCF.Vertical {
		renameVerticalDim(keepDims, finalDimSizes, coords, attrs)
	}

	headerSize := make([]int, len(keepDims))
	for i, d := range keepDims {
		headerSize[i] = finalDimSizes[d]
	}
	array := NewOnDiskArray(stream, keepDims, headerSize, offsets, gridShape, missing, opts.ErrorPolicy)

	name := variableName(attrs)
	allDims := append(append([]string(nil), keepDims...), geoDims...)
	dataVar := NewDataVariable(name, allDims, array, variableAttributes(attrs, opts.EncodeCF))

	return &VariableComponents{
		Name:       name,
		Dims:       allDims,
		DimSizes:   finalDimSizes,
		Coords:     coords,
		DataVar:    dataVar,
		Attributes: attrs,
	}, nil
}

func retryFiltersFor(paramID interface{}, key string, values []interface{}) []map[string]interface{} {
	filters := make([]map[string]interface{}, 0, len(values))
	for _, v := range values {
		filters = append(filters, map[string]interface{}{"paramId": paramID, key: v})
	}
	return filters
}

func isSubsetOf(requested, supported []string) bool {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	for _, r := range requested {
		if !set[r] {
			return false
		}
	}
	return true
}

func buildHeaderDimKeys(sub *FileIndex, timeDims []string) []string {
	var keys []string
	keys = append(keys, timeDims...)
	for _, k := range headerDimCandidates {
		if slices.Contains(keys, k) {
			continue
		}
		if slices.Contains([]string{"time", "step"}, k) {
			continue // only via timeDims
		}
		keys = append(keys, k)
	}
	return lo.Filter(keys, func(k string, _ int) bool {
		return len(sub.Values(k)) > 0
	})
}

func sortValues(vals []interface{}) {
	sort.Slice(vals, func(i, j int) bool {
		return lessValue(vals[i], vals[j])
	})
}

func reverseValues(vals []interface{}) {
	for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
		vals[i], vals[j] = vals[j], vals[i]
	}
}

func lessValue(a, b interface{}) bool {
	switch x := a.(type) {
	case int64:
		y, _ := b.(int64)
		return x < y
	case float64:
		y, _ := b.(float64)
		return x < y
	case string:
		y, _ := b.(string)
		return x < y
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}

func toFloat64Slice(vals []interface{}) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case int64:
			out[i] = float64(x)
		case float64:
			out[i] = x
		default:
			out[i] = 0
		}
	}
	return out
}

func coordAttributes(key string, attrs map[string]interface{}) map[string]interface{} {
	switch key {
	case "time":
		return map[string]interface{}{"standard_name": "forecast_reference_time", "units": "seconds since 1970-01-01T00:00:00Z"}
	case "step":
		return map[string]interface{}{"standard_name": "forecast_period", "units": "hours"}
	case "level":
		out := map[string]interface{}{"long_name": "original GRIB coordinate for key: level"}
		if typeOfLevel, ok := attrs["typeOfLevel"].(string); ok {
			if u := levelUnits(typeOfLevel); u != "" {
				out["units"] = u
			}
		}
		return out
	case "number":
		return map[string]interface{}{"standard_name": "realization", "long_name": "ensemble member numerical id"}
	case "forecastMonth":
		return map[string]interface{}{"long_name": "months since forecast_reference_time", "units": "1"}
	default:
		return map[string]interface{}{"long_name": "original GRIB coordinate for key: " + key}
	}
}

// levelUnits maps a typeOfLevel name (as produced by tables.GetLevelName) to
// the units CoordinateTranslator's isobaricInhPa/depthBelowLand predicates
// key off (spec.md §4.6 point 1): hPa for pressure-based surfaces, m for
// depth/height-based ones. Surface types with no natural numeric unit
// (surface, tropopause, entire atmosphere, ...) are left without a units
// attribute, so no predicate in the default coordinate models matches them.
func levelUnits(typeOfLevel string) string {
	switch typeOfLevel {
	case "Isobaric", "Pressure Diff":
		return "hPa"
	case "Depth BG", "Depth BelowSea", "Ocean Layer", "Ocean Layer Avg", "Altitude MSL", "Height AGL":
		return "m"
	default:
		return ""
	}
}

// renameVerticalDim renames the "level" header dimension in place to the
// message's typeOfLevel-derived name, the way cfgrib.dataset.build_variable_components
// does when encode_cf includes "vertical" (cfgrib/dataset.py's rename of
// "level" to data_var_attrs["GRIB_typeOfLevel"]): coords always moves from
// the "level" key to the new one (even if squeeze dropped "level" out of
// dims/dimSizes, in which case it surfaces as a renamed scalar coordinate
// rather than a dimension); dims/dimSizes are renamed in place only if
// "level" is still present in them. A no-op if this variable has no "level"
// coordinate at all, or its typeOfLevel is unavailable.
func renameVerticalDim(dims []string, dimSizes map[string]int, coords map[string]Variable, attrs map[string]interface{}) {
	c, ok := coords["level"]
	if !ok {
		return
	}
	typeOfLevel, ok := attrs["typeOfLevel"].(string)
	if !ok {
		return
	}
	newName := typeOfLevelDimName(typeOfLevel)
	if newName == "level" {
		return
	}

	if pos := indexOfString(dims, "level"); pos >= 0 {
		dims[pos] = newName
	}
	if size, ok := dimSizes["level"]; ok {
		dimSizes[newName] = size
		delete(dimSizes, "level")
	}
	coords[newName] = renameCoordinateVariable(c, newName)
	delete(coords, "level")
}

// typeOfLevelDimName derives the canonical vertical coordinate key
// CoordinateTranslator's predicate table matches on directly (spec.md §4.6
// point 1) from a GRIB typeOfLevel name: isobaricInhPa/depthBelowLand for the
// pressure/length-unit surfaces levelUnits recognizes, hybrid for the hybrid
// surface, and a lowerCamelCase slug of the type name otherwise (a level type
// CoordinateTranslator has no predicate for, same as cfgrib leaving such
// dimensions untranslated).
func typeOfLevelDimName(typeOfLevel string) string {
	switch levelUnits(typeOfLevel) {
	case "hPa":
		return "isobaricInhPa"
	case "m":
		return "depthBelowLand"
	}
	if typeOfLevel == "Hybrid" {
		return "hybrid"
	}
	return slugifyLevelName(typeOfLevel)
}

// slugifyLevelName turns a WMO Code Table 4.5 display name ("Depth BG",
// "0°C Isotherm") into a lowerCamelCase identifier suitable as a dimension
// name, dropping any character that isn't a letter or digit.
func slugifyLevelName(name string) string {
	var b []byte
	upperNext := false
	for _, r := range name {
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isUpper && !isDigit {
			upperNext = true
			continue
		}
		if len(b) == 0 {
			if isUpper {
				r += 'a' - 'A'
			}
		} else if upperNext && isLower {
			r -= 'a' - 'A'
		}
		b = append(b, byte(r))
		upperNext = false
	}
	if len(b) == 0 {
		return "level"
	}
	return string(b)
}

// renameCoordinateVariable returns a copy of a 1-D dense coordinate variable
// under a new name, carrying its values and attributes across unchanged.
func renameCoordinateVariable(v Variable, newName string) Variable {
	dense, ok := v.Data.(DenseData)
	if !ok {
		return v
	}
	return Variable{
		Name:       newName,
		Data:       DenseData{DimNames: []string{newName}, DataShape: dense.DataShape, Values: dense.Values},
		Attributes: v.Attributes,
	}
}

func buildValidTime(timeVals, stepVals []interface{}) Variable {
	dims := []string{"time", "step"}
	shape := []int{len(timeVals), len(stepVals)}
	values := make([]float64, len(timeVals)*len(stepVals))
	for i, t := range timeVals {
		tv := t.(int64)
		for j, s := range stepVals {
			sv := s.(float64)
			values[i*len(stepVals)+j] = float64(tv) + sv*3600
		}
	}
	return Variable{
		Name: "valid_time",
		Data: DenseData{DimNames: dims, DataShape: shape, Values: values},
		Attributes: map[string]interface{}{
			"standard_name": "time",
			"units":         "seconds since 1970-01-01T00:00:00Z",
		},
	}
}

// bestEffortAttributes reads spec.md §4.5 point 2's descriptive attribute set
// from the first message of sub, ignoring any key that is absent.
func bestEffortAttributes(sub *FileIndex, stream *FileStream) map[string]interface{} {
	attrs := make(map[string]interface{})
	if len(sub.Entries) == 0 || len(sub.Entries[0].Offsets) == 0 {
		return attrs
	}
	rec, err := stream.Get(sub.Entries[0].Offsets[0])
	if err != nil {
		return attrs
	}
	for _, key := range []string{"shortName", "units", "name", "cfName", "cfVarName", "missingValue", "numberOfPoints", "gridType", "typeOfLevel", "stepUnits", "stepType", "paramId"} {
		if v, err := rec.Get(key); err == nil {
			attrs[key] = v
		}
	}
	return attrs
}

func variableName(attrs map[string]interface{}) string {
	if sn, ok := attrs["shortName"].(string); ok && sn != "" && sn != "unknown" {
		return sn
	}
	if pid, ok := attrs["paramId"]; ok {
		return fmt.Sprintf("paramId_%v", pid)
	}
	return "unknown"
}

func variableAttributes(attrs map[string]interface{}, cf EncodeCFOptions) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	if cf.Parameter {
		for _, k := range []string{"units", "name", "cfName", "cfVarName"} {
			if v, ok := attrs[k]; ok {
				out[k] = v
			}
		}
	}
	for k, v := range attrs {
		out["GRIB_"+k] = v
	}
	return out
}

// Dataset is the final CDM bundle spec.md §3/§6 describes.
type Dataset struct {
	Dimensions map[string]int
	Variables  map[string]Variable
	Attributes map[string]interface{}
	Encoding   map[string]interface{}
}

// BuildDatasetComponents implements spec.md §4.5's build_dataset_components:
// iterate every paramId in idx, merge each variable's dims/coords/data into a
// single Dataset. A conflicting dimension size between two variables aborts
// the build with an error whatever the ErrorPolicy.
func BuildDatasetComponents(stream *FileStream, idx *FileIndex, opts BuildOptions) (*Dataset, error) {
	paramIDs := idx.Values("paramId")

	ds := &Dataset{
		Dimensions: make(map[string]int),
		Variables:  make(map[string]Variable),
		Attributes: make(map[string]interface{}),
		Encoding: map[string]interface{}{
			"source_path":    idx.SourcePath,
			"filter_by_keys": idx.FilterByKeys,
		},
	}

	for _, pid := range paramIDs {
		comp, err := BuildVariableComponents(stream, idx, pid, opts)
		if err != nil {
			switch opts.ErrorPolicy {
			case ErrorsRaise:
				return nil, err
			case ErrorsWarn:
				internal.Warnf("grib: skipping paramId %v: %v", pid, err)
				continue
			default:
				continue
			}
		}

		for dim, size := range comp.DimSizes {
			if existing, ok := ds.Dimensions[dim]; ok && existing != size {
				return nil, errors.Errorf("dimension %q size conflict: %d vs %d", dim, existing, size)
			}
			ds.Dimensions[dim] = size
		}
		for name, v := range comp.Coords {
			if opts.Squeeze {
				v = v.Squeeze()
			}
			ds.Variables[name] = v
		}
		dataVar := comp.DataVar
		ds.Variables[comp.Name] = dataVar
	}

	ds.Attributes["Conventions"] = "CF-1.7"
	if inst, ok := firstAttribute(ds.Variables, "GRIB_centreDescription"); ok {
		ds.Attributes["institution"] = inst
	}
	ds.Attributes["history"] = fmt.Sprintf("%s GRIB to CDM via cfgrib-go", stampedHistoryTime())

	if len(opts.ExtraCoords) > 0 {
		if err := applyExtraCoords(ds, idx, opts); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

func firstAttribute(vars map[string]Variable, key string) (interface{}, bool) {
	for _, v := range vars {
		if val, ok := v.Attributes[key]; ok {
			return val, true
		}
	}
	return nil, false
}

// stampedHistoryTime is kept as its own function, rather than a direct
// time.Now() call inline, so a future caller can inject a fixed clock for
// reproducible golden-file tests.
func stampedHistoryTime() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// applyExtraCoords attaches the caller's extra_coords mapping (spec.md §4.5's
// "Extra coordinates"): each named coordinate must be a single-valued
// function of its indexing dimension.
func applyExtraCoords(ds *Dataset, idx *FileIndex, opts BuildOptions) error {
	for name, dim := range opts.ExtraCoords {
		size, ok := ds.Dimensions[dim]
		if !ok {
			continue
		}
		seen := make(map[int]interface{})
		for _, e := range idx.Entries {
			p := idx.indexOf(dim)
			if p < 0 {
				continue
			}
			dimVal := e.Header[p]
			if dimVal.IsUndef() {
				continue
			}
			extraP := idx.indexOf(name)
			if extraP < 0 {
				continue
			}
			extraVal := e.Header[extraP]
			key := int(dimVal.I)
			if prev, ok := seen[key]; ok && prev != extraVal.Value() {
				return &InconsistentExtraCoordError{Name: name, Dim: dim}
			}
			seen[key] = extraVal.Value()
		}
		values := make([]float64, size)
		for k, v := range seen {
			if k >= 0 && k < size {
				if f, ok := v.(float64); ok {
					values[k] = f
				} else if i, ok := v.(int64); ok {
					values[k] = float64(i)
				}
			}
		}
		ds.Variables[name] = NewCoordinateVariable(name, dim, values, map[string]interface{}{"long_name": "extra coordinate " + name})
	}
	return nil
}
