package grib

// VariableData is the sealed capability a Variable's data can expose: either
// materialized Dense values, or a Lazy handle that defers decoding until
// Fetch is called (spec.md §4.4/§4.5). Exactly one of DenseData/LazyData
// implements it for a given Variable.
type VariableData interface {
	variableData()
	Dims() []string
	Shape() []int
}

// DenseData is fully decoded, in-memory variable data (coordinates, and any
// variable read with squeeze applied down to a scalar).
type DenseData struct {
	DimNames []string
	DataShape []int
	Values   []float64
}

func (DenseData) variableData()   {}
func (d DenseData) Dims() []string { return d.DimNames }
func (d DenseData) Shape() []int   { return d.DataShape }

// LazyData defers decoding to OnDiskArray.Fetch, for variables backed by the
// bulk of a file's messages (spec.md §4.4).
type LazyData struct {
	DimNames []string
	Array    *OnDiskArray
}

func (LazyData) variableData()    {}
func (d LazyData) Dims() []string { return d.DimNames }
func (d LazyData) Shape() []int   { return d.Array.Shape() }

// Fetch resolves idx against the underlying OnDiskArray.
func (d LazyData) Fetch(idx []AxisIndex) (*Array, error) {
	return d.Array.Fetch(idx)
}

// Variable is one named array in a Dataset: either a data variable (always
// Lazy, spanning the header dims plus the grid dims) or a coordinate
// (usually Dense, since coordinate values are cheap to materialize up
// front), with CF-ish attributes attached (spec.md §4.5).
type Variable struct {
	Name       string
	Data       VariableData
	Attributes map[string]interface{}
}

// NewCoordinateVariable builds a 1-D dense coordinate variable over dim,
// holding values in the given order, with attrs merged in (units,
// standard_name, long_name, and similar CF attributes).
func NewCoordinateVariable(name, dim string, values []float64, attrs map[string]interface{}) Variable {
	return Variable{
		Name: name,
		Data: DenseData{
			DimNames:  []string{dim},
			DataShape: []int{len(values)},
			Values:    values,
		},
		Attributes: attrs,
	}
}

// NewDataVariable builds a lazily-backed data variable spanning dims, with
// attrs merged in (units, standard_name/GRIB_* attrs per spec.md §4.5 point
// 4).
func NewDataVariable(name string, dims []string, array *OnDiskArray, attrs map[string]interface{}) Variable {
	return Variable{
		Name: name,
		Data: LazyData{
			DimNames: dims,
			Array:    array,
		},
		Attributes: attrs,
	}
}

// ReverseAxis returns a copy of v with its values addressed in reverse order
// along dim, used by CoordinateTranslator to honor a configured
// StoredDirection (spec.md §4.6 point 3). For Dense data this reverses the
// 1-D value slice directly (coordinate variables are always 1-D); for Lazy
// data it delegates to OnDiskArray.Reversed, which remaps the offset lookup
// table for a header axis, or flips the read direction within the decoded
// grid slab for a geography axis — either way without decoding anything
// itself. v is returned unchanged if it does not carry dim.
func (v Variable) ReverseAxis(dim string) Variable {
	switch d := v.Data.(type) {
	case DenseData:
		pos := indexOfString(d.DimNames, dim)
		if pos != 0 || len(d.DimNames) != 1 {
			return v // multi-dimensional dense reversal is not needed by this module's callers
		}
		values := append([]float64(nil), d.Values...)
		reverseFloat64(values)
		return Variable{Name: v.Name, Data: DenseData{DimNames: d.DimNames, DataShape: d.DataShape, Values: values}, Attributes: v.Attributes}
	case LazyData:
		pos := indexOfString(d.DimNames, dim)
		if pos < 0 {
			return v
		}
		return Variable{Name: v.Name, Data: LazyData{DimNames: d.DimNames, Array: d.Array.Reversed(pos)}, Attributes: v.Attributes}
	default:
		return v
	}
}

func indexOfString(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// Squeeze drops length-1 dimensions from a Dense variable's shape, matching
// squeeze=True dataset behavior (spec.md §4.5 point 6). Lazy data is left
// untouched; DatasetBuilder only squeezes materialized coordinates.
func (v Variable) Squeeze() Variable {
	dense, ok := v.Data.(DenseData)
	if !ok {
		return v
	}
	var dims []string
	var shape []int
	for i, s := range dense.DataShape {
		if s != 1 {
			dims = append(dims, dense.DimNames[i])
			shape = append(shape, s)
		}
	}
	if len(dims) == 0 {
		// A fully-squeezed coordinate becomes a 0-d scalar: keep a single
		// dimensionless value rather than an empty shape, matching netCDF's
		// scalar-variable convention.
		return Variable{Name: v.Name, Data: DenseData{Values: dense.Values}, Attributes: v.Attributes}
	}
	return Variable{Name: v.Name, Data: DenseData{DimNames: dims, DataShape: shape, Values: dense.Values}, Attributes: v.Attributes}
}
