package grib

import (
	"math"
	"testing"
)

// buildTestIndex opens a synthetic file and builds a FileIndex over
// DefaultIndexKeys, the shared setup for BuildVariableComponents/
// BuildDatasetComponents tests.
func buildTestIndex(t *testing.T, messages ...[]byte) (*FileStream, *FileIndex) {
	t.Helper()
	path := writeTempGRIB(t, messages...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	t.Cleanup(func() { stream.Close() })

	idx, err := BuildFileIndex(stream, DefaultIndexKeys, nil, ErrorsRaise)
	if err != nil {
		t.Fatalf("BuildFileIndex: %v", err)
	}
	return stream, idx
}

// TestBuildDatasetSimpleKV exercises spec.md §8 scenario 1 ("Simple KV"):
// two messages differing only by level produce a dataset whose vertical
// dimension is sorted descending (per decreasingByDefault) and renamed from
// the generic "level" to "isobaricInhPa" (cfgrib/dataset.py renames it to
// GRIB_typeOfLevel once encode_cf includes "vertical", the default).
func TestBuildDatasetSimpleKV(t *testing.T) {
	var packedLow, packedHigh [9]byte
	for i := range packedLow {
		packedLow[i] = byte(i + 1)
		packedHigh[i] = byte(i + 5)
	}
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, packedLow), makeTemperatureMessage(1000, packedHigh))

	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}

	if _, ok := ds.Dimensions["level"]; ok {
		t.Errorf("expected \"level\" renamed away, still present: %v", ds.Dimensions)
	}
	if size, ok := ds.Dimensions["isobaricInhPa"]; !ok || size != 2 {
		t.Fatalf("expected isobaricInhPa dimension of size 2, got %v (ok=%v)", size, ok)
	}

	levelVar, ok := ds.Variables["isobaricInhPa"]
	if !ok {
		t.Fatalf("expected an isobaricInhPa coordinate variable, got %v", varNames(ds))
	}
	dense, ok := levelVar.Data.(DenseData)
	if !ok {
		t.Fatalf("expected isobaricInhPa to be DenseData, got %T", levelVar.Data)
	}
	if got := dense.Values; len(got) != 2 || got[0] != 1000 || got[1] != 500 {
		t.Errorf("isobaricInhPa values = %v, want descending [1000 500]", got)
	}

	if _, ok := ds.Variables["t"]; !ok {
		t.Fatalf("expected a data variable named %q, got variables %v", "t", varNames(ds))
	}
	dataVar := ds.Variables["t"]
	if got := dataVar.Data.Dims(); len(got) < 1 || got[0] != "isobaricInhPa" {
		t.Errorf("data variable's first dim = %v, want leading \"isobaricInhPa\"", got)
	}
}

// TestBuildDatasetSqueezeDropsScalarHeaderDims exercises spec.md §4.5 point 6
// and the §8 boundary case for single-message files: with squeeze=true, a
// size-1 header dimension (here "isobaricInhPa", "time" and "step" all have
// exactly one value since there is only one message) disappears from both
// the data variable's Dims() and the dataset's dimension map, while its
// coordinate survives as a scalar variable (cfgrib/dataset.py:509).
func TestBuildDatasetSqueezeDropsScalarHeaderDims(t *testing.T) {
	var packed [9]byte
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, packed))

	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF, Squeeze: true})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}

	for _, dim := range []string{"isobaricInhPa", "time", "step"} {
		if _, ok := ds.Dimensions[dim]; ok {
			t.Errorf("expected %q squeezed out of Dimensions, got %v", dim, ds.Dimensions)
		}
	}
	if _, ok := ds.Dimensions["latitude"]; !ok {
		t.Errorf("expected latitude to remain a dimension, got %v", ds.Dimensions)
	}

	levelVar, ok := ds.Variables["isobaricInhPa"]
	if !ok {
		t.Fatalf("expected isobaricInhPa to survive as a scalar coordinate, got %v", varNames(ds))
	}
	dense, ok := levelVar.Data.(DenseData)
	if !ok {
		t.Fatalf("expected isobaricInhPa to be DenseData, got %T", levelVar.Data)
	}
	if len(dense.DimNames) != 0 || len(dense.Values) != 1 || dense.Values[0] != 500 {
		t.Errorf("expected a scalar isobaricInhPa coordinate of [500], got dims=%v values=%v", dense.DimNames, dense.Values)
	}

	dataVar, ok := ds.Variables["t"]
	if !ok {
		t.Fatalf("expected a data variable named %q, got variables %v", "t", varNames(ds))
	}
	if got := dataVar.Data.Dims(); len(got) != 2 || got[0] != "latitude" || got[1] != "longitude" {
		t.Errorf("squeezed data variable dims = %v, want [latitude longitude]", got)
	}
}

func varNames(ds *Dataset) []string {
	var out []string
	for k := range ds.Variables {
		out = append(out, k)
	}
	return out
}

// TestBuildDatasetFetchesValues checks that fetching the whole lazy array
// yields one 3x3 grid per level (shape [2 3 3]) with no NaN holes, since
// every level has a message.
func TestBuildDatasetFetchesValues(t *testing.T) {
	var packedLow, packedHigh [9]byte
	for i := range packedLow {
		packedLow[i] = byte(i + 1)
		packedHigh[i] = byte(i + 5)
	}
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, packedLow), makeTemperatureMessage(1000, packedHigh))

	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}

	dataVar, ok := ds.Variables["t"]
	if !ok {
		t.Fatalf("missing data variable, got %v", varNames(ds))
	}
	lazy, ok := dataVar.Data.(LazyData)
	if !ok {
		t.Fatalf("expected data variable to be LazyData, got %T", dataVar.Data)
	}

	arr, err := lazy.Fetch([]AxisIndex{FullSlice(), FullSlice(), FullSlice()})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(arr.Shape) != 3 || arr.Shape[0] != 2 || arr.Shape[1] != 3 || arr.Shape[2] != 3 {
		t.Fatalf("unexpected shape %v", arr.Shape)
	}
	for _, v := range arr.Data {
		if math.IsNaN(v) {
			t.Fatalf("unexpected NaN in a fully-populated array: %v", arr.Data)
		}
	}
}

// TestBuildDatasetAmbiguousVariable exercises spec.md §4.5 point 1: two
// messages sharing a paramId but disagreeing on typeOfLevel must fail with
// AmbiguousVariableError rather than silently merging into one variable.
func TestBuildDatasetAmbiguousVariable(t *testing.T) {
	var packed [9]byte
	msg1 := makeTemperatureMessage(500, packed)
	msg2 := makeDepthMessage(10, packed)
	stream, idx := buildTestIndex(t, msg1, msg2)

	_, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err == nil {
		t.Fatal("expected an error building a dataset from conflicting typeOfLevel messages")
	}
	if _, ok := err.(*AmbiguousVariableError); !ok {
		t.Errorf("expected *AmbiguousVariableError, got %T: %v", err, err)
	}
}

// TestBuildDatasetNonSentinelValuesNotNaN checks the other side of spec.md
// §4.4's missing-value substitution: decoded values that differ from the
// 9999 default missing sentinel come through as numbers, not NaN.
func TestBuildDatasetNonSentinelValuesNotNaN(t *testing.T) {
	var packed [9]byte
	// Reference value 0, bits-per-value 8, no scale: raw byte value 255
	// decodes to 255.0, not the 9999 default missing sentinel, so this
	// message should NOT be treated as missing -- it exercises the ordinary
	// decode path alongside TestBuildDatasetFetchesValues.
	for i := range packed {
		packed[i] = 255
	}
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, packed))

	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}
	dataVar := ds.Variables["t"]
	lazy := dataVar.Data.(LazyData)
	arr, err := lazy.Fetch([]AxisIndex{Int(0), FullSlice(), FullSlice()})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, v := range arr.Data {
		if math.IsNaN(v) {
			t.Errorf("expected decoded values, got NaN: %v", arr.Data)
		}
	}
}
