package grib

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecmwf/cfgrib-go/coords"
)

func writeOpenTestFile(t *testing.T, messages ...[]byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "open_test.grib2")
	var all []byte
	for _, m := range messages {
		all = append(all, m...)
	}
	if err := os.WriteFile(path, all, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestOpenBasic(t *testing.T) {
	var packedLow, packedHigh [9]byte
	for i := range packedLow {
		packedLow[i] = byte(i + 1)
		packedHigh[i] = byte(i + 5)
	}
	path := writeOpenTestFile(t, makeTemperatureMessage(500, packedLow), makeTemperatureMessage(1000, packedHigh))

	ds, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer CloseDataset(ds)

	if _, ok := ds.Variables["isobaricInhPa"]; !ok {
		t.Fatalf("expected an isobaricInhPa coordinate (level renamed per typeOfLevel), got %v", varNames(ds))
	}
	if _, ok := ds.Variables["latitude"]; !ok {
		t.Errorf("expected a latitude coordinate, got %v", varNames(ds))
	}
	if ds.Attributes["Conventions"] != "CF-1.7" {
		t.Errorf("Conventions = %v, want CF-1.7", ds.Attributes["Conventions"])
	}
}

// TestOpenWithCoordModel exercises the full Open -> CoordinateTranslator
// pipeline end to end: the raw "level" coordinate (descending hPa-convertible
// values) is renamed to "plev", converted to Pa, and its direction stays
// descending per coords.CDS's StoredDirection for isobaricInhPa.
func TestOpenWithCoordModel(t *testing.T) {
	var packedLow, packedHigh [9]byte
	for i := range packedLow {
		packedLow[i] = byte(i + 1)
		packedHigh[i] = byte(i + 5)
	}
	path := writeOpenTestFile(t, makeTemperatureMessage(500, packedLow), makeTemperatureMessage(1000, packedHigh))

	ds, err := Open(path, WithCoordModel(coords.CDS))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer CloseDataset(ds)

	if _, ok := ds.Variables["level"]; ok {
		t.Errorf("expected \"level\" to be renamed away, still present: %v", varNames(ds))
	}
	plev, ok := ds.Variables["plev"]
	if !ok {
		t.Fatalf("expected a \"plev\" coordinate, got %v", varNames(ds))
	}
	dense, ok := plev.Data.(DenseData)
	if !ok {
		t.Fatalf("expected plev to be DenseData, got %T", plev.Data)
	}
	if len(dense.Values) != 2 || dense.Values[0] != 100000 || dense.Values[1] != 50000 {
		t.Errorf("plev values = %v, want descending Pa [100000 50000]", dense.Values)
	}
	if units := attrString(plev.Attributes, "units"); units != "Pa" {
		t.Errorf("plev units = %q, want Pa", units)
	}

	if _, ok := ds.Variables["lat"]; !ok {
		t.Errorf("expected \"latitude\" renamed to \"lat\", got %v", varNames(ds))
	}

	dataVar, ok := ds.Variables["t"]
	if !ok {
		t.Fatalf("expected data variable \"t\", got %v", varNames(ds))
	}
	lazy, ok := dataVar.Data.(LazyData)
	if !ok {
		t.Fatalf("expected LazyData, got %T", dataVar.Data)
	}
	if got := lazy.Dims(); len(got) < 1 || got[0] != "plev" {
		t.Errorf("data variable's first dim = %v, want leading \"plev\"", got)
	}

	arr, err := lazy.Fetch([]AxisIndex{FullSlice(), FullSlice(), FullSlice()})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, v := range arr.Data {
		if math.IsNaN(v) {
			t.Fatalf("unexpected NaN after coordinate translation: %v", arr.Data)
		}
	}
}

func TestOpenWithFilterByKeys(t *testing.T) {
	var packedLow, packedHigh [9]byte
	path := writeOpenTestFile(t, makeTemperatureMessage(500, packedLow), makeTemperatureMessage(1000, packedHigh))

	ds, err := Open(path, WithFilterByKeys(map[string]interface{}{"level": 500.0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer CloseDataset(ds)

	if size, ok := ds.Dimensions["isobaricInhPa"]; !ok || size != 1 {
		t.Fatalf("expected isobaricInhPa dimension of size 1 after filtering, got %v (ok=%v)", size, ok)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/path/does-not-exist.grib2")
	if err == nil {
		t.Fatal("expected an error opening a nonexistent file")
	}
}
