package grib

import (
	"testing"

	"github.com/ecmwf/cfgrib-go/coords"
)

// TestTranslateDatasetErrorsWarnReturnsOriginal exercises spec.md §4.6's
// "Errors behaviour is selectable at the translation-group level": a model
// with an invalid StoredDirection aborts the whole pass, and under
// ErrorsWarn that means the original dataset comes back unchanged rather
// than a partially-translated one.
func TestTranslateDatasetErrorsWarnReturnsOriginal(t *testing.T) {
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, [9]byte{}))
	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}

	badModel := coords.CoordModel{
		"latitude": {OutName: "lat", Units: "degrees_north", StoredDirection: "sideways"},
	}

	out, err := TranslateDataset(ds, badModel, ErrorsWarn)
	if err != nil {
		t.Fatalf("TranslateDataset under ErrorsWarn should not propagate: %v", err)
	}
	if _, ok := out.Variables["latitude"]; !ok {
		t.Errorf("expected dataset unchanged (still has \"latitude\"), got %v", varNames(out))
	}
}

// TestTranslateDatasetErrorsRaisePropagates is the ErrorsRaise counterpart:
// the same invalid model now surfaces as a typed *InvalidDirectionError from
// this package's own error taxonomy (spec.md §7), not the coords package's.
func TestTranslateDatasetErrorsRaisePropagates(t *testing.T) {
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, [9]byte{}))
	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}

	badModel := coords.CoordModel{
		"latitude": {OutName: "lat", Units: "degrees_north", StoredDirection: "sideways"},
	}

	_, err = TranslateDataset(ds, badModel, ErrorsRaise)
	if err == nil {
		t.Fatal("expected an error under ErrorsRaise")
	}
	if _, ok := err.(*InvalidDirectionError); !ok {
		t.Errorf("expected *grib.InvalidDirectionError, got %T: %v", err, err)
	}
}

// TestTranslateDatasetNoCoordModelNoop documents that Open without
// WithCoordModel leaves coordinates exactly as DatasetBuilder produced them.
func TestTranslateDatasetNoCoordModelNoop(t *testing.T) {
	stream, idx := buildTestIndex(t, makeTemperatureMessage(500, [9]byte{}))
	ds, err := BuildDatasetComponents(stream, idx, BuildOptions{ErrorPolicy: ErrorsRaise, EncodeCF: DefaultEncodeCF})
	if err != nil {
		t.Fatalf("BuildDatasetComponents: %v", err)
	}
	out, err := TranslateDataset(ds, coords.CoordModel{}, ErrorsRaise)
	if err != nil {
		t.Fatalf("TranslateDataset with an empty model: %v", err)
	}
	if len(out.Variables) != len(ds.Variables) {
		t.Errorf("expected an empty model to leave variable count unchanged: %d vs %d", len(out.Variables), len(ds.Variables))
	}
}
