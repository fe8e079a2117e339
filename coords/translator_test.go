package coords

import "testing"

func TestTranslateLatLon(t *testing.T) {
	source := []Coordinate{
		{Name: "latitude", Dim: "latitude", Units: "degrees_north", Values: []float64{90, 60, 30, 0}},
		{Name: "longitude", Dim: "longitude", Units: "degrees_east", Values: []float64{0, 10, 20}},
	}
	out, err := Translate(source, CDS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var lat, lon *Translation
	for i := range out {
		switch out[i].SourceName {
		case "latitude":
			lat = &out[i]
		case "longitude":
			lon = &out[i]
		}
	}
	if lat == nil || lon == nil {
		t.Fatalf("expected both latitude and longitude translated, got %+v", out)
	}
	if lat.OutName != "lat" {
		t.Errorf("lat.OutName = %q, want lat", lat.OutName)
	}
	if !lat.Reverse {
		t.Errorf("latitude [90,60,30,0] stored increasing should be flagged for reversal")
	}
	if lon.Reverse {
		t.Errorf("longitude [0,10,20] is already increasing, should not be reversed")
	}
}

func TestTranslateIdempotent(t *testing.T) {
	source := []Coordinate{
		{Name: "latitude", Dim: "latitude", Units: "degrees_north", Values: []float64{90, 60, 30, 0}},
	}
	first, err := Translate(source, CDS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values := append([]float64(nil), first[0].Values...)
	if first[0].Reverse {
		values = ReverseFloat64(values)
	}
	// second pass: rename already applied, but predicate still matches on
	// units/name, and the axis is now in the target direction.
	again := []Coordinate{{Name: "latitude", Dim: "latitude", Units: "degrees_north", Values: values}}
	second, err := Translate(again, CDS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second[0].Reverse {
		t.Error("second translation pass should not request another reversal")
	}
}

func TestTranslateAmbiguous(t *testing.T) {
	source := []Coordinate{
		{Name: "lat1", Units: "degrees_north", Values: []float64{0, 1}},
		{Name: "lat2", Units: "degrees_north", Values: []float64{0, 1}},
	}
	_, err := Translate(source, CDS)
	if err == nil {
		t.Fatal("expected AmbiguousCoordError")
	}
	if _, ok := err.(*AmbiguousCoordError); !ok {
		t.Errorf("expected *AmbiguousCoordError, got %T", err)
	}
}

func TestTranslateNoMatch(t *testing.T) {
	source := []Coordinate{{Name: "weird", Units: "furlongs", Values: []float64{1, 2}}}
	out, err := Translate(source, CDS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no translations, got %+v", out)
	}
}

func TestTranslateIsobaric(t *testing.T) {
	// The grib package's DatasetBuilder renames the generic "level" header
	// dimension to "isobaricInhPa" before CoordinateTranslator ever sees it
	// (spec.md §4.5's "vertical" encode_cf group), so that is the name
	// Translate matches on here.
	source := []Coordinate{
		{Name: "isobaricInhPa", Units: "hPa", Values: []float64{1000, 850, 500}},
	}
	out, err := Translate(source, CDS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one translation, got %d", len(out))
	}
	if out[0].OutName != "plev" {
		t.Errorf("OutName = %q, want plev", out[0].OutName)
	}
	if out[0].Values[0] != 100000 {
		t.Errorf("expected hPa->Pa conversion, got %v", out[0].Values[0])
	}
	// Already descending (1000 -> 500), and plev wants Decreasing: no reversal.
	if out[0].Reverse {
		t.Error("descending pressure levels should not be reversed for a Decreasing target")
	}
}

func TestTranslateInvalidDirection(t *testing.T) {
	model := CoordModel{"latitude": {OutName: "lat", Units: "degrees_north", StoredDirection: "sideways"}}
	source := []Coordinate{{Name: "latitude", Units: "degrees_north", Values: []float64{0, 1}}}
	_, err := Translate(source, model)
	if err == nil {
		t.Fatal("expected InvalidDirectionError")
	}
	if _, ok := err.(*InvalidDirectionError); !ok {
		t.Errorf("expected *InvalidDirectionError, got %T", err)
	}
}

func TestTranslateNameCollision(t *testing.T) {
	// Two distinct source coordinates whose predicates both map to the CDS
	// "lat" out name cannot occur for the built-in predicate table (latitude
	// is the only predicate mapping to "lat"), so this exercises the
	// collision path directly against a hand-built model with overlapping
	// out names across two distinct predicate keys.
	model := CoordModel{
		"latitude":  {OutName: "shared", Units: "degrees_north", StoredDirection: Increasing},
		"longitude": {OutName: "shared", Units: "degrees_east", StoredDirection: Increasing},
	}
	source := []Coordinate{
		{Name: "latitude", Units: "degrees_north", Values: []float64{0, 1}},
		{Name: "longitude", Units: "degrees_east", Values: []float64{0, 1}},
	}
	_, err := Translate(source, model)
	if err == nil {
		t.Fatal("expected NameCollisionError")
	}
	if _, ok := err.(*NameCollisionError); !ok {
		t.Errorf("expected *NameCollisionError, got %T", err)
	}
}
