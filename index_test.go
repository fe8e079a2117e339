package grib

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempGRIB(t *testing.T, messages ...[]byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.grib2")
	var all []byte
	for _, m := range messages {
		all = append(all, m...)
	}
	if err := os.WriteFile(path, all, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func twoLevelMessages() [][]byte {
	var packedLow, packedHigh [9]byte
	for i := range packedLow {
		packedLow[i] = byte(i + 1)
		packedHigh[i] = byte(i + 5)
	}
	return [][]byte{
		makeTemperatureMessage(500, packedLow),
		makeTemperatureMessage(1000, packedHigh),
	}
}

func TestBuildFileIndexTwoMessages(t *testing.T) {
	path := writeTempGRIB(t, twoLevelMessages()...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	idx, err := BuildFileIndex(stream, DefaultIndexKeys, nil, ErrorsRaise)
	if err != nil {
		t.Fatalf("BuildFileIndex: %v", err)
	}
	if len(idx.Entries) != 2 {
		t.Fatalf("expected 2 index entries, got %d", len(idx.Entries))
	}

	levels := idx.Values("level")
	if len(levels) != 2 {
		t.Fatalf("expected 2 distinct levels, got %v", levels)
	}
}

func TestFileIndexSubindex(t *testing.T) {
	path := writeTempGRIB(t, twoLevelMessages()...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	idx, err := BuildFileIndex(stream, DefaultIndexKeys, nil, ErrorsRaise)
	if err != nil {
		t.Fatalf("BuildFileIndex: %v", err)
	}

	sub := idx.Subindex(map[string]interface{}{"level": 500.0})
	if len(sub.Entries) != 1 {
		t.Fatalf("expected 1 entry after subindex, got %d", len(sub.Entries))
	}

	// subindex(f1).subindex(f2) == subindex(f1 union f2) (spec.md §8).
	chained := idx.Subindex(map[string]interface{}{"level": 500.0}).Subindex(map[string]interface{}{"dataType": "fc"})
	merged := idx.Subindex(map[string]interface{}{"level": 500.0, "dataType": "fc"})
	if len(chained.Entries) != len(merged.Entries) {
		t.Errorf("chained subindex (%d entries) != merged subindex (%d entries)", len(chained.Entries), len(merged.Entries))
	}
}

func TestFileIndexSubindexConflict(t *testing.T) {
	path := writeTempGRIB(t, twoLevelMessages()...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	idx, err := BuildFileIndex(stream, DefaultIndexKeys, nil, ErrorsRaise)
	if err != nil {
		t.Fatalf("BuildFileIndex: %v", err)
	}

	sub := idx.Subindex(map[string]interface{}{"level": 500.0})
	conflicting := sub.Subindex(map[string]interface{}{"level": 1000.0})
	if len(conflicting.Entries) != 0 {
		t.Errorf("conflicting filters should yield an empty projection, got %d entries", len(conflicting.Entries))
	}
}

func TestFileIndexGetOne(t *testing.T) {
	path := writeTempGRIB(t, twoLevelMessages()...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	idx, err := BuildFileIndex(stream, DefaultIndexKeys, nil, ErrorsRaise)
	if err != nil {
		t.Fatalf("BuildFileIndex: %v", err)
	}

	if _, err := idx.GetOne("level"); err == nil {
		t.Error("expected NotUniqueError for level across both messages")
	} else if _, ok := err.(*NotUniqueError); !ok {
		t.Errorf("expected *NotUniqueError, got %T", err)
	}

	sub := idx.Subindex(map[string]interface{}{"level": 500.0})
	v, err := sub.GetOne("level")
	if err != nil {
		t.Fatalf("GetOne after narrowing subindex: %v", err)
	}
	if v != 500.0 {
		t.Errorf("GetOne(level) = %v, want 500.0", v)
	}
}

func TestIndexSidecarRoundTrip(t *testing.T) {
	path := writeTempGRIB(t, twoLevelMessages()...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	idx, err := BuildFileIndex(stream, DefaultIndexKeys, nil, ErrorsRaise)
	if err != nil {
		t.Fatalf("BuildFileIndex: %v", err)
	}

	sidecar := IndexPath(path, DefaultIndexKeys)
	if err := idx.Save(sidecar); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFileIndex(sidecar, path, DefaultIndexKeys)
	if err != nil {
		t.Fatalf("LoadFileIndex: %v", err)
	}
	if len(loaded.Entries) != len(idx.Entries) {
		t.Errorf("round-tripped index has %d entries, want %d", len(loaded.Entries), len(idx.Entries))
	}
	if loaded.SourcePath != idx.SourcePath {
		t.Errorf("SourcePath mismatch: %q vs %q", loaded.SourcePath, idx.SourcePath)
	}
}

func TestIndexSidecarPerKeySet(t *testing.T) {
	path := writeTempGRIB(t, twoLevelMessages()...)
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	sidecar := IndexPath(path, []string{"paramId"})
	idx, err := OpenIndex(stream, []string{"paramId"}, nil, sidecar, ErrorsRaise)
	if err != nil {
		t.Fatalf("OpenIndex (build): %v", err)
	}
	// Both messages share paramId, so their header tuples merge into one
	// entry holding two offsets.
	if len(idx.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(idx.Entries))
	}

	// Different index key set: its key-set digest gives it its own sidecar
	// path, so OpenIndex under that key set finds no sidecar there and
	// builds from the stream instead of loading the paramId-only sidecar
	// (spec.md §4.3/§9).
	idx2, err := OpenIndex(stream, []string{"paramId", "level"}, nil, IndexPath(path, []string{"paramId", "level"}), ErrorsRaise)
	if err != nil {
		t.Fatalf("OpenIndex (different key set): %v", err)
	}
	if len(idx2.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(idx2.Entries))
	}
}

func TestEmptyFileFatal(t *testing.T) {
	path := writeTempGRIB(t) // no messages
	stream, err := OpenFileStream(path)
	if err != nil {
		t.Fatalf("OpenFileStream: %v", err)
	}
	defer stream.Close()

	_, err = stream.Items(ErrorsRaise)
	if err == nil {
		t.Fatal("expected EmptyFileError")
	}
	if _, ok := err.(*EmptyFileError); !ok {
		t.Errorf("expected *EmptyFileError, got %T", err)
	}
}
