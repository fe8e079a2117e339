package grib

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ecmwf/cfgrib-go/internal"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ProtocolVersion is stamped on every FileIndex at creation and persisted in
// its sidecar. A loaded sidecar with a different version is discarded
// (spec.md §4.3's "protocol_version" field; no schema migration is
// attempted, per spec.md §1's Non-goals).
const ProtocolVersion = 1

// HeaderValue is one element of a HeaderTuple: a primitive taken from a
// message, tagged with the comparison kind spec.md §3 requires ("Keys whose
// native type is long are compared as integers; floats as floats; strings as
// byte strings"). The zero value, KindUndef, is the spec's "undef" sentinel
// for a key absent from a message.
type HeaderValue struct {
	Kind KeyKind
	I    int64
	F    float64
	S    string
}

// KeyKind selects which field of a HeaderValue holds its payload.
type KeyKind uint8

const (
	KindUndef KeyKind = iota
	KindInt
	KindFloat
	KindString
)

// IsUndef reports whether v represents the "undef" sentinel.
func (v HeaderValue) IsUndef() bool { return v.Kind == KindUndef }

// Value unwraps v to a plain interface{} (nil for undef).
func (v HeaderValue) Value() interface{} {
	switch v.Kind {
	case KindInt:
		return v.I
	case KindFloat:
		return v.F
	case KindString:
		return v.S
	default:
		return nil
	}
}

func newHeaderValue(raw interface{}) HeaderValue {
	switch x := raw.(type) {
	case nil:
		return HeaderValue{Kind: KindUndef}
	case int:
		return HeaderValue{Kind: KindInt, I: int64(x)}
	case int32:
		return HeaderValue{Kind: KindInt, I: int64(x)}
	case int64:
		return HeaderValue{Kind: KindInt, I: x}
	case uint8:
		return HeaderValue{Kind: KindInt, I: int64(x)}
	case uint16:
		return HeaderValue{Kind: KindInt, I: int64(x)}
	case uint32:
		return HeaderValue{Kind: KindInt, I: int64(x)}
	case uint64:
		return HeaderValue{Kind: KindInt, I: int64(x)}
	case float64:
		return HeaderValue{Kind: KindFloat, F: x}
	case float32:
		return HeaderValue{Kind: KindFloat, F: float64(x)}
	case string:
		return HeaderValue{Kind: KindString, S: x}
	default:
		return HeaderValue{Kind: KindString, S: strconvFallback(x)}
	}
}

func strconvFallback(x interface{}) string {
	return strings.TrimSpace(strconv.Quote(toStringer(x)))
}

func toStringer(x interface{}) string {
	if s, ok := x.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

// HeaderTuple is the ordered tuple of HeaderValue taken from a message for
// the current index keys (spec.md §3).
type HeaderTuple []HeaderValue

func (t HeaderTuple) key() string {
	var b strings.Builder
	for i, v := range t {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		switch v.Kind {
		case KindUndef:
			b.WriteByte('u')
		case KindInt:
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(v.I, 10))
		case KindFloat:
			b.WriteByte('f')
			b.WriteString(strconv.FormatFloat(v.F, 'g', -1, 64))
		case KindString:
			b.WriteByte('s')
			b.WriteString(v.S)
		}
	}
	return b.String()
}

// IndexEntry is one row of a FileIndex's offset map: a header tuple and the
// (possibly several, for a repeated tuple) offsets that produced it.
type IndexEntry struct {
	Header  HeaderTuple
	Offsets []Offset
}

// FileIndex is the tuple (source_path, index_keys, offset_map,
// filter_by_keys, protocol_version) of spec.md §3/§4.3, grounded on
// cfgrib/messages.py's FileIndex. It is immutable after construction;
// Subindex returns a fresh instance.
type FileIndex struct {
	SourcePath      string
	IndexKeys       []string
	FilterByKeys    map[string]HeaderValue
	ProtocolVersion int
	Entries         []IndexEntry
}

// DefaultIndexKeys is the default set of index keys cfgrib-style tooling
// builds a FileIndex with: enough to partition messages into unambiguous
// variables (paramId, dataType, ...) and to derive the coordinate
// dimensions time/step/level/number plus the spectra keys (spec.md §4.5).
// forecastMonth is not among them.
var DefaultIndexKeys = []string{
	"paramId", "shortName", "dataType", "numberOfPoints", "typeOfLevel",
	"stepUnits", "stepType", "gridType",
	"number", "time", "step", "level",
	"directionNumber", "frequencyNumber",
}

// BuildFileIndex scans stream exactly once (spec.md §4.3's build algorithm)
// and returns a FileIndex over indexKeys, restricted to messages matching
// filterByKeys. Per-message scan errors are handled by FileStream.Items
// according to policy before BuildFileIndex ever sees them.
func BuildFileIndex(stream *FileStream, indexKeys []string, filterByKeys map[string]interface{}, policy ErrorPolicy) (*FileIndex, error) {
	items, err := stream.Items(policy)
	if err != nil {
		return nil, err
	}

	normalizedFilter := make(map[string]HeaderValue, len(filterByKeys))
	for k, v := range filterByKeys {
		normalizedFilter[k] = newHeaderValue(v)
	}

	idx := &FileIndex{
		SourcePath:      stream.Path(),
		IndexKeys:       append([]string(nil), indexKeys...),
		FilterByKeys:    normalizedFilter,
		ProtocolVersion: ProtocolVersion,
	}
	pos := make(map[string]int)

	for _, it := range items {
		if !matchesRecordFilter(it.Record, normalizedFilter) {
			continue
		}
		tuple := make(HeaderTuple, len(indexKeys))
		for i, k := range indexKeys {
			v, err := it.Record.Get(k, nil)
			if err != nil {
				tuple[i] = HeaderValue{Kind: KindUndef}
			} else {
				tuple[i] = newHeaderValue(v)
			}
		}
		key := tuple.key()
		if p, ok := pos[key]; ok {
			idx.Entries[p].Offsets = append(idx.Entries[p].Offsets, it.Offset)
		} else {
			pos[key] = len(idx.Entries)
			idx.Entries = append(idx.Entries, IndexEntry{Header: tuple, Offsets: []Offset{it.Offset}})
		}
	}
	return idx, nil
}

func matchesRecordFilter(r *Record, filter map[string]HeaderValue) bool {
	for k, want := range filter {
		got, err := r.Get(k, nil)
		if err != nil {
			return false
		}
		if newHeaderValue(got) != want {
			return false
		}
	}
	return true
}

// indexOf returns the position of key within idx.IndexKeys, or -1.
func (idx *FileIndex) indexOf(key string) int {
	for i, k := range idx.IndexKeys {
		if k == key {
			return i
		}
	}
	return -1
}

// Subindex projects idx by an additional set of equality filters, preserving
// order and source path (spec.md §4.3). Filters on keys not present in
// IndexKeys cannot be evaluated against the header tuple and are ignored (no
// header-tuple column exists to check them against). A filter that
// contradicts an already-accumulated filter_by_keys entry for the same key
// yields an empty projection, not an error.
func (idx *FileIndex) Subindex(filter map[string]interface{}) *FileIndex {
	normalized := make(map[string]HeaderValue, len(filter))
	for k, v := range filter {
		normalized[k] = newHeaderValue(v)
	}

	merged := make(map[string]HeaderValue, len(idx.FilterByKeys)+len(normalized))
	for k, v := range idx.FilterByKeys {
		merged[k] = v
	}
	conflict := false
	for k, v := range normalized {
		if existing, ok := merged[k]; ok && existing != v {
			conflict = true
		}
		merged[k] = v
	}

	child := &FileIndex{
		SourcePath:      idx.SourcePath,
		IndexKeys:       idx.IndexKeys,
		FilterByKeys:    merged,
		ProtocolVersion: idx.ProtocolVersion,
	}
	if conflict {
		return child
	}

	positions := make(map[string]int, len(normalized))
	for k, v := range normalized {
		if p := idx.indexOf(k); p >= 0 {
			positions[k] = p
		} else {
			_ = v // key not part of the header tuple; best-effort, see doc comment
		}
	}

	for _, e := range idx.Entries {
		ok := true
		for k, v := range normalized {
			p, known := positions[k]
			if !known {
				continue
			}
			if e.Header[p] != v {
				ok = false
				break
			}
		}
		if ok {
			child.Entries = append(child.Entries, e)
		}
	}
	return child
}

// Values returns the distinct values seen for key across idx's current
// projection, excluding undef, in first-appearance order (spec.md §3).
func (idx *FileIndex) Values(key string) []interface{} {
	p := idx.indexOf(key)
	if p < 0 {
		return nil
	}
	seen := make(map[HeaderValue]bool)
	var out []interface{}
	for _, e := range idx.Entries {
		v := e.Header[p]
		if v.IsUndef() || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v.Value())
	}
	return out
}

// GetOne returns the single value for key, or NotUniqueError if more than
// one distinct value is present, or KeyNotFoundError if none is.
func (idx *FileIndex) GetOne(key string) (interface{}, error) {
	vals := idx.Values(key)
	switch len(vals) {
	case 0:
		return nil, &KeyNotFoundError{Key: key}
	case 1:
		return vals[0], nil
	default:
		return nil, &NotUniqueError{Key: key, Values: vals}
	}
}

// AllOffsets returns every offset this index maps to, in index order.
func (idx *FileIndex) AllOffsets() []Offset {
	var out []Offset
	for _, e := range idx.Entries {
		out = append(out, e.Offsets...)
	}
	return out
}

// --- Persistence (spec.md §4.3/§6) ---

// persistedIndex is the gob-serializable sidecar record.
type persistedIndex struct {
	ProtocolVersion int
	SourcePath      string
	IndexKeys       []string
	FilterByKeys    map[string]HeaderValue
	Entries         []IndexEntry
}

// IndexPath returns the default sidecar path for sourcePath and indexKeys:
// "{path}.{short_hash}.idx", short_hash being the first 5 hex chars of the
// MD5 of the canonical (sorted, joined) index key list (spec.md §4.3).
func IndexPath(sourcePath string, indexKeys []string) string {
	sorted := append([]string(nil), indexKeys...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, ",")))
	short := hex.EncodeToString(sum[:])[:5]
	return sourcePath + "." + short + ".idx"
}

// Save persists idx to path using an O_EXCL create so concurrent builders
// elect one writer; if path already exists (another builder won the race),
// Save is a silent no-op, matching spec.md §4.3/§5's "fall through to read"
// policy. All I/O failures here are non-fatal to the caller: Save only
// returns an error for the caller to log, never one that should abort the
// in-memory index already built.
func (idx *FileIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrapf(err, "creating sidecar index %q", path)
	}
	defer f.Close()

	p := persistedIndex{
		ProtocolVersion: idx.ProtocolVersion,
		SourcePath:      idx.SourcePath,
		IndexKeys:       idx.IndexKeys,
		FilterByKeys:    idx.FilterByKeys,
		Entries:         idx.Entries,
	}
	if err := gob.NewEncoder(f).Encode(p); err != nil {
		return errors.Wrapf(err, "encoding sidecar index %q", path)
	}
	return nil
}

// LoadFileIndex loads and validates a persisted sidecar index, applying the
// freshness check of spec.md §4.3/§9: the sidecar must be at least as new as
// the source file (mtime(indexpath) >= mtime(source)) and must agree on
// index_keys, source_path, and protocol_version. A stale, malformed or
// mismatched sidecar returns a typed IndexStaleError/IndexIncompatibleError;
// a source or sidecar that cannot be stat'ed or opened returns the wrapped
// os error. Either way the caller can log it and rebuild.
func LoadFileIndex(indexPath, sourcePath string, indexKeys []string) (*FileIndex, error) {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, "stat source %q", sourcePath)
	}
	idxInfo, err := os.Stat(indexPath)
	if err != nil {
		return nil, errors.Wrapf(err, "stat sidecar %q", indexPath)
	}
	if idxInfo.ModTime().Before(srcInfo.ModTime()) {
		return nil, &IndexStaleError{Path: indexPath, Reason: "index older than source file"}
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sidecar %q", indexPath)
	}
	defer f.Close()

	var p persistedIndex
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, &IndexIncompatibleError{Path: indexPath, Reason: "malformed sidecar: " + err.Error()}
	}
	if p.ProtocolVersion != ProtocolVersion {
		return nil, &IndexIncompatibleError{Path: indexPath, Reason: "protocol version mismatch"}
	}
	if p.SourcePath != sourcePath {
		return nil, &IndexIncompatibleError{Path: indexPath, Reason: "source path mismatch"}
	}
	if !slices.Equal(p.IndexKeys, indexKeys) {
		return nil, &IndexIncompatibleError{Path: indexPath, Reason: "index key set mismatch"}
	}

	return &FileIndex{
		SourcePath:      p.SourcePath,
		IndexKeys:       p.IndexKeys,
		FilterByKeys:    p.FilterByKeys,
		ProtocolVersion: p.ProtocolVersion,
		Entries:         p.Entries,
	}, nil
}

// OpenIndex implements the full load-or-build-or-rebuild flow of spec.md
// §4.3/§6: try the sidecar at indexPath first (empty indexPath disables
// persistence entirely); on any staleness/incompatibility, log a warning and
// rebuild in memory from stream, then best-effort persist the rebuilt index
// to indexPath. Save never overwrites, so when a stale or incompatible
// sidecar already sits at indexPath it stays there and only the in-memory
// index is fresh.
func OpenIndex(stream *FileStream, indexKeys []string, filterByKeys map[string]interface{}, indexPath string, policy ErrorPolicy) (*FileIndex, error) {
	if indexPath != "" {
		if idx, err := LoadFileIndex(indexPath, stream.Path(), indexKeys); err == nil {
			return idx.Subindex(filterByKeys), nil
		} else if !os.IsNotExist(errors.Cause(err)) {
			internal.Warnf("grib: rebuilding index for %q: %v", stream.Path(), err)
		}
	}

	idx, err := BuildFileIndex(stream, indexKeys, nil, policy)
	if err != nil {
		return nil, err
	}
	if indexPath != "" {
		if err := idx.Save(indexPath); err != nil {
			internal.Warnf("grib: could not persist index for %q: %v", stream.Path(), err)
		}
	}
	return idx.Subindex(filterByKeys), nil
}
