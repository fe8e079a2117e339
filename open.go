package grib

import "github.com/ecmwf/cfgrib-go/coords"

// openConfig collects every open_file-style keyword cfgrib's public facade
// takes (spec.md §2's data-flow: path -> FileStream -> FileIndex -> subindex
// -> DatasetBuilder -> CoordinateTranslator -> final dataset), assembled via
// OpenOption functional options (SPEC_FULL.md §3's "Configuration").
type openConfig struct {
	indexKeys    []string
	filterByKeys map[string]interface{}
	indexPath    string
	errorPolicy  ErrorPolicy
	squeeze      bool
	readKeys     []string
	timeDims     []string
	extraCoords  map[string]string
	encodeCF     EncodeCFOptions
	coordModel   coords.CoordModel // nil disables CoordinateTranslator entirely
}

func defaultOpenConfig() openConfig {
	return openConfig{
		indexKeys:   append([]string(nil), DefaultIndexKeys...),
		errorPolicy: ErrorsWarn,
		encodeCF:    DefaultEncodeCF,
	}
}

// OpenOption configures Open, one per cfgrib open_file keyword argument
// (SPEC_FULL.md §3).
type OpenOption func(*openConfig)

// WithIndexKeys overrides the set of keys FileIndex is built over. Defaults
// to DefaultIndexKeys.
func WithIndexKeys(keys []string) OpenOption {
	return func(c *openConfig) { c.indexKeys = keys }
}

// WithFilterByKeys restricts the dataset to messages matching every
// key/value pair, applied both when building/loading the index and as the
// dataset's recorded filter_by_keys (spec.md §8's "dataset.encoding.filter_by_keys
// ⊇ caller.filter_by_keys" invariant).
func WithFilterByKeys(filter map[string]interface{}) OpenOption {
	return func(c *openConfig) { c.filterByKeys = filter }
}

// WithIndexPath overrides the sidecar index path. An empty path (the
// default) disables persistence entirely, per spec.md §4.3.
func WithIndexPath(path string) OpenOption {
	return func(c *openConfig) { c.indexPath = path }
}

// WithErrors sets the three-way error policy threaded through scanning,
// indexing, variable build, and coordinate translation (spec.md §7). Default
// is ErrorsWarn.
func WithErrors(policy ErrorPolicy) OpenOption {
	return func(c *openConfig) { c.errorPolicy = policy }
}

// WithSqueeze drops length-1 header dimensions from the data variable's
// shape and the dataset's dimension map, and collapses their coordinates to
// scalars (spec.md §4.5 point 6/§8's boundary behaviour for single-message
// files).
func WithSqueeze(squeeze bool) OpenOption {
	return func(c *openConfig) { c.squeeze = squeeze }
}

// WithReadKeys adds extra keys DatasetBuilder should read best-effort onto
// each variable's attributes, beyond the built-in descriptive set (spec.md
// §4.5 point 2).
func WithReadKeys(keys []string) OpenOption {
	return func(c *openConfig) { c.readKeys = keys }
}

// WithTimeDims overrides the header dimension pair (or single dim) used for
// the reference-time axes, defaulting to DefaultTimeDims ({time, step})
// (spec.md §4.5 point 3). Requested dims not a subset of the supported set
// fail with IllegalTimeDimsError.
func WithTimeDims(dims []string) OpenOption {
	return func(c *openConfig) { c.timeDims = dims }
}

// WithExtraCoords attaches additional scalar coordinates, each a function of
// exactly one named dimension (spec.md §4.5's "Extra coordinates").
// Inconsistent values for the same dimension position fail with
// InconsistentExtraCoordError.
func WithExtraCoords(extra map[string]string) OpenOption {
	return func(c *openConfig) { c.extraCoords = extra }
}

// WithEncodeCF selects which of the parameter/time/geography/vertical
// encode_cf groups DatasetBuilder applies (spec.md §4.5 point 3). Defaults
// to DefaultEncodeCF (all four enabled).
func WithEncodeCF(opts EncodeCFOptions) OpenOption {
	return func(c *openConfig) { c.encodeCF = opts }
}

// WithCoordModel runs CoordinateTranslator over the built dataset using
// model (spec.md §4.6), renaming/unit-converting/reordering coordinates
// after DatasetBuilder assembles the raw CDM bundle. The default (no option)
// leaves coordinates in their native GRIB naming/units/direction.
func WithCoordModel(model coords.CoordModel) OpenOption {
	return func(c *openConfig) { c.coordModel = model }
}

// Open implements spec.md §2's full data flow for a single GRIB file: scan
// once into a FileIndex (loading a fresh sidecar if one validates, rebuilding
// otherwise), project by filter_by_keys, hand the projection to
// DatasetBuilder, and optionally run CoordinateTranslator over the result.
// The returned Dataset's OnDiskArray-backed variables keep stream open for
// later Fetch calls; callers must arrange to Close it (via Dataset's
// Encoding["stream"], see CloseDataset) once done.
func Open(path string, opts ...OpenOption) (*Dataset, error) {
	cfg := defaultOpenConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	stream, err := OpenFileStream(path)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			stream.Close()
		}
	}()

	idx, err := OpenIndex(stream, cfg.indexKeys, cfg.filterByKeys, cfg.indexPath, cfg.errorPolicy)
	if err != nil {
		return nil, err
	}

	buildOpts := BuildOptions{
		ErrorPolicy: cfg.errorPolicy,
		Squeeze:     cfg.squeeze,
		TimeDims:    cfg.timeDims,
		ExtraCoords: cfg.extraCoords,
		ReadKeys:    cfg.readKeys,
		EncodeCF:    cfg.encodeCF,
	}
	ds, err := BuildDatasetComponents(stream, idx, buildOpts)
	if err != nil {
		return nil, err
	}

	if cfg.coordModel != nil {
		ds, err = TranslateDataset(ds, cfg.coordModel, cfg.errorPolicy)
		if err != nil {
			return nil, err
		}
	}

	ds.Encoding["stream"] = stream
	ok = true
	return ds, nil
}

// CloseDataset releases the FileStream a Dataset built by Open keeps open
// for its OnDiskArray-backed variables. Safe to call once; a Dataset not
// produced by Open has no stream to close and CloseDataset is then a no-op.
func CloseDataset(ds *Dataset) error {
	s, ok := ds.Encoding["stream"].(*FileStream)
	if !ok {
		return nil
	}
	return s.Close()
}
