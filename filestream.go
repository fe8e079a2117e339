package grib

import (
	"io"
	"os"
	"sync"

	"github.com/ecmwf/cfgrib-go/internal"
	"github.com/pkg/errors"
)

// FileStream provides sequential and random-access traversal of all messages
// in a GRIB file, yielding (Offset, *Record) pairs with offsets suitable for
// later random re-access (spec.md §4.2), grounded on cfgrib/messages.py's
// FileStream/FileStreamItems plus this module's own stream.go/parser.go
// byte-boundary scanner.
//
// A FileStream owns exactly one open file descriptor, and calls from several
// goroutines are serialized (spec.md §5): every method except Path takes the
// per-file lock for its duration.
type FileStream struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// OpenFileStream opens path for sequential and random-access message
// traversal. The caller must Close the returned stream.
func OpenFileStream(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	return &FileStream{path: path, f: f}, nil
}

// Path returns the source path this stream was opened from.
func (s *FileStream) Path() string { return s.path }

// Close releases the underlying file descriptor.
func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// StreamItem pairs a decoded record with the offset it was read from.
type StreamItem struct {
	Offset Offset
	Record *Record
}

// Items scans the whole file once in order, in "sequential scan" mode
// (spec.md §9's multi-field acquire/release scope), and returns every
// message as a (Offset, Record) pair.
//
// Per spec.md §4.2's failure semantics: a stream that reaches EOF without
// ever producing a valid message returns EmptyFileError; a mid-scan corrupt
// message is handled according to policy (ignore: skip silently, warn: log
// and skip, raise: abort and return the error); EOF after at least one valid
// message is a normal, non-error termination.
func (s *FileStream) Items(policy ErrorPolicy) ([]StreamItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	endSequentialScan := beginSequentialScan()
	defer endSequentialScan()

	boundaries, err := FindMessagesInStream(s.f)
	if err != nil {
		switch policy {
		case ErrorsRaise:
			return nil, errors.Wrap(err, "scanning message boundaries")
		case ErrorsWarn:
			internal.Warnf("grib: corrupt stream %q: %v", s.path, err)
		}
	}

	items := make([]StreamItem, 0, len(boundaries))
	fieldCounter := map[int64]int{}
	for _, b := range boundaries {
		msgData, rerr := readMessageAt(s.f, int64(b.Start), b.Length)
		if rerr != nil {
			if handled := handleScanError(policy, s.path, rerr); handled != nil {
				return nil, handled
			}
			continue
		}
		msg, perr := ParseMessage(msgData)
		if perr != nil {
			if handled := handleScanError(policy, s.path, perr); handled != nil {
				return nil, handled
			}
			continue
		}

		// Disambiguate repeated offsets from consecutive multi-field
		// sub-messages by incrementing the field_index component
		// (spec.md §4.2); this decoder only ever emits field 0, so the
		// counter stays at 0 for every real file, but the bookkeeping is
		// kept so a future multi-field-capable decoder slots in cleanly.
		field := fieldCounter[int64(b.Start)]
		fieldCounter[int64(b.Start)] = field + 1

		off := Offset{Pos: int64(b.Start), Field: field}
		items = append(items, StreamItem{Offset: off, Record: NewRecord(msg, off)})
	}

	if len(items) == 0 {
		return nil, &EmptyFileError{Path: s.path}
	}
	return items, nil
}

func handleScanError(policy ErrorPolicy, path string, err error) error {
	switch policy {
	case ErrorsRaise:
		return errors.Wrapf(err, "decoding message in %q", path)
	case ErrorsWarn:
		internal.Warnf("grib: skipping corrupt message in %q: %v", path, err)
		return nil
	default:
		return nil
	}
}

// Get seeks to offset and decodes exactly one message (spec.md §4.2's
// random-access contract). Multi-field mode is re-enabled for the duration
// of the call when offset.Field > 0, then restored, matching the
// acquire/release scope in spec.md §9. A zero Offset reads the first message
// from the start of the file.
func (s *FileStream) Get(offset Offset) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset.Field > 0 {
		endRandomAccess := beginRandomAccessMultiField()
		defer endRandomAccess()
	}

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to start")
	}
	boundaries, err := FindMessagesInStream(s.f)
	if err != nil {
		return nil, errors.Wrap(err, "scanning message boundaries")
	}

	for _, b := range boundaries {
		if int64(b.Start) != offset.Pos {
			continue
		}
		msgData, err := readMessageAt(s.f, int64(b.Start), b.Length)
		if err != nil {
			return nil, errors.Wrapf(err, "reading message at offset %s", offset)
		}
		msg, err := ParseMessage(msgData)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding message at offset %s", offset)
		}
		return NewRecord(msg, offset), nil
	}
	return nil, errors.Errorf("no message at offset %s in %q", offset, s.path)
}

// multiFieldState is the process-wide flag modelling the decoder's global
// multi-field mode (spec.md §5/§9): sequential scans enable it, random
// access re-enables it only for field_index > 0 offsets, and both paths
// restore the prior value on every exit, including errors.
var multiFieldState struct {
	mu      sync.Mutex
	enabled bool
}

func beginSequentialScan() func() {
	multiFieldState.mu.Lock()
	prev := multiFieldState.enabled
	multiFieldState.enabled = true
	multiFieldState.mu.Unlock()
	return func() {
		multiFieldState.mu.Lock()
		multiFieldState.enabled = prev
		multiFieldState.mu.Unlock()
	}
}

func beginRandomAccessMultiField() func() {
	multiFieldState.mu.Lock()
	prev := multiFieldState.enabled
	multiFieldState.enabled = true
	multiFieldState.mu.Unlock()
	return func() {
		multiFieldState.mu.Lock()
		multiFieldState.enabled = prev
		multiFieldState.mu.Unlock()
	}
}
