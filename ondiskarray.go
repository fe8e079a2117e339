package grib

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ecmwf/cfgrib-go/internal"
)

// AxisIndex is the sealed variant of a single axis's index expression passed
// to OnDiskArray.Fetch: either a scalar position (dropped from the result
// shape), a strided slice, or an explicit list of positions. Grounded on
// numpy's basic/fancy indexing split that cfgrib.dataset.OnDiskArray.__getitem__
// dispatches on.
type AxisIndex interface {
	axisIndex()
	positions(size int) ([]int, bool, error) // bool: drop this axis from output
}

// Int selects a single position on an axis; the axis is dropped from the
// result shape, as with numpy's integer indexing.
type Int int

func (Int) axisIndex() {}
func (i Int) positions(size int) ([]int, bool, error) {
	p := int(i)
	if p < 0 {
		p += size
	}
	if p < 0 || p >= size {
		return nil, false, errors.Errorf("index %d out of range for axis of size %d", int(i), size)
	}
	return []int{p}, true, nil
}

// Slice selects a [Start:Stop:Step) range on an axis, Python-slice style.
// A zero Step is treated as 1. The zero value (Start 0, Stop 0) selects no
// positions; FullSlice (Full: true) selects the whole axis.
type Slice struct {
	Start, Stop, Step int
	Full              bool
}

func (Slice) axisIndex() {}
func (s Slice) positions(size int) ([]int, bool, error) {
	if s.Full {
		out := make([]int, size)
		for i := range out {
			out[i] = i
		}
		return out, false, nil
	}
	step := s.Step
	if step == 0 {
		step = 1
	}
	start, stop := s.Start, s.Stop
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if stop > size {
		stop = size
	}
	var out []int
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, false, nil
}

// FullSlice selects every position on an axis.
func FullSlice() Slice { return Slice{Full: true} }

// List selects an explicit, possibly unordered or repeated, set of positions
// on an axis (numpy fancy indexing).
type List []int

func (List) axisIndex() {}
func (l List) positions(size int) ([]int, bool, error) {
	for _, p := range l {
		if p < 0 || p >= size {
			return nil, false, errors.Errorf("index %d out of range for axis of size %d", p, size)
		}
	}
	return []int(l), false, nil
}

// Array is the dense result of a Fetch call: row-major float64 data plus its
// shape, with the NaN-filling and missing-value substitution already applied.
type Array struct {
	Shape []int
	Data  []float64
}

// flatIndex returns the flat index for a row-major coordinate tuple.
func (a *Array) flatIndex(coord []int) int {
	idx := 0
	for i, c := range coord {
		idx = idx*a.Shape[i] + c
	}
	return idx
}

// OnDiskArray is a lazy, N-dimensional view over a set of GRIB messages
// selected by a FileIndex: the outer (header) axes index into distinct
// messages, and the inner two axes are the fixed (Nj, Ni) grid shape of every
// message in the array (spec.md §4.4). Grounded on cfgrib.dataset.OnDiskArray,
// with decode results cached per header-combination rather than per full
// array read, since DatasetBuilder may Fetch() the same variable's array more
// than once at different axis projections (e.g. once for a coordinate probe,
// once for the bulk read).
type OnDiskArray struct {
	stream      *FileStream
	headerDims  []string             // names of the outer (non-grid) axes, outer to inner
	headerSize  []int                // size of each outer axis
	offsets     map[string]Offset    // flattened header-combo key -> message offset
	gridShape   []int                // [Nj, Ni]
	gridReverse []bool               // per-grid-axis: read that axis back to front
	missing     float64              // substitute value for the decoder's missing sentinel
	policy      ErrorPolicy
	cache       map[string][]float64 // header-combo key -> decoded grid-order values, in on-disk order
}

// NewOnDiskArray builds an array over headerDims (outer-to-inner dimension
// names) and the given header sizes, with offsets keyed by the encoded
// coordinate tuple (see encodeHeaderKey). gridShape is the fixed [Nj, Ni]
// shape shared by every message this array selects.
func NewOnDiskArray(stream *FileStream, headerDims []string, headerSize []int, offsets map[string]Offset, gridShape []int, missing float64, policy ErrorPolicy) *OnDiskArray {
	return &OnDiskArray{
		stream:      stream,
		headerDims:  headerDims,
		headerSize:  headerSize,
		offsets:     offsets,
		gridShape:   gridShape,
		gridReverse: make([]bool, len(gridShape)),
		missing:     missing,
		policy:      policy,
		cache:       make(map[string][]float64),
	}
}

// Shape returns the full shape of the array: header dims followed by the
// grid dims.
func (a *OnDiskArray) Shape() []int {
	return append(append([]int(nil), a.headerSize...), a.gridShape...)
}

func encodeHeaderKey(coord []int) string {
	b := make([]byte, 0, len(coord)*5)
	for i, c := range coord {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendInt(b, c)
	}
	return string(b)
}

func appendInt(b []byte, v int) []byte {
	if v == 0 {
		return append(b, '0')
	}
	neg := v < 0
	if neg {
		v = -v
	}
	start := len(b)
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	if neg {
		b = append(b, '-')
	}
	// reverse in place
	for l, r := start, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
	return b
}

// decodeHeaderKey parses a string produced by encodeHeaderKey back into its
// coordinate tuple (the inverse operation), used by Reversed to remap offsets
// without decoding any message data.
func decodeHeaderKey(key string, n int) []int {
	if n == 0 {
		return nil
	}
	parts := strings.Split(key, ",")
	coord := make([]int, len(parts))
	for i, p := range parts {
		v, _ := strconv.Atoi(p)
		coord[i] = v
	}
	return coord
}

// Reversed returns a new OnDiskArray identical to a except that the axis at
// dimIndex (header axis if < len(headerDims), grid axis otherwise) is
// addressed in reverse order: position i now resolves to what was position
// (size-1-i). This is how CoordinateTranslator honors a configured
// StoredDirection (spec.md §4.6 point 3) without decoding any message data.
func (a *OnDiskArray) Reversed(dimIndex int) *OnDiskArray {
	if dimIndex < len(a.headerDims) {
		return a.reversedHeader(dimIndex)
	}
	return a.reversedGrid(dimIndex - len(a.headerDims))
}

// reversedHeader remaps the offsets lookup table so that header axis
// dimIndex reads back to front; it touches no file handle and is
// O(len(offsets)).
func (a *OnDiskArray) reversedHeader(dimIndex int) *OnDiskArray {
	size := a.headerSize[dimIndex]
	newOffsets := make(map[string]Offset, len(a.offsets))
	for key, off := range a.offsets {
		coord := decodeHeaderKey(key, len(a.headerDims))
		coord[dimIndex] = size - 1 - coord[dimIndex]
		newOffsets[encodeHeaderKey(coord)] = off
	}
	return &OnDiskArray{
		stream:      a.stream,
		headerDims:  a.headerDims,
		headerSize:  a.headerSize,
		offsets:     newOffsets,
		gridShape:   a.gridShape,
		gridReverse: a.gridReverse,
		missing:     a.missing,
		policy:      a.policy,
		cache:       make(map[string][]float64),
	}
}

// reversedGrid flips the read direction of grid axis gridIndex (e.g.
// latitude, which is stored as the grid's outer axis rather than as a header
// axis). The offsets table and decoded-grid cache are untouched and shared
// with a: only Fetch's within-grid indexing changes, since a geography axis
// can only be reversed by reading the decoded slab back to front, not by
// remapping which message backs which header combination.
func (a *OnDiskArray) reversedGrid(gridIndex int) *OnDiskArray {
	newReverse := append([]bool(nil), a.gridReverse...)
	newReverse[gridIndex] = !newReverse[gridIndex]
	return &OnDiskArray{
		stream:      a.stream,
		headerDims:  a.headerDims,
		headerSize:  a.headerSize,
		offsets:     a.offsets,
		gridShape:   a.gridShape,
		gridReverse: newReverse,
		missing:     a.missing,
		policy:      a.policy,
		cache:       a.cache,
	}
}

// Fetch resolves idx (one AxisIndex per dimension, header axes followed by
// the two grid axes) into a dense Array. Header-combinations with no message
// in the index are filled with NaN for the whole grid slab (spec.md §4.4's
// "holes" behavior); any decode error is handled per a's policy (ignore:
// treat as a hole, warn: log and treat as a hole, raise: abort and return the
// error).
func (a *OnDiskArray) Fetch(idx []AxisIndex) (*Array, error) {
	nDims := len(a.headerDims) + len(a.gridShape)
	if len(idx) != nDims {
		return nil, errors.Errorf("fetch: expected %d axis indices, got %d", nDims, len(idx))
	}

	fullShape := a.Shape()
	var positions [][]int
	var drop []bool
	for i, ai := range idx {
		p, d, err := ai.positions(fullShape[i])
		if err != nil {
			return nil, errors.Wrapf(err, "axis %d", i)
		}
		positions = append(positions, p)
		drop = append(drop, d)
	}

	outShape := make([]int, 0, nDims)
	for i, p := range positions {
		if !drop[i] {
			outShape = append(outShape, len(p))
		}
	}
	if len(outShape) == 0 {
		outShape = []int{1}
	}
	total := 1
	for _, s := range outShape {
		total *= s
	}
	out := &Array{Shape: outShape, Data: make([]float64, total)}
	for i := range out.Data {
		out.Data[i] = math.NaN()
	}

	headerPositions := positions[:len(a.headerDims)]
	gridPositions := positions[len(a.headerDims):]
	gridDrop := drop[len(a.headerDims):]

	outIdx := make([]int, 0, nDims)
	return out, a.walkHeaderCombos(headerPositions, nil, func(headerCoord []int) error {
		key := encodeHeaderKey(headerCoord)
		values, ok, err := a.decodedValues(key)
		if err != nil {
			return err
		}

		outIdx = outIdx[:0]
		for i, d := range drop[:len(a.headerDims)] {
			if !d {
				outIdx = append(outIdx, indexOfPosition(headerPositions[i], headerCoord[i]))
			}
		}

		return a.walkGridCombos(gridPositions, nil, func(gridCoord []int) error {
			full := append([]int(nil), outIdx...)
			for i, d := range gridDrop {
				if !d {
					full = append(full, indexOfPosition(gridPositions[i], gridCoord[i]))
				}
			}
			if !ok {
				return nil // hole: leave NaN
			}
			gridFlat := 0
			for i, c := range gridCoord {
				if a.gridReverse[i] {
					c = a.gridShape[i] - 1 - c
				}
				gridFlat = gridFlat*a.gridShape[i] + c
			}
			v := values[gridFlat]
			if v == a.missing {
				return nil // leave NaN
			}
			out.Data[out.flatIndex(full)] = v
			return nil
		})
	})
}

func indexOfPosition(positions []int, p int) int {
	for i, q := range positions {
		if q == p {
			return i
		}
	}
	return 0
}

// walkHeaderCombos enumerates the cartesian product of positions (one slice
// per header axis) in row-major order, calling fn with each full coordinate
// tuple.
func (a *OnDiskArray) walkHeaderCombos(positions [][]int, prefix []int, fn func([]int) error) error {
	if len(positions) == 0 {
		return fn(append([]int(nil), prefix...))
	}
	for _, p := range positions[0] {
		if err := a.walkHeaderCombos(positions[1:], append(prefix, p), fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *OnDiskArray) walkGridCombos(positions [][]int, prefix []int, fn func([]int) error) error {
	if len(positions) == 0 {
		return fn(append([]int(nil), prefix...))
	}
	for _, p := range positions[0] {
		if err := a.walkGridCombos(positions[1:], append(prefix, p), fn); err != nil {
			return err
		}
	}
	return nil
}

// decodedValues returns the grid-order values for the message at header
// combo key, decoding (and caching) on first access. ok is false for a
// header combo with no backing message (a "hole").
func (a *OnDiskArray) decodedValues(key string) ([]float64, bool, error) {
	if v, found := a.cache[key]; found {
		return v, true, nil
	}
	off, ok := a.offsets[key]
	if !ok {
		return nil, false, nil
	}
	rec, err := a.stream.Get(off)
	if err != nil {
		return nil, false, a.handleDecodeError(err)
	}
	values, err := rec.RawValues()
	if err != nil {
		return nil, false, a.handleDecodeError(err)
	}
	a.cache[key] = values
	return values, true, nil
}

func (a *OnDiskArray) handleDecodeError(err error) error {
	switch a.policy {
	case ErrorsRaise:
		return errors.Wrap(err, "decoding array element")
	case ErrorsWarn:
		internal.Warnf("grib: decoding array element, treating it as a hole: %v", err)
		return nil
	default:
		return nil // caller treats as a hole
	}
}
