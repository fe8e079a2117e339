package grib

import "fmt"

// ParseError represents an error during GRIB2 parsing.
// It includes context about where in the file the error occurred.
type ParseError struct {
	Section    int    // Which section (0-7), or -1 if file-level
	Offset     int    // Byte offset in file where error occurred
	Message    string // Description of the error
	Underlying error  // Wrapped error, if any
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Section == -1 {
		if e.Underlying != nil {
			return fmt.Sprintf("at offset %d: %s: %v", e.Offset, e.Message, e.Underlying)
		}
		return fmt.Sprintf("at offset %d: %s", e.Offset, e.Message)
	}

	if e.Underlying != nil {
		return fmt.Sprintf("section %d at offset %d: %s: %v",
			e.Section, e.Offset, e.Message, e.Underlying)
	}
	return fmt.Sprintf("section %d at offset %d: %s",
		e.Section, e.Offset, e.Message)
}

// Unwrap returns the underlying error, if any.
// This allows errors.Is and errors.As to work correctly.
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// UnsupportedTemplateError indicates a template number that isn't implemented yet.
type UnsupportedTemplateError struct {
	Section        int // Which section (3=grid, 4=product, 5=data)
	TemplateNumber int // The unsupported template number
}

// Error implements the error interface.
func (e *UnsupportedTemplateError) Error() string {
	sectionName := "unknown"
	switch e.Section {
	case 3:
		sectionName = "grid definition"
	case 4:
		sectionName = "product definition"
	case 5:
		sectionName = "data representation"
	}

	return fmt.Sprintf("unsupported %s template %d in section %d",
		sectionName, e.TemplateNumber, e.Section)
}

// InvalidFormatError indicates that the data is not a valid GRIB2 file.
type InvalidFormatError struct {
	Message string // Description of what's invalid
	Offset  int    // Byte offset where the invalid data was found
}

// Error implements the error interface.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid GRIB2 format at offset %d: %s", e.Offset, e.Message)
}

// KeyNotFoundError indicates that a requested key has no value on a message
// and no default was supplied.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// ReadOnlyError indicates a set() was attempted against a key the decoder
// will not accept a write for.
type ReadOnlyError struct {
	Key string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("key %q is read-only", e.Key)
}

// TypeMismatchError indicates a get()/set() was forced to a type the
// underlying value cannot be coerced to.
type TypeMismatchError struct {
	Key      string
	WantType string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("key %q cannot be read as %s", e.Key, e.WantType)
}

// EmptyFileError indicates a stream started and terminated without ever
// producing a valid message.
type EmptyFileError struct {
	Path string
}

func (e *EmptyFileError) Error() string {
	if e.Path == "" {
		return "empty file: no valid GRIB message found"
	}
	return fmt.Sprintf("empty file %q: no valid GRIB message found", e.Path)
}

// NotUniqueError indicates FileIndex.GetOne was called for a key that
// carries more than one distinct value across the current projection.
type NotUniqueError struct {
	Key    string
	Values []interface{}
}

func (e *NotUniqueError) Error() string {
	return fmt.Sprintf("key %q is not unique: %d distinct values %v", e.Key, len(e.Values), e.Values)
}

// AmbiguousVariableError indicates an index attribute expected to carry a
// single value across a paramId subindex instead carries several. RetryFilters
// lists the candidate filter sets the caller can use to split the build into
// several unambiguous datasets.
type AmbiguousVariableError struct {
	Key           string
	Values        []interface{}
	RetryFilters  []map[string]interface{}
}

func (e *AmbiguousVariableError) Error() string {
	return fmt.Sprintf("ambiguous variable: key %q has %d distinct values %v, "+
		"retry with one of %d candidate filters", e.Key, len(e.Values), e.Values, len(e.RetryFilters))
}

// AmbiguousCoordError indicates a CoordinateTranslator predicate matched more
// than one source coordinate.
type AmbiguousCoordError struct {
	CoordName string
	Matches   []string
}

func (e *AmbiguousCoordError) Error() string {
	return fmt.Sprintf("ambiguous coordinate %q: matched %v", e.CoordName, e.Matches)
}

// NameCollisionError indicates a coordinate rename would land on an existing,
// non-matching coordinate of the same out_name.
type NameCollisionError struct {
	OutName string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("coordinate rename collides with existing coordinate %q", e.OutName)
}

// InconsistentExtraCoordError indicates an extra_coords function was not
// single-valued over its indexing dimension.
type InconsistentExtraCoordError struct {
	Name string
	Dim  string
}

func (e *InconsistentExtraCoordError) Error() string {
	return fmt.Sprintf("extra coordinate %q is not single-valued over dimension %q", e.Name, e.Dim)
}

// IllegalTimeDimsError indicates the caller requested time_dims that are not
// a subset of the supported reference-time dimension set.
type IllegalTimeDimsError struct {
	Requested []string
	Supported []string
}

func (e *IllegalTimeDimsError) Error() string {
	return fmt.Sprintf("requested time dims %v are not a subset of supported dims %v",
		e.Requested, e.Supported)
}

// UnitIncompatibleError indicates the source and target units belong to
// disjoint UnitConverter equivalence classes.
type UnitIncompatibleError struct {
	From, To string
}

func (e *UnitIncompatibleError) Error() string {
	return fmt.Sprintf("unit %q is not convertible to %q", e.From, e.To)
}

// IndexStaleError indicates a persisted sidecar index was rejected because it
// is older than its source file or the two no longer agree on identity.
type IndexStaleError struct {
	Path   string
	Reason string
}

func (e *IndexStaleError) Error() string {
	return fmt.Sprintf("stale index %q: %s", e.Path, e.Reason)
}

// IndexIncompatibleError indicates a persisted sidecar index was rejected
// because its protocol version, index keys, or source path do not match.
type IndexIncompatibleError struct {
	Path   string
	Reason string
}

func (e *IndexIncompatibleError) Error() string {
	return fmt.Sprintf("incompatible index %q: %s", e.Path, e.Reason)
}

// InvalidDirectionError indicates a configured stored direction is neither
// "increasing" nor "decreasing".
type InvalidDirectionError struct {
	Direction string
}

func (e *InvalidDirectionError) Error() string {
	return fmt.Sprintf("invalid stored direction %q: must be \"increasing\" or \"decreasing\"", e.Direction)
}

// UnsupportedStepUnitError indicates a message's stepUnits code falls in the
// reserved/unsupported range of the step-unit-to-seconds table (codes 3..9).
type UnsupportedStepUnitError struct {
	Code int
}

func (e *UnsupportedStepUnitError) Error() string {
	return fmt.Sprintf("unsupported step unit code %d", e.Code)
}

// ErrorPolicy selects how per-message / per-variable / per-coord build errors
// are handled: swallowed, logged and swallowed, or propagated.
type ErrorPolicy int

const (
	// ErrorsIgnore swallows the error and continues.
	ErrorsIgnore ErrorPolicy = iota
	// ErrorsWarn logs the error via the package's warn logger and continues.
	ErrorsWarn
	// ErrorsRaise aborts the current batch and propagates the error.
	ErrorsRaise
)

func (p ErrorPolicy) String() string {
	switch p {
	case ErrorsIgnore:
		return "ignore"
	case ErrorsWarn:
		return "warn"
	case ErrorsRaise:
		return "raise"
	default:
		return "unknown"
	}
}
