package mmdb

import "fmt"

// Cause classifies a FormatError.
type Cause int

const (
	MarkerNotFound Cause = iota + 1
	MetadataMalformed
	TruncatedRead
	UnknownValueTag
	CorruptSearchTree
	DataMalformed
)

var causeNames = [...]string{
	MarkerNotFound:    "metadata marker not found",
	MetadataMalformed: "malformed metadata",
	TruncatedRead:     "unexpected end of database",
	UnknownValueTag:   "unknown value type",
	CorruptSearchTree: "search tree is corrupt",
	DataMalformed:     "malformed data",
}

func (c Cause) String() string {
	if c > 0 && int(c) < len(causeNames) {
		return causeNames[c]
	}
	return fmt.Sprintf("cause(%d)", int(c))
}

// Sentinels for errors.Is; a *FormatError matches the sentinel of its Cause.
var (
	ErrMarkerNotFound    = &FormatError{Cause: MarkerNotFound}
	ErrMetadataMalformed = &FormatError{Cause: MetadataMalformed}
	ErrTruncatedRead     = &FormatError{Cause: TruncatedRead}
	ErrUnknownValueTag   = &FormatError{Cause: UnknownValueTag}
	ErrCorruptSearchTree = &FormatError{Cause: CorruptSearchTree}
	ErrDataMalformed     = &FormatError{Cause: DataMalformed}
)

// FormatError is returned for any problem with the contents of a database
// file. Off is the byte offset the problem was detected at, or -1.
type FormatError struct {
	Cause Cause
	Off   int
	Msg   string
	Err   error
}

const noOffset = ^uint(0)

func formatErrf(cause Cause, off uint, err error, format string, args ...any) error {
	o := -1
	if off != noOffset {
		o = int(off)
	}
	return &FormatError{cause, o, fmt.Sprintf(format, args...), err}
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Cause == e.Cause
}

func (e *FormatError) Error() string {
	s := "mmdb: " + e.Cause.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Off >= 0 && (e.Msg != "" || e.Err != nil) {
		s += fmt.Sprintf(" (at offset %d)", e.Off)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
