package history

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrIndexOutOfRange is returned for a newest-first index past the last entry.
	ErrIndexOutOfRange = errors.New("history index out of range")
	// ErrInvalidIndex is returned for negative indices and bad page bounds.
	ErrInvalidIndex = errors.New("invalid history index")
	// ErrIO marks failures of the underlying file.
	ErrIO = errors.New("history file i/o failure")
)

// CorruptRecordError describes a log line that could not be decoded. Reads skip
// such lines.
type CorruptRecordError struct {
	// Line is 1-based.
	Line int
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt history record on line %d: %v", e.Line, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

func ioFailure(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}
