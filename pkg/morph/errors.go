package morph

import (
	"errors"
	"fmt"
)

// Structural errors. They are wrapped in a coded error from pkg/errors, so
// both errors.Is(err, ErrSelfParent) and errors.Is(err, code) style checks
// work.
var (
	// ErrSelfParent means a line names itself as its parent.
	ErrSelfParent = errors.New("line has itself as parent")
	// ErrCycle means following parent links never reaches the root.
	ErrCycle = errors.New("parent cycle")
	// ErrParentOutOfRange means a parent line id does not exist.
	ErrParentOutOfRange = errors.New("parent line out of range")
	// ErrPointOutOfRange means a line's point range or attachment point
	// lies outside the stores.
	ErrPointOutOfRange = errors.New("point range out of bounds")
	// ErrNoTransformation means no matching spatial registration was found.
	ErrNoTransformation = errors.New("no matching transformation")
)

// Warning is a recoverable issue found while decoding or using a tree.
type Warning struct {
	// Offset is a 1-based source line for text formats, a byte offset for
	// binary formats and 0 when not applicable.
	Offset  int    `json:"offset,omitempty"`
	Message string `json:"message"`
}

// Warnf builds a Warning.
func Warnf(offset int, format string, args ...any) Warning {
	return Warning{Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func (w Warning) String() string {
	if w.Offset > 0 {
		return fmt.Sprintf("%d: %s", w.Offset, w.Message)
	}
	return w.Message
}
