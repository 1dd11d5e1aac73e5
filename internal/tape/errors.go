package tape

import (
	"errors"

	"github.com/born-ml/adtape/internal/expr"
	"github.com/born-ml/adtape/internal/index"
)

// Contract violations. They are raised as panics carrying an *Error.
var (
	ErrUnsupported       = index.ErrUnsupported
	ErrReadOnlyParameter = errors.New("read-only parameter")
	ErrInvalidRange      = errors.New("invalid evaluation range")
	ErrTooManyArguments  = expr.ErrTooManyArguments
)

// Error reports a misuse of a tape together with the operation that detected
// it. Recovered values can be inspected with errors.Is.
type Error struct {
	Op  string // Tape method, e.g. "EvaluateForward"
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "tape: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func fail(op string, err error) {
	panic(&Error{Op: op, Err: err})
}
