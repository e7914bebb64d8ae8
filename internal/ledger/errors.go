package ledger

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrTransientIO         = errors.New("store unavailable")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrInvalid             = errors.New("invalid input")
	ErrDuplicate           = errors.New("already exists")
)

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is reports invariant violations as forbidden as well, so callers that only
// distinguish "not allowed" keep working.
func (e *Error) Is(target error) bool {
	return e.Kind == ErrInvariantViolation && target == ErrForbidden
}

// E builds an Error of the given kind.
func E(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

var kinds = []error{
	ErrNotFound,
	ErrInvariantViolation,
	ErrForbidden,
	ErrInsufficientBalance,
	ErrConflict,
	ErrTransientIO,
	ErrInvalid,
	ErrDuplicate,
}

// KindOf returns the sentinel kind of err, or nil for unclassified errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the human-readable part of a classified error.
func Message(err error) string {
	var le *Error
	if errors.As(err, &le) && le.Msg != "" {
		return le.Msg
	}
	if k := KindOf(err); k != nil {
		return k.Error()
	}
	return "internal error"
}
