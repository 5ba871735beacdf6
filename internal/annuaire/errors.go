package annuaire

import (
	"errors"
	"fmt"
)

// Failure kinds for core operations. Every error returned by the account,
// permission, and directory services wraps exactly one of these sentinels,
// so callers can classify outcomes with errors.Is without parsing messages.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSelfAction       = errors.New("self-targeted action forbidden")
	ErrNoChanges        = errors.New("no changes specified")
	ErrIO               = errors.New("storage failure")
)

// opError carries a failure kind and a human-readable message.
type opError struct {
	kind error
	msg  string
}

func (e *opError) Error() string { return e.msg }
func (e *opError) Unwrap() error { return e.kind }

func notFound(format string, args ...any) error {
	return &opError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &opError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &opError{kind: ErrInvalidInput, msg: fmt.Sprintf(format, args...)}
}

func denied(format string, args ...any) error {
	return &opError{kind: ErrPermissionDenied, msg: fmt.Sprintf(format, args...)}
}

func selfAction(format string, args ...any) error {
	return &opError{kind: ErrSelfAction, msg: fmt.Sprintf(format, args...)}
}

func noChanges(format string, args ...any) error {
	return &opError{kind: ErrNoChanges, msg: fmt.Sprintf(format, args...)}
}

func ioFailure(op string, err error) error {
	return &opError{kind: ErrIO, msg: fmt.Sprintf("%s: %v", op, err)}
}
