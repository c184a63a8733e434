package busmsg

import "fmt"

// Error is the common shape of every error the codec returns: a
// taxonomy tag (one of the Err sentinels below) plus a human-readable
// reason. Callers should use errors.Is against the sentinels to
// branch on error kind, following §7 of the codec's error taxonomy.
type Error struct {
	kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.kind }

// Is reports whether target is the sentinel this error was built
// from, so that errors.Is(err, ErrTypeMismatch) works without needing
// Unwrap to walk further.
func (e *Error) Is(target error) bool { return e.kind == target }

var (
	// ErrInvalidArgument marks a null required pointer, bad type code,
	// ill-formed signature, or bad container kind for the current
	// position.
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	// ErrInvalidState marks an operation attempted on a message in the
	// wrong state: writing to a sealed message, closing a container
	// when none is open, and so on.
	ErrInvalidState = fmt.Errorf("invalid state")
	// ErrPermissionDenied is part of the taxonomy but is not returned
	// by any operation in this package; a write to a sealed message
	// reports ErrInvalidState.
	ErrPermissionDenied = fmt.Errorf("permission denied")
	// ErrNotFound marks a read of a header field that isn't present on
	// this message (for example, reply_serial on a signal).
	ErrNotFound = fmt.Errorf("not found")
	// ErrTypeMismatch marks a signature position that disagrees with
	// the type an operation asked for.
	ErrTypeMismatch = fmt.Errorf("type mismatch")
	// ErrMalformedMessage marks a header validation failure, bad
	// padding, a length mismatch, an array size over the cap, depth
	// exceeded, invalid UTF-8/path/name, or body/signature
	// inconsistency.
	ErrMalformedMessage = fmt.Errorf("malformed message")
	// ErrOutOfMemory marks an allocation failure or a size that would
	// overflow the wire format's 32-bit length fields.
	ErrOutOfMemory = fmt.Errorf("out of memory")
	// ErrExists marks setting a value that must be set at most once,
	// such as the destination field, when it is already set.
	ErrExists = fmt.Errorf("already exists")
	// ErrIO is reserved for byte-sink writer variants that can fail
	// partway through a write.
	ErrIO = fmt.Errorf("io error")
)

func newErr(kind error, format string, args ...any) *Error {
	return &Error{kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func invalidArgf(format string, args ...any) *Error {
	return newErr(ErrInvalidArgument, format, args...)
}

func invalidStatef(format string, args ...any) *Error {
	return newErr(ErrInvalidState, format, args...)
}

func typeMismatchf(format string, args ...any) *Error {
	return newErr(ErrTypeMismatch, format, args...)
}

func malformedf(format string, args ...any) *Error {
	return newErr(ErrMalformedMessage, format, args...)
}

func notFoundf(format string, args ...any) *Error {
	return newErr(ErrNotFound, format, args...)
}

func outOfMemoryf(format string, args ...any) *Error {
	return newErr(ErrOutOfMemory, format, args...)
}

func existsf(format string, args ...any) *Error {
	return newErr(ErrExists, format, args...)
}
