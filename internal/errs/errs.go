// Package errs implements the kernel-wide error taxonomy. Every subsystem
// returns one of these kinds instead of panicking on bad input; a kernel
// panic is reserved for invariant violations the code itself introduces.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Null means a required input pointer/slice is absent.
	Null Kind = iota
	// Bounds means an index, size, or count fell outside its defined range.
	Bounds
	// Invalid means the input is structurally well-formed but rejected.
	Invalid
	// AlreadyInit means a lifecycle was already active.
	AlreadyInit
	// NotInit means a lifecycle has not yet been activated.
	NotInit
	// NoMem means an allocation failed.
	NoMem
	// Timeout means hardware or a peer did not respond in time.
	Timeout
	// IO means an underlying read or write failed.
	IO
	// NotFound means a device or tensor is absent.
	NotFound
	// Overflow means address arithmetic would wrap.
	Overflow
	// Full means a bounded container cannot accept another entry.
	Full
	// Decode means on-disk data failed a format check.
	Decode
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "NULL"
	case Bounds:
		return "BOUNDS"
	case Invalid:
		return "INVALID"
	case AlreadyInit:
		return "ALREADY_INIT"
	case NotInit:
		return "NOT_INIT"
	case NoMem:
		return "NOMEM"
	case Timeout:
		return "TIMEOUT"
	case IO:
		return "IO"
	case NotFound:
		return "NOT_FOUND"
	case Overflow:
		return "OVERFLOW"
	case Full:
		return "FULL"
	case Decode:
		return "DECODE"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type every kernel call returns on failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error for op/kind with a formatted message.
func New(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error for op/kind, preserving cause for Unwrap.
func Wrap(op string, kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind from err, or false if err isn't a kernel *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
