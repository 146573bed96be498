package store

import "errors"

// InternalErrorMessage is the only text callers ever see for backend
// failures. The underlying cause is logged by the store.
const InternalErrorMessage = "Internal server error."

// Kind classifies store failures so callers can pick an external status.
type Kind int

const (
	KindBackend Kind = iota + 1
	KindConnectivity
	KindNotFound
	KindConflict
	KindNotSupported
	KindInvalid
)

var (
	ErrBackend      = errors.New("backend failure")
	ErrConnectivity = errors.New("backend unreachable")
	ErrNotFound     = errors.New("config not found")
	ErrConflict     = errors.New("concurrent update conflict")
	ErrNotSupported = errors.New("operation not supported")
	ErrInvalid      = errors.New("invalid query")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConnectivity:
		return ErrConnectivity
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindNotSupported:
		return ErrNotSupported
	case KindInvalid:
		return ErrInvalid
	default:
		return ErrBackend
	}
}

func (k Kind) String() string {
	return k.sentinel().Error()
}

// Error is returned by every Store operation that fails.
//
// Backend and connectivity errors render as InternalErrorMessage; the cause
// is still reachable through errors.Unwrap for logging.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBackend, KindConnectivity:
		return InternalErrorMessage
	}
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the Kind of a store error, or KindBackend for any other
// non-nil error. It returns 0 for nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindBackend
}
