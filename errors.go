package globaldb

import (
	"errors"
	"fmt"
)

// Kind classifies an Error per the error taxonomy of the access layer: every
// failure surfaced across the public API carries one of these.
type Kind int

const (
	// KindOther is the zero Kind. No operation in this package returns it;
	// every *Error it surfaces carries one of the Kind values below.
	KindOther Kind = iota
	KindBadArgument
	KindNotOpen
	KindBackendUnavailable
	KindBackendError
	KindAsyncNotSupported
	KindMultipleOpen
)

func (k Kind) String() string {
	switch k {
	case KindBadArgument:
		return "BadArgument"
	case KindNotOpen:
		return "NotOpen"
	case KindBackendUnavailable:
		return "BackendUnavailable"
	case KindBackendError:
		return "BackendError"
	case KindAsyncNotSupported:
		return "AsyncNotSupported"
	case KindMultipleOpen:
		return "MultipleOpen"
	default:
		return "Error"
	}
}

// Error is the structured error type returned by every operation in this
// package. Code is only meaningful when Kind == KindBackendError, where it
// carries the backend's own status code.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s += " in " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Kind == KindBackendError && e.Code != 0 {
		s += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == 0 || t.Code == e.Code)
}

func newErr(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func badArgument(op string, format string, args ...any) *Error {
	return newErr(KindBadArgument, op, nil, format, args...)
}

func notOpen(op string) *Error {
	return newErr(KindNotOpen, op, nil, "connection is not open")
}

func backendUnavailable(op string, err error, format string, args ...any) *Error {
	return newErr(KindBackendUnavailable, op, err, format, args...)
}

func backendError(op string, code int, err error) *Error {
	return &Error{Kind: KindBackendError, Op: op, Code: code, Err: err, Msg: backendErrMsg(err)}
}

func backendErrMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func asyncNotSupported(op string) *Error {
	return newErr(KindAsyncNotSupported, op, nil, "cursor operations cannot be submitted to the worker pool")
}

func multipleOpen(op string, format string, args ...any) *Error {
	return newErr(KindMultipleOpen, op, nil, format, args...)
}

// Sentinel backend-level conditions. ErrKeyTooLong is returned by EncodeKey
// and, inside the Request Executor, wrapped into a KindBadArgument *Error
// that still matches it under errors.Is. Backends report a missing key
// through Get's found flag, which Get turns into an empty value; ErrNotFound,
// ErrKeyExists and ErrTxnConflict are not produced by either backend.
var (
	ErrNotFound    = errors.New("not found")
	ErrKeyExists   = errors.New("key exists")
	ErrTxnConflict = errors.New("transaction conflict")
	ErrKeyTooLong  = errors.New("composite key too long")
)

// DataError reports a malformed encoded record (a composite key or a journal
// record) found where well-formed data was expected.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error { return e.Err }

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		}
		return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
	}
	p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
	}
	return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
}
