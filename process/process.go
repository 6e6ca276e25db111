// Package process defines the OS-neutral types shared by the dispatcher,
// the operations and the per-OS backends.
package process

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNotFound is returned when a process name does not resolve to a running process.
	ErrNotFound = errors.New("process not found")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrAlreadyOpen is returned by Open under OpenReject when the handle is already set.
	ErrAlreadyOpen = errors.New("process already open")

	// ErrNullHandle is reported when a backend returns no handle and no error.
	ErrNullHandle = errors.New("backend returned a null handle")

	// ErrNullAddress is reported when a backend returns a null allocation and no error.
	ErrNullAddress = errors.New("backend returned a null address")
)

// Synthetic failure codes for conditions that do not come from the OS.
const (
	CodeNotFound        uint32 = 0xE0000001
	CodeInvalidArgument uint32 = 0xE0000002
	CodeAlreadyOpen     uint32 = 0xE0000003
)

// FailureKind classifies a rejection so callers can branch without parsing messages.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindValidation
	KindNotFound
	KindState
	KindOS
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not-found"
	case KindState:
		return "state"
	case KindOS:
		return "os"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ValidationError reports a wrong argument count or type, detected before dispatch.
type ValidationError struct {
	Method string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("TypeError: %s: %s", e.Method, e.Reason)
}

// Code returns CodeInvalidArgument
func (e *ValidationError) Code() uint32 {
	return CodeInvalidArgument
}

// OSError wraps a failing backend primitive together with the code captured
// on the worker thread right after the failure.
type OSError struct {
	Op   string
	Code uint32
	Err  error
}

func (e *OSError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (code %d)", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed: %v (code %d)", e.Op, e.Err, e.Code)
}

func (e *OSError) Unwrap() error {
	return e.Err
}

// NewOSError builds the rejection for a failed backend call. lastError is
// consulted only when err carries no code of its own, and must be called on
// the same thread as the failing primitive. ErrNotFound passes through
// unchanged.
func NewOSError(op string, err error, lastError func() uint32) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var oe *OSError
	if errors.As(err, &oe) {
		return err
	}

	code := ErrorCode(err)
	if code == 0 && lastError != nil {
		code = lastError()
	}
	return &OSError{Op: op, Code: code, Err: err}
}

// ErrorCode extracts the numeric code carried by err, or 0.
func ErrorCode(err error) uint32 {
	if err == nil {
		return 0
	}

	var oe *OSError
	if errors.As(err, &oe) {
		return oe.Code
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}

	if errors.Is(err, ErrNotFound) {
		return CodeNotFound
	}

	var coded interface{ Code() uint32 }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return 0
}

// Refusal is implemented by errors raised from local state before any OS
// call was made, such as submitting to a closed dispatcher.
type Refusal interface {
	error
	Refused() bool
}

// KindOf classifies err. nil is KindNone. ErrAlreadyOpen and any Refusal
// are KindState even when wrapped in an *OSError.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}

	var r Refusal
	if errors.Is(err, ErrAlreadyOpen) || (errors.As(err, &r) && r.Refused()) {
		return KindState
	}
	return KindOS
}
