package process

import (
	"fmt"
	"sync/atomic"
)

// ProcessHandle pairs a process identifier with the OS handle opened for it.
// It is the unit every memory operation is issued against.
//
// The OS handle is written only by completion steps running on the
// dispatcher's control loop. Worker bodies read it atomically when they
// start. Nothing serializes operations on the same handle, so closing while
// a read is in flight is still the caller's problem.
type ProcessHandle struct {
	pid    ProcessID
	handle atomic.Uintptr
}

// NewProcessHandle creates an unopened handle bound to pid. A zero pid is unbound.
func NewProcessHandle(pid ProcessID) *ProcessHandle {
	return &ProcessHandle{pid: pid}
}

func (h *ProcessHandle) PID() ProcessID {
	return h.pid
}

// OSHandle returns the current OS handle or InvalidHandle.
func (h *ProcessHandle) OSHandle() OSHandle {
	return OSHandle(h.handle.Load())
}

func (h *ProcessHandle) IsOpen() bool {
	return h.OSHandle() != InvalidHandle
}

// SwapOSHandle stores v and returns the previous value.
func (h *ProcessHandle) SwapOSHandle(v OSHandle) OSHandle {
	return OSHandle(h.handle.Swap(uintptr(v)))
}

// SetIfUnset stores v only if no handle is set.
func (h *ProcessHandle) SetIfUnset(v OSHandle) bool {
	return h.handle.CompareAndSwap(uintptr(InvalidHandle), uintptr(v))
}

// ClearIf resets the handle to unset if it still holds v.
func (h *ProcessHandle) ClearIf(v OSHandle) bool {
	return h.handle.CompareAndSwap(uintptr(v), uintptr(InvalidHandle))
}

func (h *ProcessHandle) String() string {
	return fmt.Sprintf("process-%d(handle=0x%x)", h.pid, uintptr(h.OSHandle()))
}

// OpenPolicy decides what a successful open does when the handle is already set.
type OpenPolicy int

const (
	// OpenReject fails the second open with ErrAlreadyOpen and releases the new handle.
	OpenReject OpenPolicy = iota
	// OpenReplace keeps the new handle and closes the previous one.
	OpenReplace
	// OpenOverwrite keeps the new handle and leaks the previous one.
	OpenOverwrite
)

func (p OpenPolicy) String() string {
	switch p {
	case OpenReject:
		return "reject"
	case OpenReplace:
		return "replace"
	case OpenOverwrite:
		return "overwrite"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParseOpenPolicy parses the names returned by OpenPolicy.String.
func ParseOpenPolicy(s string) (OpenPolicy, error) {
	switch s {
	case "", "reject":
		return OpenReject, nil
	case "replace":
		return OpenReplace, nil
	case "overwrite":
		return OpenOverwrite, nil
	}
	return OpenReject, fmt.Errorf("unknown open policy %q", s)
}
