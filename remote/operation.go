package remote

import (
	"remotemem/process"
)

// Operation is one unit of dispatched work. Each implementation owns copies
// of all its inputs, so nothing the caller holds is touched once it has been
// submitted.
//
// Execute runs on a worker goroutine and may block; it keeps whatever the
// backend produced inside the operation. Complete runs afterwards on the
// control loop, receives the worker's error, and hands the result over.
// Nothing else touches the operation in between.
type Operation[T any] interface {
	Op() string
	Execute(b process.Backend) error
	Complete(err error) (T, error)
}

// Allocation is the payload of a successful Allocate. Encoded is the
// fixed-width form of Address and can be decoded with process.DecodeAddress.
type Allocation struct {
	Address process.ProcessMemoryAddress
	Encoded []byte
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
