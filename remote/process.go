package remote

import (
	"fmt"

	"remotemem/dispatch"
	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

// Process issues operations against one target. It is owned by the caller;
// each operation borrows its handle until the operation completes.
//
// Operations on the same Process are not ordered with respect to each other
// unless the dispatcher was created with dispatch.WithSerializePerKey. Wait
// for Open to resolve before reading or writing.
type Process struct {
	c      *Client
	handle *process.ProcessHandle
	log    *logger.Logger
}

// Client returns the client that created p
func (p *Process) Client() *Client {
	return p.c
}

func (p *Process) Handle() *process.ProcessHandle {
	return p.handle
}

func (p *Process) PID() process.ProcessID {
	return p.handle.PID()
}

// Open acquires a handle with full access. Resolves with no payload.
func (p *Process) Open() *dispatch.Future[struct{}] {
	if p.c.policy == process.OpenReject && p.handle.IsOpen() {
		return dispatch.Rejected[struct{}](p.c.d, alreadyOpen())
	}
	return submit[struct{}](p.c, p.handle, &OpenHandle{
		Target: p.handle,
		Policy: p.c.policy,
		client: p.c,
		log:    p.log,
	})
}

// Close releases the handle and resolves true. Closing an unset handle is
// left to the backend, which rejects with its invalid-handle error.
func (p *Process) Close() *dispatch.Future[bool] {
	return submit[bool](p.c, p.handle, &CloseHandle{Target: p.handle, log: p.log})
}

// ReadAt resolves with exactly length bytes read from addr. Lengths above
// process.MaxTransferSize are rejected without being submitted.
func (p *Process) ReadAt(addr process.ProcessMemoryAddress, length process.ProcessMemorySize) *dispatch.Future[[]byte] {
	if length > process.MaxTransferSize {
		return dispatch.Rejected[[]byte](p.c.d, tooLarge("readAt", "length"))
	}
	return submit[[]byte](p.c, p.handle, NewReadMemory(p.handle, addr, length))
}

// WriteAt writes a copy of data to addr and resolves true. data may be
// reused by the caller as soon as WriteAt returns.
func (p *Process) WriteAt(addr process.ProcessMemoryAddress, data []byte) *dispatch.Future[bool] {
	return submit[bool](p.c, p.handle, NewWriteMemory(p.handle, addr, data))
}

// Allocate commits size bytes of read-write memory in the target.
func (p *Process) Allocate(size process.ProcessMemorySize) *dispatch.Future[Allocation] {
	if size > process.MaxTransferSize {
		return dispatch.Rejected[Allocation](p.c.d, tooLarge("allocate", "size"))
	}
	return submit[Allocation](p.c, p.handle, &AllocateMemory{Target: p.handle, Size: size})
}

// FreeAt releases memory returned by Allocate and resolves true.
func (p *Process) FreeAt(addr process.ProcessMemoryAddress) *dispatch.Future[bool] {
	return submit[bool](p.c, p.handle, &FreeMemory{Target: p.handle, Address: addr})
}

// Inject copies code into the target, starts it and resolves true. It does
// not wait for the code to finish.
func (p *Process) Inject(code []byte) *dispatch.Future[bool] {
	return submit[bool](p.c, p.handle, NewInject(p.handle, code))
}

func tooLarge(method, what string) error {
	return &process.ValidationError{Method: method, Reason: fmt.Sprintf("%s exceeds %d bytes", what, uint64(process.MaxTransferSize))}
}
