package remote

import (
	"remotemem/process"
)

// ReadMemory reads exactly len(buf) bytes. The buffer is allocated, zeroed,
// before submission and is only handed out on success.
type ReadMemory struct {
	Target  *process.ProcessHandle
	Address process.ProcessMemoryAddress

	buf []byte
}

func NewReadMemory(target *process.ProcessHandle, addr process.ProcessMemoryAddress, length process.ProcessMemorySize) *ReadMemory {
	return &ReadMemory{Target: target, Address: addr, buf: make([]byte, length)}
}

func (op *ReadMemory) Op() string { return "ReadProcessMemory" }

func (op *ReadMemory) Execute(b process.Backend) error {
	return b.Read(op.Target.OSHandle(), op.Address, op.buf)
}

func (op *ReadMemory) Complete(err error) ([]byte, error) {
	buf := op.buf
	op.buf = nil
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteMemory writes a private copy of the caller's bytes
type WriteMemory struct {
	Target  *process.ProcessHandle
	Address process.ProcessMemoryAddress

	data []byte
}

func NewWriteMemory(target *process.ProcessHandle, addr process.ProcessMemoryAddress, data []byte) *WriteMemory {
	return &WriteMemory{Target: target, Address: addr, data: cloneBytes(data)}
}

func (op *WriteMemory) Op() string { return "WriteProcessMemory" }

func (op *WriteMemory) Execute(b process.Backend) error {
	return b.Write(op.Target.OSHandle(), op.Address, op.data)
}

func (op *WriteMemory) Complete(err error) (bool, error) {
	op.data = nil
	if err != nil {
		return false, err
	}
	return true, nil
}

// AllocateMemory commits Size bytes of read-write memory in the target
type AllocateMemory struct {
	Target *process.ProcessHandle
	Size   process.ProcessMemorySize

	addr process.ProcessMemoryAddress
}

func (op *AllocateMemory) Op() string { return "VirtualAllocEx" }

func (op *AllocateMemory) Execute(b process.Backend) error {
	addr, err := b.Allocate(op.Target.OSHandle(), op.Size)
	if err != nil {
		return err
	}
	if addr == 0 {
		return process.ErrNullAddress
	}
	op.addr = addr
	return nil
}

func (op *AllocateMemory) Complete(err error) (Allocation, error) {
	if err != nil {
		return Allocation{}, err
	}
	return Allocation{Address: op.addr, Encoded: process.EncodeAddress(op.addr)}, nil
}

// FreeMemory releases an allocation made with AllocateMemory
type FreeMemory struct {
	Target  *process.ProcessHandle
	Address process.ProcessMemoryAddress
}

func (op *FreeMemory) Op() string { return "VirtualFreeEx" }

func (op *FreeMemory) Execute(b process.Backend) error {
	return b.Free(op.Target.OSHandle(), op.Address)
}

func (op *FreeMemory) Complete(err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return true, nil
}
