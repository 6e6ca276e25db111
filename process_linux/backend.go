//go:build linux

// Package process_linux is the Linux process.Backend: pidfd handles,
// process_vm_readv/writev for memory and /proc for lookup.
package process_linux

import (
	"fmt"
	"sync"
	"syscall"

	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

type target struct {
	pid process.ProcessID
	fd  int // pidfd, or -1 on kernels without pidfd_open
}

// Backend implements process.Backend for Linux. Allocate, Free and
// InjectAndRun report ENOSYS.
type Backend struct {
	log *logger.Logger

	mu      sync.Mutex
	handles map[process.OSHandle]target
	next    process.OSHandle
}

var _ process.Backend = (*Backend)(nil)

// New creates a Linux backend
func New() *Backend {
	return &Backend{
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-linux")),
		handles: make(map[process.OSHandle]target),
	}
}

// lookup resolves h and checks the process is still the one that was opened.
func (b *Backend) lookup(h process.OSHandle) (target, error) {
	b.mu.Lock()
	t, ok := b.handles[h]
	b.mu.Unlock()
	if !ok {
		return target{}, syscall.EBADF
	}
	if t.fd >= 0 {
		if err := unix.PidfdSendSignal(t.fd, unix.Signal(0), nil, 0); err != nil {
			return target{}, err
		}
	}
	return t, nil
}

func (b *Backend) FindProcessIDByName(name string) (process.ProcessID, error) {
	p, err := OneByName(name)
	if err != nil {
		return 0, err
	}
	return process.ProcessID(p.PID), nil
}

func (b *Backend) Open(pid process.ProcessID) (process.OSHandle, error) {
	if pid == 0 {
		return process.InvalidHandle, syscall.ESRCH
	}

	fd, err := unix.PidfdOpen(int(pid), 0)
	if err == unix.ENOSYS {
		if err := unix.Kill(int(pid), 0); err != nil {
			return process.InvalidHandle, err
		}
		fd = -1
	} else if err != nil {
		return process.InvalidHandle, err
	}

	b.mu.Lock()
	b.next++
	h := b.next
	b.handles[h] = target{pid: pid, fd: fd}
	b.mu.Unlock()

	b.log.Debugln("Opened", pid, "as handle", h)
	return h, nil
}

func (b *Backend) Close(h process.OSHandle) error {
	b.mu.Lock()
	t, ok := b.handles[h]
	delete(b.handles, h)
	b.mu.Unlock()

	if !ok {
		return syscall.EBADF
	}
	if t.fd >= 0 {
		if err := unix.Close(t.fd); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Read(h process.OSHandle, addr process.ProcessMemoryAddress, buf []byte) error {
	t, err := b.lookup(h)
	if err != nil {
		return err
	}
	n, err := processVMReadv(t.pid, buf, addr)
	if err != nil {
		return err
	}
	if n != len(buf) {
		b.log.Debugln("Partial read:", n, "of", len(buf), "bytes at", addr.ToString())
		return syscall.EFAULT
	}
	return nil
}

func (b *Backend) Write(h process.OSHandle, addr process.ProcessMemoryAddress, data []byte) error {
	t, err := b.lookup(h)
	if err != nil {
		return err
	}
	n, err := processVMWritev(t.pid, data, addr)
	if err != nil {
		return err
	}
	if n != len(data) {
		b.log.Debugln("Partial write:", n, "of", len(data), "bytes at", addr.ToString())
		return syscall.EFAULT
	}
	return nil
}

func (b *Backend) Allocate(h process.OSHandle, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	if _, err := b.lookup(h); err != nil {
		return 0, err
	}
	return 0, syscall.ENOSYS
}

func (b *Backend) Free(h process.OSHandle, addr process.ProcessMemoryAddress) error {
	if _, err := b.lookup(h); err != nil {
		return err
	}
	return syscall.ENOSYS
}

func (b *Backend) InjectAndRun(h process.OSHandle, code []byte) error {
	if _, err := b.lookup(h); err != nil {
		return err
	}
	return syscall.ENOSYS
}

// LastError is always 0: failures carry their errno in the returned error,
// so there is no per-thread code to recover afterwards.
func (b *Backend) LastError() uint32 {
	return 0
}

func (b *Backend) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("process_linux(%d handles)", len(b.handles))
}
