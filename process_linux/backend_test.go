//go:build linux

package process_linux

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"testing"
	"unsafe"

	"remotemem/process"
)

// Package-level so the addresses stay fixed while the backend reads them.
var (
	readTarget  = []byte("remote memory read")
	writeTarget = make([]byte, 3)
)

func openSelf(t *testing.T, b *Backend) process.OSHandle {
	t.Helper()
	h, err := b.Open(process.ProcessID(os.Getpid()))
	if err != nil {
		t.Skipf("cannot open self: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(h) })
	return h
}

func addrOf(buf []byte) process.ProcessMemoryAddress {
	return process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))
}

func TestReadSelf(t *testing.T) {
	b := New()
	h := openSelf(t, b)

	local := readTarget
	got := make([]byte, len(local))
	if err := b.Read(h, addrOf(local), got); err != nil {
		if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOSYS) {
			t.Skipf("process_vm_readv unavailable: %v", err)
		}
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, local) {
		t.Fatalf("read %q want %q", got, local)
	}
}

func TestWriteSelf(t *testing.T) {
	b := New()
	h := openSelf(t, b)

	local := writeTarget
	if err := b.Write(h, addrOf(local), []byte{0x90, 0x90, 0xC3}); err != nil {
		if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOSYS) {
			t.Skipf("process_vm_writev unavailable: %v", err)
		}
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(local, []byte{0x90, 0x90, 0xC3}) {
		t.Fatalf("local buffer = %x", local)
	}
}

func TestReadUnmapped(t *testing.T) {
	b := New()
	h := openSelf(t, b)

	err := b.Read(h, 0x10, make([]byte, 8))
	if err == nil {
		t.Fatal("expected failure reading an unmapped page")
	}
	if process.ErrorCode(err) == 0 {
		t.Fatalf("error carries no code: %v", err)
	}
	if b.LastError() != 0 {
		t.Fatal("LastError should stay 0; codes travel in the error")
	}
}

func TestCloseTwice(t *testing.T) {
	b := New()
	h, err := b.Open(process.ProcessID(os.Getpid()))
	if err != nil {
		t.Skipf("cannot open self: %v", err)
	}
	if err := b.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(h); !errors.Is(err, syscall.EBADF) {
		t.Fatalf("second Close: expected EBADF, got %v", err)
	}
	if err := b.Close(process.InvalidHandle); !errors.Is(err, syscall.EBADF) {
		t.Fatalf("Close of unset handle: expected EBADF, got %v", err)
	}
}

func TestUnsupportedPrimitives(t *testing.T) {
	b := New()
	h := openSelf(t, b)

	if _, err := b.Allocate(h, 16); !errors.Is(err, syscall.ENOSYS) {
		t.Fatalf("Allocate: expected ENOSYS, got %v", err)
	}
	if err := b.Free(h, 0x1000); !errors.Is(err, syscall.ENOSYS) {
		t.Fatalf("Free: expected ENOSYS, got %v", err)
	}
	if err := b.InjectAndRun(h, []byte{0xC3}); !errors.Is(err, syscall.ENOSYS) {
		t.Fatalf("InjectAndRun: expected ENOSYS, got %v", err)
	}
}

func TestFindProcessIDByNameNotFound(t *testing.T) {
	b := New()
	if _, err := b.FindProcessIDByName("nonexistent-xyz"); !errors.Is(err, process.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenMissingPID(t *testing.T) {
	b := New()
	if _, err := b.Open(0); !errors.Is(err, syscall.ESRCH) {
		t.Fatalf("expected ESRCH, got %v", err)
	}
}

func TestParentPID(t *testing.T) {
	if got := parentPID(os.Getpid()); got != process.ProcessID(os.Getppid()) {
		t.Fatalf("parentPID = %d want %d", got, os.Getppid())
	}
}
