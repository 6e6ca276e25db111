//go:build windows

package process_windows

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"remotemem/process"

	"golang.org/x/sys/windows"
)

func openSelf(t *testing.T, b *Backend) process.OSHandle {
	t.Helper()
	h, err := b.Open(process.ProcessID(windows.GetCurrentProcessId()))
	if err != nil {
		t.Fatalf("Open(self): %v", err)
	}
	t.Cleanup(func() { _ = b.Close(h) })
	return h
}

func allocRW(t *testing.T, b *Backend, h process.OSHandle, size process.ProcessMemorySize) process.ProcessMemoryAddress {
	t.Helper()
	addr, err := b.Allocate(h, size)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	t.Cleanup(func() { _ = b.Free(h, addr) })
	return addr
}

func TestWriteThenReadSelf(t *testing.T) {
	b := New()
	h := openSelf(t, b)
	addr := allocRW(t, b, h, 0x1000)

	want := []byte{0x90, 0x90, 0xC3}
	if err := b.Write(h, addr, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, len(want))
	if err := b.Read(h, addr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %x want %x", got, want)
	}
}

func TestReadUnmapped(t *testing.T) {
	b := New()
	h := openSelf(t, b)
	if err := b.Read(h, 0x10, make([]byte, 8)); err == nil {
		t.Fatal("expected failure reading an unmapped page")
	}
}

func TestCloseTwice(t *testing.T) {
	b := New()
	h, err := b.Open(process.ProcessID(windows.GetCurrentProcessId()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(process.InvalidHandle); !errors.Is(err, windows.ERROR_INVALID_HANDLE) {
		t.Fatalf("Close of unset handle: expected ERROR_INVALID_HANDLE, got %v", err)
	}
}

func TestFreeTwice(t *testing.T) {
	b := New()
	h := openSelf(t, b)
	addr, err := b.Allocate(h, 64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := b.Free(h, addr); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := b.Free(h, addr); err == nil {
		t.Fatal("expected the second Free to fail")
	}
}

func TestInjectReturnImmediately(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("ret stub is amd64 only")
	}
	b := New()
	h := openSelf(t, b)

	// xor eax, eax; ret
	if err := b.InjectAndRun(h, []byte{0x31, 0xC0, 0xC3}); err != nil {
		t.Fatalf("InjectAndRun: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := b.InjectAndRun(h, nil); !errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
		t.Fatalf("empty code: expected ERROR_INVALID_PARAMETER, got %v", err)
	}
}

func TestFindProcessIDByName(t *testing.T) {
	b := New()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	pid, err := b.FindProcessIDByName(filepath.Base(exe))
	if err != nil {
		t.Fatalf("FindProcessIDByName: %v", err)
	}
	if pid == 0 {
		t.Fatal("got pid 0")
	}

	if _, err := b.FindProcessIDByName("nonexistent-xyz"); !errors.Is(err, process.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmptyTransferOnUnsetHandle(t *testing.T) {
	b := New()
	if err := b.Read(process.InvalidHandle, 0x1000, nil); !errors.Is(err, windows.ERROR_INVALID_HANDLE) {
		t.Fatalf("empty read: expected ERROR_INVALID_HANDLE, got %v", err)
	}
	if err := b.Write(process.InvalidHandle, 0x1000, nil); !errors.Is(err, windows.ERROR_INVALID_HANDLE) {
		t.Fatalf("empty write: expected ERROR_INVALID_HANDLE, got %v", err)
	}

	h := openSelf(t, b)
	if err := b.Read(h, 0x1000, nil); err != nil {
		t.Fatalf("empty read on open handle: %v", err)
	}
}
