//go:build windows

// Package process_windows is the Windows process.Backend, built on
// kernel32 through golang.org/x/sys/windows.
package process_windows

import (
	"unsafe"

	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
)

// Backend implements process.Backend for Windows. OS handles are the raw
// process HANDLE values.
type Backend struct {
	log *logger.Logger
}

var _ process.Backend = (*Backend)(nil)

// New creates a Windows backend
func New() *Backend {
	return &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-windows")),
	}
}

func handleOf(h process.OSHandle) windows.Handle {
	return windows.Handle(h)
}

func (b *Backend) Open(pid process.ProcessID) (process.OSHandle, error) {
	h, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		return process.InvalidHandle, err
	}
	b.log.Debugln("Opened", pid, "as handle", uintptr(h))
	return process.OSHandle(h), nil
}

func (b *Backend) Close(h process.OSHandle) error {
	return windows.CloseHandle(handleOf(h))
}

func (b *Backend) Read(h process.OSHandle, addr process.ProcessMemoryAddress, buf []byte) error {
	if len(buf) == 0 {
		return checkHandle(h)
	}
	var n uintptr
	if err := windows.ReadProcessMemory(handleOf(h), uintptr(addr), &buf[0], uintptr(len(buf)), &n); err != nil {
		return err
	}
	if n != uintptr(len(buf)) {
		return windows.ERROR_PARTIAL_COPY
	}
	return nil
}

func (b *Backend) Write(h process.OSHandle, addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return checkHandle(h)
	}
	var n uintptr
	if err := windows.WriteProcessMemory(handleOf(h), uintptr(addr), &data[0], uintptr(len(data)), &n); err != nil {
		return err
	}
	if n != uintptr(len(data)) {
		return windows.ERROR_PARTIAL_COPY
	}
	return nil
}

func (b *Backend) Allocate(h process.OSHandle, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	return virtualAllocEx(handleOf(h), uintptr(size), windows.PAGE_READWRITE)
}

func (b *Backend) Free(h process.OSHandle, addr process.ProcessMemoryAddress) error {
	return virtualFreeEx(handleOf(h), uintptr(addr))
}

// InjectAndRun copies code into fresh memory, flips it to execute-read and
// starts a remote thread at its first byte. The thread is not waited for
// and the memory stays allocated while it runs.
func (b *Backend) InjectAndRun(h process.OSHandle, code []byte) error {
	if len(code) == 0 {
		return windows.ERROR_INVALID_PARAMETER
	}
	hp := handleOf(h)

	addr, err := virtualAllocEx(hp, uintptr(len(code)), windows.PAGE_READWRITE)
	if err != nil {
		return err
	}

	if err := b.Write(h, addr, code); err != nil {
		_ = virtualFreeEx(hp, uintptr(addr))
		return err
	}

	var old uint32
	if err := windows.VirtualProtectEx(hp, uintptr(addr), uintptr(len(code)), windows.PAGE_EXECUTE_READ, &old); err != nil {
		_ = virtualFreeEx(hp, uintptr(addr))
		return err
	}

	thread, err := createRemoteThread(hp, uintptr(addr))
	if err != nil {
		_ = virtualFreeEx(hp, uintptr(addr))
		return err
	}
	b.log.Debugln("Remote thread started at", addr.ToString())
	return windows.CloseHandle(thread)
}

func (b *Backend) LastError() uint32 {
	if err := windows.GetLastError(); err != nil {
		if errno, ok := err.(windows.Errno); ok {
			return uint32(errno)
		}
	}
	return 0
}

func virtualAllocEx(h windows.Handle, size uintptr, protect uint32) (process.ProcessMemoryAddress, error) {
	addr, _, err := procVirtualAllocEx.Call(
		uintptr(h),
		0,
		size,
		uintptr(windows.MEM_COMMIT|windows.MEM_RESERVE),
		uintptr(protect),
	)
	if addr == 0 {
		return 0, err
	}
	return process.ProcessMemoryAddress(addr), nil
}

func virtualFreeEx(h windows.Handle, addr uintptr) error {
	ret, _, err := procVirtualFreeEx.Call(uintptr(h), addr, 0, uintptr(windows.MEM_RELEASE))
	if ret == 0 {
		return err
	}
	return nil
}

func createRemoteThread(h windows.Handle, entry uintptr) (windows.Handle, error) {
	var tid uint32
	thread, _, err := procCreateRemoteThread.Call(
		uintptr(h),
		0,
		0,
		entry,
		0,
		0,
		uintptr(unsafe.Pointer(&tid)),
	)
	if thread == 0 {
		return 0, err
	}
	return windows.Handle(thread), nil
}

// checkHandle stands in for the empty transfer, which has no buffer to pass
func checkHandle(h process.OSHandle) error {
	if h == process.InvalidHandle {
		return windows.ERROR_INVALID_HANDLE
	}
	return nil
}
