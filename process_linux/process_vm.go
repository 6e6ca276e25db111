//go:build linux

package process_linux

import (
	"unsafe"

	"remotemem/process"

	"golang.org/x/sys/unix"
)

// processVMReadv reads len(buf) bytes at remoteAddr in pid into buf and
// returns how many bytes arrived.
func processVMReadv(pid process.ProcessID, buf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	return processVM(unix.SYS_PROCESS_VM_READV, pid, buf, remoteAddr)
}

// processVMWritev writes buf to remoteAddr in pid and returns how many bytes were written.
func processVMWritev(pid process.ProcessID, buf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	return processVM(unix.SYS_PROCESS_VM_WRITEV, pid, buf, remoteAddr)
}

func processVM(trap uintptr, pid process.ProcessID, buf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	localIov := unix.Iovec{Base: &buf[0]}
	localIov.SetLen(len(buf))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(buf),
	}

	n, _, errno := unix.Syscall6(
		trap,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}
