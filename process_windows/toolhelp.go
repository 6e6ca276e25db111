//go:build windows

package process_windows

import (
	"strings"
	"unsafe"

	"remotemem/process"

	"golang.org/x/sys/windows"
)

// List returns a Toolhelp32 snapshot of running processes.
func List() ([]process.ProcessInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, err
	}

	processes := make([]process.ProcessInfo, 0, 128)
	for {
		processes = append(processes, process.ProcessInfo{
			PID:  process.ProcessID(entry.ProcessID),
			PPID: process.ProcessID(entry.ParentProcessID),
			Name: windows.UTF16ToString(entry.ExeFile[:]),
		})

		if err := windows.Process32Next(snapshot, &entry); err != nil {
			if err == windows.ERROR_NO_MORE_FILES {
				break
			}
			return nil, err
		}
	}

	return processes, nil
}

// FindProcessIDByName matches the executable name case-insensitively and
// returns the lowest matching PID.
func (b *Backend) FindProcessIDByName(name string) (process.ProcessID, error) {
	processes, err := List()
	if err != nil {
		return 0, err
	}

	var found process.ProcessID
	for _, p := range processes {
		if p.PID == 0 || !strings.EqualFold(p.Name, name) {
			continue
		}
		if found == 0 || p.PID < found {
			found = p.PID
		}
	}
	if found == 0 {
		return 0, process.ErrNotFound
	}
	return found, nil
}
