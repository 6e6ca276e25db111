//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"remotemem/process"
)

// ListByName returns every process whose comm or exe basename equals name,
// ordered by PID. The match is case-sensitive, like pidof. The calling
// process is never listed.
func ListByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	selfPID := os.Getpid()
	var out []process.ProcessInfo

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue // not a PID dir
		}
		if pid == selfPID {
			continue
		}

		comm, _ := os.ReadFile(filepath.Join("/proc", e.Name(), "comm"))
		comm = bytesTrimNL(comm)
		if string(comm) == name {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), PPID: parentPID(pid), Name: string(comm)})
			continue
		}

		// may fail for zombies or without permission
		exe, _ := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))
		if exe != "" && filepath.Base(exe) == name {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), PPID: parentPID(pid), Name: filepath.Base(exe)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// OneByName returns the lowest-PID match for name, or process.ErrNotFound.
func OneByName(name string) (process.ProcessInfo, error) {
	ps, err := ListByName(name)
	if err != nil {
		return process.ProcessInfo{}, err
	}
	if len(ps) == 0 {
		return process.ProcessInfo{}, process.ErrNotFound
	}
	return ps[0], nil
}

// parentPID reads the ppid field of /proc/<pid>/stat, or 0.
func parentPID(pid int) process.ProcessID {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0
	}
	// comm may contain spaces; fields resume after the last ')'
	end := -1
	for i := len(stat) - 1; i >= 0; i-- {
		if stat[i] == ')' {
			end = i
			break
		}
	}
	if end < 0 {
		return 0
	}
	var state rune
	var ppid int
	if _, err := fmt.Sscanf(string(stat[end+1:]), " %c %d", &state, &ppid); err != nil {
		return 0
	}
	return process.ProcessID(ppid)
}

func bytesTrimNL(b []byte) []byte {
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', ' ', '\t':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}
