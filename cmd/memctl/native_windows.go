//go:build windows

package main

import (
	"remotemem/process"
	"remotemem/process_windows"
)

func nativeBackend() (process.Backend, error) {
	return process_windows.New(), nil
}
