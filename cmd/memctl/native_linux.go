//go:build linux

package main

import (
	"remotemem/process"
	"remotemem/process_linux"
)

func nativeBackend() (process.Backend, error) {
	return process_linux.New(), nil
}
