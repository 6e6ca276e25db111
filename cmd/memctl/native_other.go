//go:build !linux && !windows

package main

import (
	"errors"

	"remotemem/process"
)

func nativeBackend() (process.Backend, error) {
	return nil, errors.New(`no native backend on this platform, use --backend blob`)
}
