package remote

import (
	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

// OpenHandle opens the target with full access and, on the control loop,
// installs the new handle according to the client's OpenPolicy.
type OpenHandle struct {
	Target *process.ProcessHandle
	Policy process.OpenPolicy

	client *Client
	log    *logger.Logger
	opened process.OSHandle
}

func (op *OpenHandle) Op() string { return "OpenProcess" }

func (op *OpenHandle) Execute(b process.Backend) error {
	h, err := b.Open(op.Target.PID())
	if err != nil {
		return err
	}
	if h == process.InvalidHandle {
		return process.ErrNullHandle
	}
	op.opened = h
	return nil
}

func (op *OpenHandle) Complete(err error) (struct{}, error) {
	if err != nil {
		return struct{}{}, err
	}

	switch op.Policy {
	case process.OpenReject:
		if !op.Target.SetIfUnset(op.opened) {
			op.client.dispose(op.Target, op.opened)
			return struct{}{}, alreadyOpen()
		}
	case process.OpenReplace:
		if prev := op.Target.SwapOSHandle(op.opened); prev != process.InvalidHandle {
			op.client.dispose(op.Target, prev)
		}
	default:
		if prev := op.Target.SwapOSHandle(op.opened); prev != process.InvalidHandle {
			op.log.Warn("Open replaced a live handle without closing it: ", prev)
		}
	}

	op.log.Infoln("Process opened")
	return struct{}{}, nil
}

// CloseHandle releases the target's handle and clears it on success
type CloseHandle struct {
	Target *process.ProcessHandle

	log    *logger.Logger
	closed process.OSHandle
}

func (op *CloseHandle) Op() string { return "CloseHandle" }

func (op *CloseHandle) Execute(b process.Backend) error {
	op.closed = op.Target.OSHandle()
	return b.Close(op.closed)
}

func (op *CloseHandle) Complete(err error) (bool, error) {
	if err != nil {
		return false, err
	}
	op.Target.ClearIf(op.closed)
	op.log.Infoln("Process closed")
	return true, nil
}

func alreadyOpen() error {
	return &process.OSError{Op: "OpenProcess", Code: process.CodeAlreadyOpen, Err: process.ErrAlreadyOpen}
}
