package remote

import (
	"remotemem/process"
)

// LookupByName resolves a process name through the backend's finder
type LookupByName struct {
	Name string

	pid process.ProcessID
}

func (op *LookupByName) Op() string { return "FindProcessIDByName" }

func (op *LookupByName) Execute(b process.Backend) error {
	pid, err := b.FindProcessIDByName(op.Name)
	if err != nil {
		return err
	}
	if pid == 0 {
		return process.ErrNotFound
	}
	op.pid = pid
	return nil
}

func (op *LookupByName) Complete(err error) (process.ProcessID, error) {
	if err != nil {
		return 0, err
	}
	return op.pid, nil
}
