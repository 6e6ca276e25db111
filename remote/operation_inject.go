package remote

import (
	"remotemem/process"
)

// Inject copies code into the target and starts it. Success means the copy
// and the start succeeded; what the code does afterwards is not observed.
type Inject struct {
	Target *process.ProcessHandle

	code []byte
}

func NewInject(target *process.ProcessHandle, code []byte) *Inject {
	return &Inject{Target: target, code: cloneBytes(code)}
}

func (op *Inject) Op() string { return "CreateRemoteThread" }

func (op *Inject) Execute(b process.Backend) error {
	return b.InjectAndRun(op.Target.OSHandle(), op.code)
}

func (op *Inject) Complete(err error) (bool, error) {
	op.code = nil
	if err != nil {
		return false, err
	}
	return true, nil
}
