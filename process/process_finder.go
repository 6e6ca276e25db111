package process

// ProcessFinder maps a process name to a process identifier
type ProcessFinder interface {
	// FindProcessIDByName returns the PID of a running process with the given name,
	// or ErrNotFound. It may take time proportional to the number of running processes.
	FindProcessIDByName(name string) (ProcessID, error)
}
