package process

// ProcessID represents a unique identifier for a process
type ProcessID uint32

// OSHandle is an opaque reference to an opened process resource.
// Its meaning is backend specific; InvalidHandle means "unset".
type OSHandle uintptr

const InvalidHandle OSHandle = 0

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID  ProcessID // Process ID
	PPID ProcessID // Parent Process ID
	Name string    // Process name (comm on Linux, exe file name on Windows)
}
