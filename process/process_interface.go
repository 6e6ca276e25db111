package process

// Backend wraps the OS-level primitives used against a target process.
// Every call is synchronous and may block; callers are expected to run
// them off their control loop.
type Backend interface {
	ProcessFinder

	// Open opens the process with full access rights
	Open(pid ProcessID) (OSHandle, error)

	// Close releases a handle returned by Open
	Close(h OSHandle) error

	// Read fills buf from addr. Anything short of len(buf) bytes is a failure.
	Read(h OSHandle, addr ProcessMemoryAddress, buf []byte) error

	// Write copies data to addr
	Write(h OSHandle, addr ProcessMemoryAddress, data []byte) error

	// Allocate commits size bytes of read-write memory in the target
	Allocate(h OSHandle, size ProcessMemorySize) (ProcessMemoryAddress, error)

	// Free releases memory returned by Allocate
	Free(h OSHandle, addr ProcessMemoryAddress) error

	// InjectAndRun copies code into the target and starts executing it from
	// the start of the copy. It does not wait for the code to finish.
	InjectAndRun(h OSHandle, code []byte) error

	// LastError returns the most recent failure code for the calling thread.
	// Only meaningful on the thread that made the failing call.
	LastError() uint32
}
