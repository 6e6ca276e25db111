// Package process_blob is an in-memory process.Backend. Targets are built
// from byte blobs, either registered directly or loaded from a saved dump,
// so every operation can be exercised without touching a real process.
package process_blob

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"remotemem/process"
	"remotemem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Runner is called, on its own goroutine, for every successful injection.
type Runner func(pid process.ProcessID, entry process.ProcessMemoryAddress, code []byte)

// Backend implements process.Backend over simulated targets
type Backend struct {
	log     *logger.Logger
	latency time.Duration
	runner  Runner

	mu      sync.Mutex
	targets map[process.ProcessID]*Target
	handles map[process.OSHandle]process.ProcessID
	next    process.OSHandle

	calls   atomic.Int64
}

var _ process.Backend = (*Backend)(nil)

// Option configures a Backend
type Option func(*Backend)

// WithLatency delays every primitive, to make blocking visible.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) {
		b.latency = d
	}
}

// WithRunner sets the hook started by InjectAndRun.
func WithRunner(r Runner) Option {
	return func(b *Backend) {
		b.runner = r
	}
}

// NewBackend creates a Backend with no targets
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-blob")),
		targets: make(map[process.ProcessID]*Target),
		handles: make(map[process.OSHandle]process.ProcessID),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddTarget registers t. An existing target with the same PID is replaced.
func (b *Backend) AddTarget(t *Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.Blobs == nil {
		t.Blobs = make(map[uint64][]byte)
	}
	if t.allocated == nil {
		t.allocated = make(map[uint64]bool)
	}
	if t.nextAlloc == 0 {
		t.nextAlloc = allocBase
	}
	b.targets[t.PID] = t
	b.log.Debugln("Target added:", t.PID, t.Name)
}

// RemoveTarget simulates the target exiting. Open handles stay valid for Close only.
func (b *Backend) RemoveTarget(pid process.ProcessID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.targets, pid)
}

// Regions returns a copy of pid's memory map
func (b *Backend) Regions(pid process.ProcessID) []memory_map.MemoryMapItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[pid]
	if !ok {
		return nil
	}
	result := make([]memory_map.MemoryMapItem, len(t.MemoryMap))
	copy(result, t.MemoryMap)
	return result
}

// Calls returns how many primitives have been invoked
func (b *Backend) Calls() int64 {
	return b.calls.Load()
}

// OpenHandles returns the number of handles not yet closed
func (b *Backend) OpenHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handles)
}

func (b *Backend) enter() {
	b.calls.Add(1)
	if b.latency > 0 {
		time.Sleep(b.latency)
	}
}

// target resolves h; the caller holds b.mu.
func (b *Backend) target(h process.OSHandle) (*Target, error) {
	pid, ok := b.handles[h]
	if !ok {
		return nil, syscall.EBADF
	}
	t, ok := b.targets[pid]
	if !ok {
		return nil, syscall.ESRCH
	}
	return t, nil
}

func (b *Backend) FindProcessIDByName(name string) (process.ProcessID, error) {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	var pids []process.ProcessID
	for pid, t := range b.targets {
		if t.Name == name {
			pids = append(pids, pid)
		}
	}
	if len(pids) == 0 {
		return 0, process.ErrNotFound
	}
	// lowest PID for determinism
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids[0], nil
}

func (b *Backend) Open(pid process.ProcessID) (process.OSHandle, error) {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.targets[pid]; !ok {
		return process.InvalidHandle, syscall.ESRCH
	}
	b.next++
	h := b.next
	b.handles[h] = pid
	return h, nil
}

func (b *Backend) Close(h process.OSHandle) error {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handles[h]; !ok {
		return syscall.EBADF
	}
	delete(b.handles, h)
	return nil
}

func (b *Backend) Read(h process.OSHandle, addr process.ProcessMemoryAddress, buf []byte) error {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.target(h)
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	if err := t.read(addr, buf); err != nil {
		return err
	}
	return nil
}

func (b *Backend) Write(h process.OSHandle, addr process.ProcessMemoryAddress, data []byte) error {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.target(h)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := t.write(addr, data); err != nil {
		return err
	}
	return nil
}

func (b *Backend) Allocate(h process.OSHandle, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.target(h)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, syscall.EINVAL
	}
	if size > process.MaxTransferSize {
		return 0, syscall.ENOMEM
	}
	addr, _ := t.allocate(size, "rw-p")
	return addr, nil
}

func (b *Backend) Free(h process.OSHandle, addr process.ProcessMemoryAddress) error {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.target(h)
	if err != nil {
		return err
	}
	if err := t.free(addr); err != nil {
		return err
	}
	return nil
}

func (b *Backend) InjectAndRun(h process.OSHandle, code []byte) error {
	b.enter()
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.target(h)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return syscall.EINVAL
	}

	entry, data := t.allocate(process.ProcessMemorySize(len(code)), "rwxp")
	copy(data, code)
	b.log.Debugln("Injected", len(code), "bytes into", t.PID, "at", entry.ToString())

	if b.runner != nil {
		clone := make([]byte, len(code))
		copy(clone, code)
		go b.runner(t.PID, entry, clone)
	}
	return nil
}

// LastError is always 0: failures carry their errno in the returned error,
// so there is no per-thread code to recover afterwards.
func (b *Backend) LastError() uint32 {
	return 0
}

func (b *Backend) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("process_blob(%d targets, %d handles)", len(b.targets), len(b.handles))
}
