package process_blob

import (
	"fmt"
	"syscall"

	"remotemem/process"
	"remotemem/process/memory_map"
)

const pageSize = 0x1000

// allocBase is where allocations start in a target that has none yet
const allocBase = 0x10000000

// Target is a simulated process: a sorted memory map plus the bytes behind
// each region, keyed by region start address.
type Target struct {
	PID       process.ProcessID
	Name      string
	MemoryMap []memory_map.MemoryMapItem
	Blobs     map[uint64][]byte

	allocated map[uint64]bool
	nextAlloc uint64
}

// NewTarget creates an empty target
func NewTarget(pid process.ProcessID, name string) *Target {
	return &Target{
		PID:       pid,
		Name:      name,
		Blobs:     make(map[uint64][]byte),
		allocated: make(map[uint64]bool),
		nextAlloc: allocBase,
	}
}

// AddRegion maps a copy of data at addr with the given perms ("rw-p", "r-xp", ...).
func (t *Target) AddRegion(addr uint64, data []byte, perms string) error {
	if len(data) == 0 {
		return fmt.Errorf("region at 0x%x is empty", addr)
	}
	if memory_map.Overlaps(addr, uint(len(data)), t.MemoryMap) {
		return fmt.Errorf("region at 0x%x overlaps an existing mapping", addr)
	}

	blob := make([]byte, len(data))
	copy(blob, data)

	t.MemoryMap = append(t.MemoryMap, memory_map.MemoryMapItem{Address: addr, Size: uint(len(data)), Perms: perms})
	memory_map.Sort(t.MemoryMap)
	t.Blobs[addr] = blob

	if end := alignUp(addr + uint64(len(data))); end > t.nextAlloc && addr >= allocBase {
		t.nextAlloc = end
	}
	return nil
}

// region returns the blob covering [addr, addr+size), if a single region does.
func (t *Target) region(addr uint64, size uint) (*memory_map.MemoryMapItem, []byte, bool) {
	i := memory_map.Find(addr, t.MemoryMap)
	if i < 0 {
		return nil, nil, false
	}
	item := &t.MemoryMap[i]
	if !item.Contains(addr, size) {
		return nil, nil, false
	}
	data, ok := t.Blobs[item.Address]
	if !ok {
		return nil, nil, false
	}
	off := addr - item.Address
	return item, data[off : off+uint64(size)], true
}

func (t *Target) read(addr process.ProcessMemoryAddress, buf []byte) error {
	item, data, ok := t.region(uint64(addr), uint(len(buf)))
	if !ok || !item.IsReadable() {
		return syscall.EFAULT
	}
	copy(buf, data)
	return nil
}

func (t *Target) write(addr process.ProcessMemoryAddress, buf []byte) error {
	item, data, ok := t.region(uint64(addr), uint(len(buf)))
	if !ok || !item.IsWritable() {
		return syscall.EFAULT
	}
	copy(data, buf)
	return nil
}

func (t *Target) allocate(size process.ProcessMemorySize, perms string) (process.ProcessMemoryAddress, []byte) {
	addr := t.nextAlloc
	length := alignUp(uint64(size))
	data := make([]byte, length)

	t.MemoryMap = append(t.MemoryMap, memory_map.MemoryMapItem{Address: addr, Size: uint(length), Perms: perms})
	memory_map.Sort(t.MemoryMap)
	t.Blobs[addr] = data
	t.allocated[addr] = true
	t.nextAlloc = addr + length

	return process.ProcessMemoryAddress(addr), data
}

func (t *Target) free(addr process.ProcessMemoryAddress) error {
	a := uint64(addr)
	if !t.allocated[a] {
		return syscall.EINVAL
	}
	i := memory_map.Find(a, t.MemoryMap)
	if i < 0 || t.MemoryMap[i].Address != a {
		return syscall.EINVAL
	}

	t.MemoryMap = append(t.MemoryMap[:i], t.MemoryMap[i+1:]...)
	delete(t.Blobs, a)
	delete(t.allocated, a)
	return nil
}

func alignUp(v uint64) uint64 {
	return (v + pageSize - 1) &^ (pageSize - 1)
}
