package process

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// MaxTransferSize bounds a single read or allocation request
const MaxTransferSize ProcessMemorySize = math.MaxUint32

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AddressWidth is the length of an encoded address
const AddressWidth = 8

// EncodeAddress returns addr as a fixed-width little-endian byte sequence.
func EncodeAddress(addr ProcessMemoryAddress) []byte {
	buf := make([]byte, AddressWidth)
	binary.LittleEndian.PutUint64(buf, uint64(addr))
	return buf
}

// DecodeAddress is the inverse of EncodeAddress.
func DecodeAddress(b []byte) (ProcessMemoryAddress, error) {
	if len(b) != AddressWidth {
		return 0, fmt.Errorf("encoded address must be %d bytes, got %d", AddressWidth, len(b))
	}
	return ProcessMemoryAddress(binary.LittleEndian.Uint64(b)), nil
}
