package process_blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"remotemem/process"
	"remotemem/process/memory_map"
)

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"
)

type dumpMetadata struct {
	PID  process.ProcessID `json:"pid"`
	Name string            `json:"name"`
}

func blobFilename(dirname string, item memory_map.MemoryMapItem) string {
	return filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", item.Address, item.Size))
}

// Save writes the target to dirname: metadata, memory map, one blob per region.
func (t *Target) Save(dirname string) error {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(dumpMetadata{PID: t.PID, Name: t.Name}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, metadataFile), metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	memoryMapJSON, err := json.MarshalIndent(t.MemoryMap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, memoryMapFile), memoryMapJSON, 0644); err != nil {
		return fmt.Errorf("failed to write memory map file: %w", err)
	}

	for _, item := range t.MemoryMap {
		data, ok := t.Blobs[item.Address]
		if !ok {
			continue
		}
		if err := os.WriteFile(blobFilename(dirname, item), data, 0644); err != nil {
			return fmt.Errorf("failed to write blob for region 0x%x: %w", item.Address, err)
		}
	}
	return nil
}

// LoadTarget reads a dump written by Save. Regions without a blob file are
// mapped but hold zeroes.
func LoadTarget(dirname string) (*Target, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata dumpMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, memoryMapFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.Sort(mm)

	t := NewTarget(metadata.PID, metadata.Name)
	for _, item := range mm {
		data, err := os.ReadFile(blobFilename(dirname, item))
		if os.IsNotExist(err) {
			data = make([]byte, item.Size)
		} else if err != nil {
			return nil, fmt.Errorf("failed to read blob for region 0x%x: %w", item.Address, err)
		}
		if uint(len(data)) != item.Size {
			return nil, fmt.Errorf("blob for region 0x%x has %d bytes, expected %d", item.Address, len(data), item.Size)
		}
		if err := t.AddRegion(item.Address, data, item.Perms); err != nil {
			return nil, err
		}
	}
	return t, nil
}
