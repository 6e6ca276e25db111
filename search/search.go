package search

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"remotemem/dispatch"
	"remotemem/pod"
	"remotemem/process"
	"remotemem/remote"
)

// Searcher holds configuration for the search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	SearchFor     func([]byte) bool
	ValidAddress  func(process.ProcessMemoryAddress) bool
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		if align == 0 {
			align = 1
		}
		s.MinAlignment = align
	}
}

// WithValidAddress decides which 8-byte values are followed as pointers.
// Without it every non-zero value is tried and unreadable targets are skipped.
func WithValidAddress(valid func(process.ProcessMemoryAddress) bool) Option {
	return func(s *Searcher) {
		s.ValidAddress = valid
	}
}

// WithSearchForBytes matches offsets whose memory starts with pattern.
func WithSearchForBytes(pattern []byte) Option {
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return len(pattern) > 0 && bytes.HasPrefix(data, pattern)
		}
	}
}

// WithSearchForType matches the little-endian encoding of val.
func WithSearchForType[T any](val T) Option {
	return func(s *Searcher) {
		pattern, err := pod.Encode(val)
		if err != nil {
			s.SearchFor = nil
			return
		}
		WithSearchForBytes(pattern)(s)
	}
}

// SearchResult is one match. Path holds the offset taken at each level,
// starting from base; the last entry is the offset of the match itself.
type SearchResult struct {
	Path    []process.ProcessMemorySize
	Address process.ProcessMemoryAddress
}

func (r SearchResult) String() string {
	s := "base"
	for i, off := range r.Path {
		if i < len(r.Path)-1 {
			s = fmt.Sprintf("[%s+0x%x]", s, uint(off))
		} else {
			s = fmt.Sprintf("%s+0x%x", s, uint(off))
		}
	}
	return s + " @ " + r.Address.ToString()
}

type node struct {
	addr process.ProcessMemoryAddress
	path []process.ProcessMemorySize
}

// Search walks the pointer graph rooted at base breadth first, reading
// every struct of one level concurrently, and reports where the target
// value appears.
func Search(ctx context.Context, p *remote.Process, base process.ProcessMemoryAddress, options ...Option) ([]SearchResult, error) {
	s := &Searcher{
		MaxStructSize: 256,
		MaxDepth:      3,
		MinAlignment:  4,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.SearchFor == nil {
		return nil, fmt.Errorf("no search target specified")
	}

	var results []SearchResult
	visited := map[process.ProcessMemoryAddress]bool{base: true}
	frontier := []node{{addr: base}}

	for depth := 0; depth <= s.MaxDepth && len(frontier) > 0; depth++ {
		reads := make([]*dispatch.Future[[]byte], len(frontier))
		for i, n := range frontier {
			reads[i] = p.ReadAt(n.addr, process.ProcessMemorySize(s.MaxStructSize))
		}
		outcomes, err := dispatch.AwaitAll(ctx, reads...)
		if err != nil {
			return results, err
		}

		var next []node
		for i, o := range outcomes {
			if o.Err != nil {
				continue
			}
			n := frontier[i]
			data := o.Value
			for offset := uint(0); offset+s.MinAlignment <= uint(len(data)); offset += s.MinAlignment {
				if s.SearchFor(data[offset:]) {
					results = append(results, SearchResult{
						Path:    extend(n.path, offset),
						Address: n.addr + process.ProcessMemoryAddress(offset),
					})
				}

				if offset%8 != 0 || depth == s.MaxDepth || offset+8 > uint(len(data)) {
					continue
				}
				ptr := process.ProcessMemoryAddress(binary.LittleEndian.Uint64(data[offset:]))
				if ptr == 0 || visited[ptr] || (s.ValidAddress != nil && !s.ValidAddress(ptr)) {
					continue
				}
				visited[ptr] = true
				next = append(next, node{addr: ptr, path: extend(n.path, offset)})
			}
		}
		frontier = next
	}

	return results, nil
}

func extend(path []process.ProcessMemorySize, offset uint) []process.ProcessMemorySize {
	out := make([]process.ProcessMemorySize, len(path), len(path)+1)
	copy(out, path)
	return append(out, process.ProcessMemorySize(offset))
}
