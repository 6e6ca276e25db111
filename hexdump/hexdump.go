// Package hexdump renders memory read results for the terminal.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"remotemem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options controls the layout of a dump
type Options struct {
	// BytesPerLine defaults to 16
	BytesPerLine int

	// GroupSize is the number of bytes printed without a space between them
	GroupSize int

	ShowASCII bool

	// StartOffset is added to every printed offset, usually the read address
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// MaxLines stops the dump early; 0 means no limit
	MaxLines int

	// HighlightPattern occurrences are colored when Color is set
	HighlightPattern []byte
	Color            bool

	// MemoryMap, when set, adds the first two little-endian words of each
	// line that point into a mapped region.
	MemoryMap []memory_map.MemoryMapItem
}

// DefaultOptions returns a 16-column dump with ASCII and no color
func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		GroupSize:    1,
		ShowASCII:    true,
		OffsetWidth:  8,
	}
}

// Dump returns the dump of data as a string
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpAt is Dump with default options and offsets starting at addr.
func DumpAt(data []byte, addr uint64) string {
	options := DefaultOptions()
	options.StartOffset = addr
	options.OffsetWidth = 16
	return Dump(data, options)
}

// DumpToWriter writes the dump of data to writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	highlight := highlightMask(data, options)

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := offset + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}

		formatLine(writer, data[offset:end], highlight[offset:end], uint64(offset)+options.StartOffset, options)
		lineCount++
	}
}

// highlightMask marks every byte covered by an occurrence of the pattern.
func highlightMask(data []byte, options Options) []bool {
	mask := make([]bool, len(data))
	pattern := options.HighlightPattern
	if !options.Color || len(pattern) == 0 {
		return mask
	}
	for i := 0; i+len(pattern) <= len(data); i++ {
		if bytes.Equal(data[i:i+len(pattern)], pattern) {
			for j := i; j < i+len(pattern); j++ {
				mask[j] = true
			}
		}
	}
	return mask
}

func formatLine(writer io.Writer, data []byte, highlight []bool, offset uint64, options Options) {
	fmt.Fprintf(writer, "%0*x  ", options.OffsetWidth, offset)

	var hex strings.Builder
	for i, b := range data {
		if i > 0 && i%options.GroupSize == 0 {
			hex.WriteByte(' ')
		}
		hex.WriteString(paint(fmt.Sprintf("%02x", b), highlight[i]))
	}
	fmt.Fprint(writer, hex.String())

	// keep the ASCII column aligned on the last, short line
	if missing := options.BytesPerLine - len(data); missing > 0 {
		full := options.BytesPerLine*2 + (options.BytesPerLine-1)/options.GroupSize
		cur := len(data)*2 + max(0, len(data)-1)/options.GroupSize
		fmt.Fprint(writer, strings.Repeat(" ", full-cur))
	}

	if options.ShowASCII {
		fmt.Fprint(writer, "  |")
		for i, b := range data {
			c := "."
			if b >= 0x20 && b < 0x7f {
				c = string(rune(b))
			}
			fmt.Fprint(writer, paint(c, highlight[i]))
		}
		fmt.Fprint(writer, "|")
	}

	if len(options.MemoryMap) > 0 {
		for i := 0; i+8 <= len(data) && i < 16; i += 8 {
			ptr := binary.LittleEndian.Uint64(data[i : i+8])
			if memory_map.Find(ptr, options.MemoryMap) >= 0 {
				fmt.Fprintf(writer, " 0x%x", ptr)
			}
		}
	}

	fmt.Fprintln(writer)
}

func paint(s string, on bool) string {
	if !on {
		return s
	}
	return coloransi.Color(coloransi.ColorOrange, coloransi.ColorPurple, s)
}
