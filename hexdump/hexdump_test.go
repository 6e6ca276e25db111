package hexdump

import (
	"strings"
	"testing"

	"remotemem/process/memory_map"
)

func TestDumpLayout(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOPQR")
	got := Dump(data, DefaultOptions())

	want := "00000000  41 42 43 44 45 46 47 48 49 4a 4b 4c 4d 4e 4f 50  |ABCDEFGHIJKLMNOP|\n" +
		"00000010  51 52                                            |QR|\n"
	if got != want {
		t.Fatalf("got\n%q\nwant\n%q", got, want)
	}
}

func TestDumpAtUsesAddress(t *testing.T) {
	got := DumpAt([]byte{0x90, 0x90, 0xC3}, 0x7ff600001000)
	if !strings.HasPrefix(got, "00007ff600001000  90 90 c3") {
		t.Fatalf("got %q", got)
	}
	if !strings.HasSuffix(got, "|...|\n") {
		t.Fatalf("non-printable bytes not dotted: %q", got)
	}
}

func TestDumpGroupsAndMaxLines(t *testing.T) {
	options := DefaultOptions()
	options.BytesPerLine = 4
	options.GroupSize = 2
	options.ShowASCII = false
	options.MaxLines = 1

	got := Dump([]byte{1, 2, 3, 4, 5, 6}, options)
	want := "00000000  0102 0304\n... 2 more bytes\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDumpPointers(t *testing.T) {
	options := DefaultOptions()
	options.MemoryMap = []memory_map.MemoryMapItem{{Address: 0x1000, Size: 0x100, Perms: "rw-p"}}

	data := []byte{0x10, 0x10, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0, 0, 0, 0, 0, 0}
	got := Dump(data, options)
	if !strings.HasSuffix(got, " 0x1010\n") {
		t.Fatalf("pointer preview missing: %q", got)
	}
	if strings.Contains(got, "0xffff") {
		t.Fatalf("unmapped value shown as pointer: %q", got)
	}
}

func TestHighlightNeedsColor(t *testing.T) {
	options := DefaultOptions()
	options.HighlightPattern = []byte{0xC3}
	plain := Dump([]byte{0x90, 0xC3}, options)

	options.Color = true
	colored := Dump([]byte{0x90, 0xC3}, options)

	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("escape codes without Color: %q", plain)
	}
	if !strings.Contains(colored, "\x1b[") {
		t.Fatalf("no escape codes with Color: %q", colored)
	}
}
