package memory_map

import "testing"

func TestFindSorted(t *testing.T) {
	mm := []MemoryMapItem{
		{Address: 0x3000, Size: 0x1000, Perms: "r--p"},
		{Address: 0x1000, Size: 0x1000, Perms: "rw-p"},
	}
	Sort(mm)

	cases := []struct {
		addr uint64
		want int
	}{
		{0x0fff, -1},
		{0x1000, 0},
		{0x1fff, 0},
		{0x2000, -1},
		{0x3800, 1},
		{0x4000, -1},
	}
	for _, tc := range cases {
		if got := Find(tc.addr, mm); got != tc.want {
			t.Fatalf("Find(%#x)=%d want %d", tc.addr, got, tc.want)
		}
	}
}

func TestContainsAndPerms(t *testing.T) {
	item := MemoryMapItem{Address: 0x1000, Size: 0x10, Perms: "rwxp"}
	if !item.Contains(0x1000, 0x10) {
		t.Fatalf("expected full range to be contained")
	}
	if item.Contains(0x1008, 0x10) {
		t.Fatalf("range crossing the end must not be contained")
	}
	if !item.IsReadable() || !item.IsWritable() || !item.IsExecutable() {
		t.Fatalf("perms %q misparsed", item.Perms)
	}
	if IsWritablePerms("r--p") || IsExecutablePerms("rw") {
		t.Fatalf("short or read-only perms reported writable/executable")
	}
}

func TestOverlaps(t *testing.T) {
	mm := []MemoryMapItem{{Address: 0x1000, Size: 0x1000}}
	if !Overlaps(0x0800, 0x1000, mm) {
		t.Fatalf("expected overlap")
	}
	if Overlaps(0x2000, 0x10, mm) {
		t.Fatalf("adjacent range must not overlap")
	}
}
