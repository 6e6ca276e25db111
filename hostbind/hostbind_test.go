package hostbind

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"remotemem/dispatch"
	"remotemem/process"
	"remotemem/process_blob"
	"remotemem/remote"
)

const testPID = 4242

func newClient(t *testing.T) (*remote.Client, *process_blob.Backend) {
	t.Helper()

	backend := process_blob.NewBackend()
	target := process_blob.NewTarget(testPID, "game.exe")
	if err := target.AddRegion(0x400000, make([]byte, 0x1000), "rw-p"); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	backend.AddTarget(target)

	d := dispatch.New(dispatch.WithWorkers(2))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		_ = d.Close()
	})
	return remote.NewClient(d, backend), backend
}

func call(t *testing.T, o *Object, method string, args ...any) (any, error) {
	t.Helper()
	a, err := o.Call(method, args...)
	if err != nil {
		t.Fatalf("%s: unexpected validation error: %v", method, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := a.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("%s never settled", method)
	}
	return v, err
}

func TestValidationSubmitsNothing(t *testing.T) {
	client, backend := newClient(t)
	o, err := New(client, testPID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		method string
		args   []any
	}{
		{"readAt", []any{"0x400000", 4}},
		{"readAt", []any{0x400000}},
		{"readAt", nil},
		{"readAt", []any{-1, 4}},
		{"readAt", []any{0x400000, 1.5}},
		{"allocate", nil},
		{"allocate", []any{"big"}},
		{"freeAt", []any{[]byte{1}}},
		{"writeAt", []any{0x400000, "not bytes"}},
		{"writeAt", []any{nil, []byte{1}}},
		{"inject", []any{"code"}},
		{"inject", nil},
		{"lookupByName", []any{42}},
		{"terminate", nil},
	}

	submitted := client.Dispatcher().Stats().Submitted
	for _, tt := range tests {
		a, err := o.Call(tt.method, tt.args...)
		if a != nil {
			t.Errorf("%s%v: returned an awaitable", tt.method, tt.args)
		}
		var ve *process.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s%v: expected *process.ValidationError, got %v", tt.method, tt.args, err)
			continue
		}
		if process.KindOf(err) != process.KindValidation {
			t.Errorf("%s%v: kind %s", tt.method, tt.args, process.KindOf(err))
		}
	}

	if got := backend.Calls(); got != 0 {
		t.Fatalf("validation failures reached the backend %d times", got)
	}
	if got := client.Dispatcher().Stats().Submitted; got != submitted {
		t.Fatalf("validation failures submitted %d operations", got-submitted)
	}
}

func TestNewRejectsNonNumericPID(t *testing.T) {
	client, _ := newClient(t)
	if _, err := New(client, "4242"); process.KindOf(err) != process.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	o, err := New(client)
	if err != nil {
		t.Fatalf("New without pid: %v", err)
	}
	if o.Process().PID() != 0 {
		t.Fatalf("default pid = %d", o.Process().PID())
	}
}

func TestRoundTrip(t *testing.T) {
	client, _ := newClient(t)

	pid, err := call(t, mustNew(t, client), "lookupByName", "game.exe")
	if err != nil {
		t.Fatalf("lookupByName: %v", err)
	}

	// float64 is how a decoded script number arrives
	o, err := New(client, float64(pid.(process.ProcessID)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := call(t, o, "open"); err != nil {
		t.Fatalf("open: %v", err)
	}

	addr, err := call(t, o, "allocate", 16)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	address, ok := addr.(process.ProcessMemoryAddress)
	if !ok || address == 0 {
		t.Fatalf("allocate resolved %#v", addr)
	}

	ok2, err := call(t, o, "writeAt", address, []byte{0x90, 0x90, 0xC3})
	if err != nil || ok2 != true {
		t.Fatalf("writeAt = (%v, %v)", ok2, err)
	}

	got, err := call(t, o, "readAt", uint64(address), 3)
	if err != nil {
		t.Fatalf("readAt: %v", err)
	}
	if !bytes.Equal(got.([]byte), []byte{0x90, 0x90, 0xC3}) {
		t.Fatalf("readAt = %x", got)
	}

	if v, err := call(t, o, "freeAt", address); err != nil || v != true {
		t.Fatalf("freeAt = (%v, %v)", v, err)
	}
	if v, err := call(t, o, "close"); err != nil || v != true {
		t.Fatalf("close = (%v, %v)", v, err)
	}
}

func TestLookupNotFound(t *testing.T) {
	client, _ := newClient(t)
	v, err := call(t, mustNew(t, client), "lookupByName", "nonexistent-xyz")
	if !errors.Is(err, process.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got (%v, %v)", v, err)
	}
	if v != nil {
		t.Fatalf("rejected lookup carried %v", v)
	}
}

func TestThenRunsWithErasedValue(t *testing.T) {
	client, _ := newClient(t)
	o := mustNew(t, client)

	a, err := o.Call("lookupByName", "game.exe")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got := make(chan any, 1)
	a.Then(func(v any, err error) {
		if err != nil {
			got <- err
			return
		}
		got <- v
	})
	select {
	case v := <-got:
		if v != process.ProcessID(testPID) {
			t.Fatalf("Then got %#v", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Then callback never ran")
	}
}

func TestToUint(t *testing.T) {
	tests := []struct {
		in    any
		limit uint64
		want  uint64
		ok    bool
	}{
		{42, 100, 42, true},
		{int64(-1), 100, 0, false},
		{uint8(7), 100, 7, true},
		{float64(3), 100, 3, true},
		{float64(3.25), 100, 0, false},
		{101, 100, 0, false},
		{"1", 100, 0, false},
		{nil, 100, 0, false},
		{process.ProcessMemoryAddress(0x1000), 1 << 20, 0x1000, true},
	}
	for _, tt := range tests {
		got, ok := toUint(tt.in, tt.limit)
		if ok != tt.ok || got != tt.want {
			t.Errorf("toUint(%#v) = (%d, %v) want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func mustNew(t *testing.T, client *remote.Client, args ...any) *Object {
	t.Helper()
	o, err := New(client, args...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}
