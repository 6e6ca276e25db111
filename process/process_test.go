package process

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestNewOSErrorCarriesErrno(t *testing.T) {
	err := NewOSError("ReadProcessMemory", syscall.EFAULT, func() uint32 {
		t.Fatal("lastError consulted although the error carries a code")
		return 0
	})

	var oe *OSError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OSError, got %T", err)
	}
	if oe.Code != uint32(syscall.EFAULT) || oe.Op != "ReadProcessMemory" {
		t.Fatalf("got %+v", oe)
	}
	if !errors.Is(err, syscall.EFAULT) {
		t.Fatal("OSError does not unwrap to the errno")
	}
	if KindOf(err) != KindOS {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestNewOSErrorFallsBackToLastError(t *testing.T) {
	err := NewOSError("VirtualAllocEx", errors.New("no code"), func() uint32 { return 8 })
	if got := ErrorCode(err); got != 8 {
		t.Fatalf("code = %d want 8", got)
	}
}

func TestNewOSErrorPassThrough(t *testing.T) {
	if NewOSError("x", nil, nil) != nil {
		t.Fatal("nil error wrapped")
	}

	wrapped := fmt.Errorf("lookup: %w", ErrNotFound)
	if got := NewOSError("FindProcessIDByName", wrapped, nil); got != wrapped {
		t.Fatalf("not-found rewrapped: %v", got)
	}
	if ErrorCode(wrapped) != CodeNotFound {
		t.Fatalf("code = 0x%X", ErrorCode(wrapped))
	}

	inner := &OSError{Op: "OpenProcess", Code: CodeAlreadyOpen, Err: ErrAlreadyOpen}
	if got := NewOSError("other", inner, nil); got != inner {
		t.Fatal("existing OSError rewrapped")
	}
}

type refusedErr string

func (e refusedErr) Error() string { return "refused " + string(e) }
func (e refusedErr) Refused() bool { return e != "" }

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, KindNone},
		{&ValidationError{Method: "readAt", Reason: "expected 2 arguments"}, KindValidation},
		{ErrNotFound, KindNotFound},
		{&OSError{Op: "CloseHandle", Code: 6}, KindOS},
		{&OSError{Op: "OpenProcess", Code: CodeAlreadyOpen, Err: ErrAlreadyOpen}, KindState},
		{fmt.Errorf("submit: %w", refusedErr("closed")), KindState},
		{refusedErr(""), KindOS},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s want %s", tt.err, got, tt.want)
		}
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Method: "writeAt", Reason: "argument 2 must be bytes"}
	if got := err.Error(); got != "TypeError: writeAt: argument 2 must be bytes" {
		t.Fatalf("message = %q", got)
	}
	if ErrorCode(err) != CodeInvalidArgument {
		t.Fatalf("code = 0x%X", ErrorCode(err))
	}
}

func TestProcessHandleTransitions(t *testing.T) {
	h := NewProcessHandle(10)
	if h.IsOpen() {
		t.Fatal("new handle is open")
	}
	if !h.SetIfUnset(5) {
		t.Fatal("SetIfUnset on unset handle failed")
	}
	if h.SetIfUnset(6) {
		t.Fatal("SetIfUnset replaced a live handle")
	}
	if h.ClearIf(6) {
		t.Fatal("ClearIf cleared a different handle")
	}
	if prev := h.SwapOSHandle(7); prev != 5 {
		t.Fatalf("Swap returned %d want 5", prev)
	}
	if !h.ClearIf(7) || h.IsOpen() {
		t.Fatal("ClearIf did not reset the handle")
	}
	if h.PID() != 10 {
		t.Fatalf("pid = %d", h.PID())
	}
}

func TestParseOpenPolicy(t *testing.T) {
	for _, p := range []OpenPolicy{OpenReject, OpenReplace, OpenOverwrite} {
		got, err := ParseOpenPolicy(p.String())
		if err != nil || got != p {
			t.Fatalf("ParseOpenPolicy(%q) = (%v, %v)", p.String(), got, err)
		}
	}
	if p, err := ParseOpenPolicy(""); err != nil || p != OpenReject {
		t.Fatalf("empty policy = (%v, %v)", p, err)
	}
	if _, err := ParseOpenPolicy("sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestAddressEncoding(t *testing.T) {
	addr := ProcessMemoryAddress(0x7FF612340000)
	enc := EncodeAddress(addr)
	if len(enc) != AddressWidth {
		t.Fatalf("encoded width %d", len(enc))
	}
	if enc[0] != 0x00 || enc[2] != 0x34 || enc[5] != 0x7F {
		t.Fatalf("not little-endian: %x", enc)
	}
	if _, err := DecodeAddress(enc[:4]); err == nil {
		t.Fatal("expected error for short encoding")
	}
}
