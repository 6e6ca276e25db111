package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"remotemem/config"
	"remotemem/process"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Process.Backend = config.BackendBlob

	s, err := newSession(cfg)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(s.close)

	out := &bytes.Buffer{}
	sh, err := newShell(s, out)
	if err != nil {
		t.Fatalf("newShell: %v", err)
	}
	return sh, out
}

func waitOutput(t *testing.T, sh *shell, out *bytes.Buffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		sh.mu.Lock()
		got := out.String()
		sh.mu.Unlock()
		if strings.Contains(got, want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("output never contained %q:\n%s", want, got)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestShellRoundTrip(t *testing.T) {
	sh, out := newTestShell(t)

	steps := []struct {
		line string
		want string
	}{
		{"lookupByName demo", "[1] lookupByName: 1000"},
		{"attach 1000", "attached to 1000"},
		{"open", "[2] open: ok"},
		{"writeAt 0x400010 90 90 c3", "[3] writeAt: true"},
		{"readAt 0x400010 3", "0000000000400010  90 90 c3"},
		{"close", "[5] close: true"},
	}
	for _, step := range steps {
		if err := sh.exec(step.line); err != nil {
			t.Fatalf("exec(%q): %v", step.line, err)
		}
		waitOutput(t, sh, out, step.want)
	}
}

func TestShellValidationIsImmediate(t *testing.T) {
	sh, out := newTestShell(t)

	err := sh.exec("readAt somewhere 4")
	if process.KindOf(err) != process.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if strings.Contains(out.String(), "submitted") {
		t.Fatal("invalid call was submitted")
	}
	if got := sh.s.d.Stats().Submitted; got != 0 {
		t.Fatalf("%d operations submitted", got)
	}
}

func TestShellReportsFailures(t *testing.T) {
	sh, out := newTestShell(t)

	if err := sh.exec("lookupByName nonexistent-xyz"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	waitOutput(t, sh, out, "[1] lookupByName failed: lookupByName: not found")

	if err := sh.exec("close"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	waitOutput(t, sh, out, "[2] close failed:")
}

func TestShellBuiltins(t *testing.T) {
	sh, out := newTestShell(t)

	if err := sh.exec("help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out.String(), "readAt") {
		t.Fatalf("help output missing methods: %q", out.String())
	}
	if err := sh.exec("attach nope"); err == nil {
		t.Fatal("attach accepted a non-numeric pid")
	}
	if err := sh.exec("exit"); err != errExit {
		t.Fatalf("exit returned %v", err)
	}
}
