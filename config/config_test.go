package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"remotemem/process"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memctl.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Process.Backend != BackendNative {
		t.Fatalf("backend = %q", c.Process.Backend)
	}
	if c.Policy() != process.OpenReject {
		t.Fatalf("policy = %s", c.Policy())
	}
	if len(c.DispatchOptions()) != 0 {
		t.Fatal("defaults produced dispatch options")
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[dispatch]
workers = 3
serialize_per_handle = true

[process]
backend = "blob"
open_policy = "replace"
dumps = ["./dump-a", "./dump-b"]

[shell]
prompt = "> "
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Dispatch.Workers != 3 || !c.Dispatch.SerializePerHandle {
		t.Fatalf("dispatch = %+v", c.Dispatch)
	}
	if c.Process.Backend != BackendBlob || c.Policy() != process.OpenReplace {
		t.Fatalf("process = %+v", c.Process)
	}
	if len(c.Process.Dumps) != 2 {
		t.Fatalf("dumps = %v", c.Process.Dumps)
	}
	if c.Shell.Prompt != "> " {
		t.Fatalf("prompt = %q", c.Shell.Prompt)
	}
	if len(c.DispatchOptions()) != 2 {
		t.Fatalf("got %d dispatch options want 2", len(c.DispatchOptions()))
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"backend", "[process]\nbackend = \"remote\"\n", "process.backend"},
		{"policy", "[process]\nopen_policy = \"sometimes\"\n", "open_policy"},
		{"workers", "[dispatch]\nworkers = -1\n", "dispatch.workers"},
		{"unknown key", "[dispatch]\nthreads = 4\n", "unknown key"},
		{"syntax", "[dispatch\n", "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
