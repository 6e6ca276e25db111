// Package config loads memctl settings from a TOML file.
package config

import (
	"fmt"
	"os"

	"remotemem/dispatch"
	"remotemem/process"

	"github.com/BurntSushi/toml"
)

const (
	BackendNative = "native"
	BackendBlob   = "blob"
)

// Config is the decoded settings file. Zero values mean "use the default".
type Config struct {
	Dispatch struct {
		Workers            int  `toml:"workers"`
		SerializePerHandle bool `toml:"serialize_per_handle"`
	} `toml:"dispatch"`

	Process struct {
		Backend    string `toml:"backend"`
		OpenPolicy string `toml:"open_policy"`
		// Dumps are loaded into the blob backend as targets
		Dumps []string `toml:"dumps"`
	} `toml:"process"`

	Shell struct {
		Prompt  string `toml:"prompt"`
		History string `toml:"history"`
	} `toml:"shell"`
}

// Default returns the settings used when no file is present
func Default() *Config {
	c := &Config{}
	c.Process.Backend = BackendNative
	c.Process.OpenPolicy = process.OpenReject.String()
	c.Shell.Prompt = "memctl> "
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config: unknown key %q", undecoded[0].String())
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks enumerations and ranges
func (c *Config) Validate() error {
	if c.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must not be negative, got %d", c.Dispatch.Workers)
	}
	switch c.Process.Backend {
	case BackendNative, BackendBlob:
	default:
		return fmt.Errorf("process.backend must be %q or %q, got %q", BackendNative, BackendBlob, c.Process.Backend)
	}
	if _, err := process.ParseOpenPolicy(c.Process.OpenPolicy); err != nil {
		return fmt.Errorf("process.open_policy: %w", err)
	}
	return nil
}

// Policy returns the parsed open policy
func (c *Config) Policy() process.OpenPolicy {
	p, _ := process.ParseOpenPolicy(c.Process.OpenPolicy)
	return p
}

// DispatchOptions translates the [dispatch] section
func (c *Config) DispatchOptions() []dispatch.Option {
	var opts []dispatch.Option
	if c.Dispatch.Workers > 0 {
		opts = append(opts, dispatch.WithWorkers(c.Dispatch.Workers))
	}
	if c.Dispatch.SerializePerHandle {
		opts = append(opts, dispatch.WithSerializePerKey())
	}
	return opts
}
