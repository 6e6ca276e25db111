package main

import (
	"remotemem/config"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	backendFlag string
	policyFlag  string
	workersFlag int
	serialize   bool
	dumpDirs    []string
)

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Asynchronous access to another process's memory",
	Long: `memctl looks up processes, reads and writes their memory, allocates and
frees remote memory, and starts injected code.

Every operation runs on a bounded worker pool; results are delivered on a
single control loop. The "blob" backend works on in-memory targets loaded
from dumps, so every command can be tried without touching a real process.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "memctl.toml", "config file")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", `backend: "native" or "blob" (overrides config)`)
	rootCmd.PersistentFlags().StringVar(&policyFlag, "open-policy", "", `open policy: "reject", "replace" or "overwrite" (overrides config)`)
	rootCmd.PersistentFlags().IntVar(&workersFlag, "workers", 0, "worker pool size (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&serialize, "serialize", false, "run operations on the same process in submission order")
	rootCmd.PersistentFlags().StringSliceVar(&dumpDirs, "dump", nil, "dump directory to load into the blob backend (repeatable)")
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backendFlag != "" {
		cfg.Process.Backend = backendFlag
	}
	if policyFlag != "" {
		cfg.Process.OpenPolicy = policyFlag
	}
	if workersFlag > 0 {
		cfg.Dispatch.Workers = workersFlag
	}
	if serialize {
		cfg.Dispatch.SerializePerHandle = true
	}
	if len(dumpDirs) > 0 {
		cfg.Process.Dumps = append(cfg.Process.Dumps, dumpDirs...)
		if backendFlag == "" {
			cfg.Process.Backend = config.BackendBlob
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
