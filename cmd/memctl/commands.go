package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"remotemem/hexdump"
	"remotemem/hostbind"
	"remotemem/pod"
	"remotemem/process"
	"remotemem/process_blob"
	"remotemem/search"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(lookupCmd, readCmd, writeCmd, allocCmd, freeCmd, injectCmd, dumpCmd, pointersCmd, searchCmd)
}

// stdout handles ANSI sequences on consoles that need translation
var stdout io.Writer = colorable.NewColorableStdout()

func colorEnabled() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// runSession wraps a command body with config loading and session teardown.
func runSession(fn func(s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(s, args)
	}
}

// onProcess parses the leading pid argument, opens it and runs fn.
func onProcess(fn func(o *hostbind.Object, args []string) error) func(*cobra.Command, []string) error {
	return runSession(func(s *session, args []string) error {
		pid, err := parseNumber(args[0])
		if err != nil {
			return err
		}
		return s.withOpen(pid, func(o *hostbind.Object) error {
			return fn(o, args[1:])
		})
	})
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Resolve a process name to its PID",
	Args:  cobra.ExactArgs(1),
	RunE: runSession(func(s *session, args []string) error {
		o, err := s.object()
		if err != nil {
			return err
		}
		pid, err := call(o, "lookupByName", args[0])
		if err != nil {
			return describe("lookupByName", err)
		}
		fmt.Fprintln(stdout, pid)
		return nil
	}),
}

var readCmd = &cobra.Command{
	Use:   "read <pid> <address> <length>",
	Short: "Read memory and print it as a hex dump",
	Args:  cobra.ExactArgs(3),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		v, err := call(o, "readAt", hostArgs("readAt", args)...)
		if err != nil {
			return describe("readAt", err)
		}
		addr, _ := parseNumber(args[0])
		options := hexdump.DefaultOptions()
		options.StartOffset = addr
		options.OffsetWidth = 16
		options.Color = colorEnabled()
		hexdump.DumpToWriter(stdout, v.([]byte), options)
		return nil
	}),
}

var writeCmd = &cobra.Command{
	Use:   "write <pid> <address> <hex bytes...>",
	Short: "Write bytes to memory",
	Args:  cobra.MinimumNArgs(3),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		if _, err := call(o, "writeAt", hostArgs("writeAt", args)...); err != nil {
			return describe("writeAt", err)
		}
		fmt.Fprintln(stdout, "ok")
		return nil
	}),
}

var allocCmd = &cobra.Command{
	Use:   "alloc <pid> <size>",
	Short: "Allocate read-write memory in the target",
	Long: `Allocate read-write memory in the target and print its address.

The memory stays allocated after memctl exits; release it with "free".`,
	Args: cobra.ExactArgs(2),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		v, err := call(o, "allocate", hostArgs("allocate", args)...)
		if err != nil {
			return describe("allocate", err)
		}
		fmt.Fprintln(stdout, v.(process.ProcessMemoryAddress).ToString())
		return nil
	}),
}

var freeCmd = &cobra.Command{
	Use:   "free <pid> <address>",
	Short: "Free memory returned by alloc",
	Args:  cobra.ExactArgs(2),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		if _, err := call(o, "freeAt", hostArgs("freeAt", args)...); err != nil {
			return describe("freeAt", err)
		}
		fmt.Fprintln(stdout, "ok")
		return nil
	}),
}

var injectCmd = &cobra.Command{
	Use:   "inject <pid> <hex code...>",
	Short: "Copy code into the target and start a thread on it",
	Args:  cobra.MinimumNArgs(2),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		if _, err := call(o, "inject", hostArgs("inject", args)...); err != nil {
			return describe("inject", err)
		}
		fmt.Fprintln(stdout, "started")
		return nil
	}),
}

var pointersCmd = &cobra.Command{
	Use:   "pointers <pid> <address> <count>",
	Short: "Read a table of 8-byte pointers and list the non-null ones",
	Args:  cobra.ExactArgs(3),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		addr, err := parseNumber(args[0])
		if err != nil {
			return err
		}
		count, err := parseNumber(args[1])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		ptrs, err := pod.ReadPointerList(o.Process(), process.ProcessMemoryAddress(addr), int(count), nil).Await(ctx)
		if err != nil {
			return describe("readAt", err)
		}

		format := pod.FormatFunc(nil)
		if colorEnabled() {
			format = pod.Highlight
		}
		tbl := pod.NewTable(pod.ColumnSpec{Header: "#"}, pod.ColumnSpec{Header: "Pointer", FormatFunc: format})
		for i, p := range ptrs {
			tbl.AddRow(fmt.Sprint(i), p.ToString())
		}
		return tbl.Render(stdout)
	}),
}

var (
	searchDepth int
	searchSize  uint
	searchAlign uint
)

var searchCmd = &cobra.Command{
	Use:   "search <pid> <base> <hex bytes...>",
	Short: "Find a byte pattern in the structs reachable from base",
	Args:  cobra.MinimumNArgs(3),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		base, err := parseNumber(args[0])
		if err != nil {
			return err
		}
		pattern, err := parseBytes(args[1:]...)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		results, err := search.Search(ctx, o.Process(), process.ProcessMemoryAddress(base),
			search.WithSearchForBytes(pattern),
			search.WithMaxDepth(searchDepth),
			search.WithMaxStructSize(searchSize),
			search.WithMinAlignment(searchAlign),
		)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprintln(stdout, r)
		}
		fmt.Fprintf(stdout, "%d matches\n", len(results))
		return nil
	}),
}

func init() {
	searchCmd.Flags().IntVar(&searchDepth, "depth", 3, "pointer levels to follow")
	searchCmd.Flags().UintVar(&searchSize, "size", 256, "bytes read per struct")
	searchCmd.Flags().UintVar(&searchAlign, "align", 4, "offset step")
}

var dumpOut string

var dumpCmd = &cobra.Command{
	Use:   "dump <pid> <address:length>...",
	Short: "Save memory ranges as a dump the blob backend can load",
	Args:  cobra.MinimumNArgs(2),
	RunE: onProcess(func(o *hostbind.Object, args []string) error {
		if dumpOut == "" {
			return fmt.Errorf("--out is required")
		}

		// submit every range before waiting on any of them
		type pending struct {
			addr uint64
			a    hostbind.Awaitable
		}
		var reads []pending
		for _, arg := range args {
			addr, length, err := parseRange(arg)
			if err != nil {
				return err
			}
			a, err := o.Call("readAt", addr, length)
			if err != nil {
				return err
			}
			reads = append(reads, pending{addr: addr, a: a})
		}

		target := process_blob.NewTarget(o.Process().PID(), fmt.Sprintf("pid-%d", o.Process().PID()))
		for _, r := range reads {
			v, err := awaitOne(r.a)
			if err != nil {
				return describe("readAt", err)
			}
			if err := target.AddRegion(r.addr, v.([]byte), "rw-p"); err != nil {
				return err
			}
		}
		if err := target.Save(dumpOut); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved %d regions to %s\n", len(reads), dumpOut)
		return nil
	}),
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpOut, "out", "o", "", "output directory")
}

func parseRange(s string) (uint64, uint64, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			addr, err := parseNumber(s[:i])
			if err != nil {
				return 0, 0, err
			}
			length, err := parseNumber(s[i+1:])
			if err != nil {
				return 0, 0, err
			}
			return addr, length, nil
		}
	}
	return 0, 0, fmt.Errorf("range %q must be address:length", s)
}
