package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"remotemem/hexdump"
	"remotemem/hostbind"
	"remotemem/process"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

const historyFile = ".memctl_history"

var shellCmd = &cobra.Command{
	Use:   "shell [pid]",
	Short: "Interactive session; results print as they complete",
	Long: `Start an interactive session bound to pid (0 if omitted).

Each line is "<method> <args...>", for example:

  lookupByName game.exe
  attach 4242
  open
  readAt 0x400000 32
  writeAt 0x400000 90 90 c3
  allocate 64
  freeAt 0x10000000
  inject c3
  close

Commands return immediately with a sequence number; the result is printed
when the operation completes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSession(func(s *session, args []string) error {
		sh, err := newShell(s, stdout)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			if err := sh.attach(args[0]); err != nil {
				return err
			}
		}
		return sh.run()
	}),
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

var errExit = errors.New("exit")

type shell struct {
	s      *session
	obj    *hostbind.Object
	line   *liner.State
	prompt string

	mu  sync.Mutex // guards out
	out io.Writer
	seq atomic.Uint64
}

func newShell(s *session, out io.Writer) (*shell, error) {
	obj, err := s.object()
	if err != nil {
		return nil, err
	}
	return &shell{
		s:      s,
		obj:    obj,
		prompt: s.cfg.Shell.Prompt,
		out:    out,
	}, nil
}

func (sh *shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

func commandNames() []string {
	names := append([]string{"attach", "stats", "help", "exit"}, hostbind.Methods...)
	sort.Strings(names)
	return names
}

func (sh *shell) historyPath() string {
	if sh.s.cfg.Shell.History != "" {
		return sh.s.cfg.Shell.History
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, historyFile)
}

func (sh *shell) run() error {
	sh.line = liner.NewLiner()
	defer sh.line.Close()
	sh.line.SetCtrlCAborts(true)

	names := trie.New()
	for _, name := range commandNames() {
		names.Add(name, nil)
	}
	sh.line.SetCompleter(func(line string) []string {
		if strings.Contains(line, " ") {
			return nil
		}
		return names.PrefixSearch(line)
	})

	history := sh.historyPath()
	if f, err := os.Open(history); err == nil {
		_, _ = sh.line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(history); err == nil {
			_, _ = sh.line.WriteHistory(f)
			f.Close()
		}
	}()

	sh.printf("Type 'help' for list of commands.\n")
	for {
		l, err := sh.line.Prompt(sh.prompt)
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				sh.printf("exit\n")
				return nil
			}
			return fmt.Errorf("prompt failed: %w", err)
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		sh.line.AppendHistory(l)

		if err := sh.exec(l); err != nil {
			if err == errExit {
				return nil
			}
			sh.printf("Command failed: %s\n", err)
		}
	}
}

// exec runs one line. Operations are submitted and reported later from the
// control loop; only validation and parse errors come back directly.
func (sh *shell) exec(l string) error {
	tokens, err := shlex.Split(l)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	method, tokens := tokens[0], tokens[1:]

	switch method {
	case "exit", "quit":
		return errExit
	case "help":
		sh.printf("%s\n", strings.Join(commandNames(), " "))
		return nil
	case "stats":
		sh.printf("%s\n", sh.s.d.Stats())
		return nil
	case "attach":
		if len(tokens) != 1 {
			return fmt.Errorf("usage: attach <pid>")
		}
		return sh.attach(tokens[0])
	}

	args := hostArgs(method, tokens)
	a, err := sh.obj.Call(method, args...)
	if err != nil {
		return err
	}

	n := sh.seq.Add(1)
	sh.printf("[%d] %s submitted\n", n, method)

	var addr uint64
	if method == "readAt" && len(args) > 0 {
		addr, _ = args[0].(uint64)
	}
	a.Then(func(v any, err error) {
		sh.report(n, method, addr, v, err)
	})
	return nil
}

func (sh *shell) attach(tok string) error {
	pid, err := parseNumber(tok)
	if err != nil {
		return err
	}
	obj, err := sh.s.object(pid)
	if err != nil {
		return err
	}
	sh.obj = obj
	sh.printf("attached to %d (not opened)\n", pid)
	return nil
}

// report runs on the control loop
func (sh *shell) report(n uint64, method string, addr uint64, v any, err error) {
	if err != nil {
		sh.printf("[%d] %s failed: %s\n", n, method, describe(method, err))
		return
	}

	switch value := v.(type) {
	case []byte:
		options := hexdump.DefaultOptions()
		options.StartOffset = addr
		options.OffsetWidth = 16
		options.Color = colorEnabled()
		sh.printf("[%d] %s: %d bytes\n%s", n, method, len(value), hexdump.Dump(value, options))
	case process.ProcessMemoryAddress:
		sh.printf("[%d] %s: %s\n", n, method, value.ToString())
	case nil:
		sh.printf("[%d] %s: ok\n", n, method)
	default:
		sh.printf("[%d] %s: %v\n", n, method, value)
	}
}
