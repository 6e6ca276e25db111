package main

import (
	"context"
	"fmt"
	"time"

	"remotemem/config"
	"remotemem/dispatch"
	"remotemem/hostbind"
	"remotemem/process"
	"remotemem/process_blob"
	"remotemem/remote"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// demoPID is the blob target created when no dump is loaded
const demoPID process.ProcessID = 1000

// session owns the dispatcher and runs its control loop on a background
// goroutine until close.
type session struct {
	log     *logger.Logger
	cfg     *config.Config
	backend process.Backend
	blob    *process_blob.Backend
	d       *dispatch.Dispatcher
	client  *remote.Client

	cancel  context.CancelFunc
	stopped chan struct{}
}

func newSession(cfg *config.Config) (*session, error) {
	s := &session{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "memctl")),
		cfg: cfg,
	}

	switch cfg.Process.Backend {
	case config.BackendBlob:
		blob, err := blobBackend(cfg.Process.Dumps)
		if err != nil {
			return nil, err
		}
		s.blob = blob
		s.backend = blob
	default:
		native, err := nativeBackend()
		if err != nil {
			return nil, err
		}
		s.backend = native
	}

	s.d = dispatch.New(cfg.DispatchOptions()...)
	s.client = remote.NewClient(s.d, s.backend, remote.WithOpenPolicy(cfg.Policy()))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go func() {
		defer close(s.stopped)
		_ = s.d.Run(ctx)
	}()

	s.log.Debugln("Session started with backend", cfg.Process.Backend)
	return s, nil
}

func blobBackend(dumps []string) (*process_blob.Backend, error) {
	blob := process_blob.NewBackend()
	for _, dir := range dumps {
		t, err := process_blob.LoadTarget(dir)
		if err != nil {
			return nil, fmt.Errorf("loading dump %s: %w", dir, err)
		}
		blob.AddTarget(t)
	}
	if len(dumps) == 0 {
		t := process_blob.NewTarget(demoPID, "demo")
		if err := t.AddRegion(0x400000, make([]byte, 0x1000), "rw-p"); err != nil {
			return nil, err
		}
		blob.AddTarget(t)
	}
	return blob, nil
}

// close stops the loop and lets Close deliver whatever is still in flight.
func (s *session) close() {
	s.cancel()
	<-s.stopped
	if err := s.d.Close(); err != nil {
		s.log.Warn("Dispatcher close failed: ", err)
	}
	s.log.Debugln("Session closed:", s.d.Stats().String())
}

func (s *session) object(args ...any) (*hostbind.Object, error) {
	return hostbind.New(s.client, args...)
}

// call submits method and waits for it to settle.
func call(o *hostbind.Object, method string, args ...any) (any, error) {
	a, err := o.Call(method, args...)
	if err != nil {
		return nil, err
	}
	return awaitOne(a)
}

func awaitOne(a hostbind.Awaitable) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return a.Await(ctx)
}

// withOpen runs fn between an open and a close of pid
func (s *session) withOpen(pid uint64, fn func(o *hostbind.Object) error) error {
	o, err := s.object(pid)
	if err != nil {
		return err
	}
	if _, err := call(o, "open"); err != nil {
		return describe("open", err)
	}
	runErr := fn(o)
	if _, err := call(o, "close"); err != nil && runErr == nil {
		runErr = describe("close", err)
	}
	return runErr
}

// describe prefixes err with the failure class
func describe(method string, err error) error {
	switch process.KindOf(err) {
	case process.KindValidation:
		return err
	case process.KindNotFound:
		return fmt.Errorf("%s: not found", method)
	case process.KindState:
		return fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Errorf("%s: %w (code %d)", method, err, process.ErrorCode(err))
}
