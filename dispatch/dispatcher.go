// Package dispatch runs blocking work on a bounded pool of worker goroutines
// and delivers each result exactly once on a single control loop.
//
// Submit never waits for the work itself. Worker goroutines run the body,
// then queue a completion step; completion steps only run inside Run, Poll
// or Close, one at a time, and are the only place futures settle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrDispatcherClosed rejects submissions made after Close. It reports
	// Refused() true so callers can tell it apart from backend failures.
	ErrDispatcherClosed error = refusal("dispatcher closed")

	// ErrLoopRunning is returned by Run when another Run is already driving the loop.
	ErrLoopRunning = errors.New("control loop already running")
)

type refusal string

func (r refusal) Error() string { return string(r) }

// Refused marks the error as raised by the dispatcher itself
func (r refusal) Refused() bool { return true }

// Body is the blocking part of an operation; it runs on a worker goroutine.
type Body[T any] func() (T, error)

// Completion runs on the control loop after Body returns and decides the
// final outcome. A nil Completion passes the body's result through.
type Completion[T any] func(T, error) (T, error)

// Dispatcher owns the worker pool and the queue of pending completion steps.
type Dispatcher struct {
	log       *logger.Logger
	workers   int64
	sem       *semaphore.Weighted
	serialize bool

	mu      sync.Mutex
	closed  bool
	drained bool
	pending []func()
	chains  map[any]chan struct{}
	wake    chan struct{}

	loop    sync.Mutex
	running atomic.Bool

	inflight  sync.WaitGroup
	submitted atomic.Uint64
	completed atomic.Uint64
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithWorkers bounds the number of bodies running at once. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.workers = int64(n)
	}
}

// WithSerializePerKey makes submissions that share a non-nil key run one
// after another in submission order. The next body starts only after the
// previous completion step has run.
func WithSerializePerKey() Option {
	return func(d *Dispatcher) {
		d.serialize = true
	}
}

// WithLogger replaces the dispatcher's logger
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates a Dispatcher. Without options it uses runtime.NumCPU workers
// and no per-key ordering.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workers: int64(runtime.NumCPU()),
		chains:  make(map[any]chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dispatch"))
	}
	d.sem = semaphore.NewWeighted(d.workers)
	d.log.Debugln("Dispatcher created with", d.workers, "workers, serialize per key:", d.serialize)
	return d
}

// Workers returns the size of the worker pool
func (d *Dispatcher) Workers() int {
	return int(d.workers)
}

// Submit queues body for execution on a worker goroutine and returns its
// future. complete, if not nil, runs on the control loop before the future
// settles. key groups submissions for WithSerializePerKey; it is ignored
// otherwise and may be nil.
func Submit[T any](d *Dispatcher, key any, body Body[T], complete Completion[T]) *Future[T] {
	f := newFuture[T](d)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		var zero T
		f.settle(zero, ErrDispatcherClosed)
		return f
	}

	var prev, done chan struct{}
	if d.serialize && key != nil {
		prev = d.chains[key]
		done = make(chan struct{})
		d.chains[key] = done
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	d.submitted.Add(1)
	d.log.Debugln("submit", f.id)

	go d.work(f.id.String(), key, prev, done, func() func() {
		v, err := body()
		return func() {
			if complete != nil {
				v, err = complete(v, err)
			}
			f.settle(v, err)
		}
	})

	return f
}

// work runs one body. The closure returned by run is the completion step.
func (d *Dispatcher) work(id string, key any, prev, done chan struct{}, run func() func()) {
	defer d.inflight.Done()

	if prev != nil {
		<-prev
	}

	// Background never cancels, so Acquire cannot fail.
	_ = d.sem.Acquire(context.Background(), 1)

	// Keep thread-affine error state on the thread that made the call.
	runtime.LockOSThread()
	step := run()
	runtime.UnlockOSThread()

	d.sem.Release(1)

	d.post(func() {
		step()
		d.completed.Add(1)
		d.log.Debugln("complete", id)
		if done != nil {
			d.releaseChain(key, done)
		}
	})
}

func (d *Dispatcher) releaseChain(key any, done chan struct{}) {
	d.mu.Lock()
	if d.chains[key] == done {
		delete(d.chains, key)
	}
	d.mu.Unlock()
	close(done)
}

// post queues a completion step for the control loop. Once Close has
// returned nothing polls anymore, so the step runs on the caller instead.
func (d *Dispatcher) post(step func()) {
	d.mu.Lock()
	if d.drained {
		d.mu.Unlock()
		step()
		return
	}
	d.pending = append(d.pending, step)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Poll runs every completion step queued so far and returns how many ran.
// It never blocks on outstanding work. Steps never run concurrently, even
// if Poll is called from several goroutines.
func (d *Dispatcher) Poll() int {
	d.loop.Lock()
	defer d.loop.Unlock()

	ran := 0
	for {
		d.mu.Lock()
		steps := d.pending
		d.pending = nil
		d.mu.Unlock()

		if len(steps) == 0 {
			return ran
		}
		for _, step := range steps {
			step()
		}
		ran += len(steps)
	}
}

// Run drives the control loop until ctx is done, running completion steps as
// they arrive. Steps queued before ctx was cancelled are drained on return.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer d.running.Store(false)

	d.log.Infoln("Control loop started")
	defer d.log.Infoln("Control loop stopped")

	for {
		d.Poll()
		select {
		case <-ctx.Done():
			d.Poll()
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// Close stops accepting submissions and waits for every submitted operation
// to finish. While waiting it runs completion steps itself, so it must be
// called from the goroutine that owns the control loop. Every future returned
// by Submit has settled when Close returns.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(idle)
	}()

	for {
		select {
		case <-idle:
			d.Poll()
			d.mu.Lock()
			d.drained = true
			d.mu.Unlock()
			// a step posted between the last Poll and drained
			d.Poll()
			d.log.Infoln("Dispatcher closed after", d.submitted.Load(), "submissions")
			return nil
		case <-d.wake:
			d.Poll()
		}
	}
}

// Stats is a snapshot of dispatcher counters
type Stats struct {
	Submitted uint64
	Completed uint64
	Pending   int // completion steps waiting for the loop
}

func (s Stats) String() string {
	return fmt.Sprintf("submitted=%d completed=%d pending=%d", s.Submitted, s.Completed, s.Pending)
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()
	return Stats{
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Pending:   pending,
	}
}
