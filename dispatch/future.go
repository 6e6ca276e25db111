package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Future is the one-shot result of a submitted operation. It starts pending
// and settles exactly once, either resolved with a value or rejected with an
// error. Operations settle their futures on the dispatcher's control loop.
type Future[T any] struct {
	id uuid.UUID
	d  *Dispatcher

	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

func newFuture[T any](d *Dispatcher) *Future[T] {
	return &Future[T]{
		id:   uuid.New(),
		d:    d,
		done: make(chan struct{}),
	}
}

// Resolved returns a future already resolved with v.
func Resolved[T any](d *Dispatcher, v T) *Future[T] {
	f := newFuture[T](d)
	f.settle(v, nil)
	return f
}

// Rejected returns a future already rejected with err. Used for failures
// detected before anything is submitted.
func Rejected[T any](d *Dispatcher, err error) *Future[T] {
	f := newFuture[T](d)
	var zero T
	f.settle(zero, err)
	return f
}

// ID identifies the operation in log traces.
func (f *Future[T]) ID() uuid.UUID {
	return f.id
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Peek returns the settled outcome without blocking. ok is false while pending.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// Await blocks until the future settles or ctx is done. Calling it from the
// goroutine that drives the control loop deadlocks unless another goroutine
// runs the loop.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers fn to run on the control loop once the future settles.
// Callbacks registered after settlement are queued to the loop as well,
// unless the dispatcher has been closed, in which case fn runs before Then
// returns.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()

	if f.d == nil {
		fn(v, err)
		return
	}
	f.d.post(func() { fn(v, err) })
}

// Map returns a future settled, on the control loop, with fn applied to
// f's value. A rejection of f passes through without calling fn.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := newFuture[U](f.d)
	f.Then(func(v T, err error) {
		if err != nil {
			var zero U
			out.settle(zero, err)
			return
		}
		out.settle(fn(v))
	})
	return out
}

// settle moves the future to its terminal state. It returns false if the
// future had already settled; the first outcome wins.
func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(v, err)
	}
	return true
}

// Outcome is a settled value/error pair.
type Outcome[T any] struct {
	Value T
	Err   error
}

// AwaitAll waits for every future and returns their outcomes in order.
func AwaitAll[T any](ctx context.Context, futures ...*Future[T]) ([]Outcome[T], error) {
	out := make([]Outcome[T], len(futures))
	for i, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			return out[:i], ctx.Err()
		}
		v, err, _ := f.Peek()
		out[i] = Outcome[T]{Value: v, Err: err}
	}
	return out, nil
}
