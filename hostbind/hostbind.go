// Package hostbind is the loosely typed front door: it accepts method names
// with untyped arguments, checks them on the calling goroutine and only then
// builds the typed remote operation. A rejected call never reaches the
// dispatcher.
package hostbind

import (
	"context"
	"fmt"
	"math"

	"remotemem/dispatch"
	"remotemem/process"
	"remotemem/remote"

	"github.com/google/uuid"
)

// Awaitable is a Future with its payload type erased.
type Awaitable interface {
	ID() uuid.UUID
	Done() <-chan struct{}
	Await(ctx context.Context) (any, error)
	Peek() (any, error, bool)
	// Then runs fn on the control loop once the call settles.
	Then(fn func(any, error))
}

type erased[T any] struct {
	f    *dispatch.Future[T]
	conv func(T) any
}

func erase[T any](f *dispatch.Future[T], conv func(T) any) Awaitable {
	if conv == nil {
		conv = func(v T) any { return v }
	}
	return &erased[T]{f: f, conv: conv}
}

func (e *erased[T]) ID() uuid.UUID { return e.f.ID() }

func (e *erased[T]) Done() <-chan struct{} { return e.f.Done() }

func (e *erased[T]) Await(ctx context.Context) (any, error) {
	v, err := e.f.Await(ctx)
	if err != nil {
		return nil, err
	}
	return e.conv(v), nil
}

func (e *erased[T]) Peek() (any, error, bool) {
	v, err, ok := e.f.Peek()
	if !ok || err != nil {
		return nil, err, ok
	}
	return e.conv(v), nil, true
}

func (e *erased[T]) Then(fn func(any, error)) {
	e.f.Then(func(v T, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(e.conv(v), nil)
	})
}

// Methods lists the names Call accepts
var Methods = []string{"lookupByName", "open", "close", "readAt", "writeAt", "allocate", "freeAt", "inject"}

// Object binds one target process to a client
type Object struct {
	client *remote.Client
	proc   *remote.Process
}

// New creates an Object. The optional argument is the numeric process
// identifier; without it the object is bound to 0 and only lookupByName is
// useful.
func New(client *remote.Client, args ...any) (*Object, error) {
	var pid process.ProcessID
	if len(args) > 0 && args[0] != nil {
		v, ok := toUint(args[0], math.MaxUint32)
		if !ok {
			return nil, &process.ValidationError{Method: "new", Reason: "process id must be of Number type"}
		}
		pid = process.ProcessID(v)
	}
	return &Object{client: client, proc: client.Process(pid)}, nil
}

func (o *Object) Process() *remote.Process {
	return o.proc
}

// Call validates args for method and submits the operation. A non-nil
// error is always a *process.ValidationError and means nothing was submitted.
func (o *Object) Call(method string, args ...any) (Awaitable, error) {
	switch method {
	case "lookupByName":
		if err := arity(method, args, 1); err != nil {
			return nil, err
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, invalid(method, "argument must be of String type")
		}
		return erase(o.client.LookupByName(name), nil), nil

	case "open":
		return erase(o.proc.Open(), func(struct{}) any { return nil }), nil

	case "close":
		return erase(o.proc.Close(), nil), nil

	case "readAt":
		if err := arity(method, args, 2); err != nil {
			return nil, err
		}
		addr, ok1 := toUint(args[0], math.MaxUint64)
		length, ok2 := toUint(args[1], uint64(process.MaxTransferSize))
		if !ok1 || !ok2 {
			return nil, invalid(method, "arguments must be of Number type")
		}
		return erase(o.proc.ReadAt(process.ProcessMemoryAddress(addr), process.ProcessMemorySize(length)), nil), nil

	case "writeAt":
		if err := arity(method, args, 2); err != nil {
			return nil, err
		}
		addr, ok := toUint(args[0], math.MaxUint64)
		if !ok {
			return nil, invalid(method, "address must be of Number type")
		}
		data, ok := args[1].([]byte)
		if !ok {
			return nil, invalid(method, "data must be of Buffer type")
		}
		return erase(o.proc.WriteAt(process.ProcessMemoryAddress(addr), data), nil), nil

	case "allocate":
		if err := arity(method, args, 1); err != nil {
			return nil, err
		}
		size, ok := toUint(args[0], uint64(process.MaxTransferSize))
		if !ok {
			return nil, invalid(method, "argument must be of Number type")
		}
		return erase(o.proc.Allocate(process.ProcessMemorySize(size)), func(a remote.Allocation) any { return a.Address }), nil

	case "freeAt":
		if err := arity(method, args, 1); err != nil {
			return nil, err
		}
		addr, ok := toUint(args[0], math.MaxUint64)
		if !ok {
			return nil, invalid(method, "argument must be of Number type")
		}
		return erase(o.proc.FreeAt(process.ProcessMemoryAddress(addr)), nil), nil

	case "inject":
		if err := arity(method, args, 1); err != nil {
			return nil, err
		}
		code, ok := args[0].([]byte)
		if !ok {
			return nil, invalid(method, "argument must be of Buffer type")
		}
		return erase(o.proc.Inject(code), nil), nil
	}

	return nil, invalid(method, "no such method")
}

func invalid(method, reason string) error {
	return &process.ValidationError{Method: method, Reason: reason}
}

func arity(method string, args []any, n int) error {
	if len(args) >= n {
		return nil
	}
	switch n {
	case 1:
		return invalid(method, "at least one argument required")
	case 2:
		return invalid(method, "two arguments required")
	}
	return invalid(method, fmt.Sprintf("%d arguments required", n))
}

// toUint accepts any Go integer or an integral float, the forms a decoded
// script or JSON number arrives in. Negative and out of range values fail.
func toUint(v any, limit uint64) (uint64, bool) {
	var u uint64
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, false
		}
		u = uint64(n)
	case int8:
		if n < 0 {
			return 0, false
		}
		u = uint64(n)
	case int16:
		if n < 0 {
			return 0, false
		}
		u = uint64(n)
	case int32:
		if n < 0 {
			return 0, false
		}
		u = uint64(n)
	case int64:
		if n < 0 {
			return 0, false
		}
		u = uint64(n)
	case uint:
		u = uint64(n)
	case uint8:
		u = uint64(n)
	case uint16:
		u = uint64(n)
	case uint32:
		u = uint64(n)
	case uint64:
		u = n
	case uintptr:
		u = uint64(n)
	case float32:
		return floatToUint(float64(n), limit)
	case float64:
		return floatToUint(n, limit)
	case process.ProcessMemoryAddress:
		u = uint64(n)
	case process.ProcessMemorySize:
		u = uint64(n)
	case process.ProcessID:
		u = uint64(n)
	default:
		return 0, false
	}
	if u > limit {
		return 0, false
	}
	return u, true
}

func floatToUint(f float64, limit uint64) (uint64, bool) {
	if math.IsNaN(f) || f < 0 || f != math.Trunc(f) || f >= math.Exp2(64) {
		return 0, false
	}
	u := uint64(f)
	if u > limit {
		return 0, false
	}
	return u, true
}
