// Package remote exposes the caller-facing operations against a target
// process. Every method returns immediately with a dispatch.Future; the
// blocking backend call runs on the dispatcher's worker pool.
package remote

import (
	"errors"
	"fmt"

	"remotemem/dispatch"
	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Client binds a backend to a dispatcher
type Client struct {
	d       *dispatch.Dispatcher
	backend process.Backend
	policy  process.OpenPolicy
	log     *logger.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithOpenPolicy sets what Open does when the handle is already set.
func WithOpenPolicy(p process.OpenPolicy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient creates a Client. The default open policy is process.OpenReject.
func NewClient(d *dispatch.Dispatcher, backend process.Backend, opts ...ClientOption) *Client {
	c := &Client{
		d:       d,
		backend: backend,
		policy:  process.OpenReject,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "remote")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Dispatcher() *dispatch.Dispatcher {
	return c.d
}

func (c *Client) OpenPolicy() process.OpenPolicy {
	return c.policy
}

// LookupByName resolves a process name to its identifier. A name that does
// not resolve rejects with process.ErrNotFound.
func (c *Client) LookupByName(name string) *dispatch.Future[process.ProcessID] {
	return submit[process.ProcessID](c, nil, &LookupByName{Name: name})
}

// Process returns a caller-owned handle wrapper for pid. Nothing is opened.
func (c *Client) Process(pid process.ProcessID) *Process {
	return &Process{
		c:      c,
		handle: process.NewProcessHandle(pid),
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid))),
	}
}

// submit runs op's body on a worker and its completion on the control loop.
// The backend error is turned into an OSError on the worker, right after the
// failing call and on the same OS thread.
func submit[T any](c *Client, key any, op Operation[T]) *dispatch.Future[T] {
	body := func() (T, error) {
		var zero T
		err := op.Execute(c.backend)
		return zero, process.NewOSError(op.Op(), err, c.backend.LastError)
	}
	complete := func(_ T, err error) (T, error) {
		return op.Complete(err)
	}
	return dispatch.Submit(c.d, key, body, complete)
}

// dispose releases a handle the caller will never see, off the control loop.
// If the dispatcher is already closing, the handle is released inline.
func (c *Client) dispose(key any, h process.OSHandle) {
	f := dispatch.Submit(c.d, key, func() (struct{}, error) {
		return struct{}{}, c.backend.Close(h)
	}, nil)
	if _, err, ok := f.Peek(); ok && errors.Is(err, dispatch.ErrDispatcherClosed) {
		if err := c.backend.Close(h); err != nil {
			c.log.Warn("Failed to release handle: ", err)
		}
	}
}
