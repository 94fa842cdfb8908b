// Package server owns the network side: the goroutine that runs every
// engine call, the HTTP front for XML-RPC and JSON-RPC, and metrics.
package server

import (
	"context"
	"errors"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("server")

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("server loop stopped")

type task struct {
	fn   func()
	done chan struct{}
}

// Loop serializes access to the engine. Handlers on any goroutine submit
// closures with Do; Run executes them one at a time.
type Loop struct {
	tasks   chan task
	stopped chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		tasks:   make(chan task),
		stopped: make(chan struct{}),
	}
}

// Run executes submitted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			log.Debug("loop stopped")
			return
		case t := <-l.tasks:
			l.run(t)
		}
	}
}

func (l *Loop) run(t task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in loop task: %v", r)
		}
	}()
	t.fn()
}

// Do runs fn on the loop and waits for it to finish. If ctx ends first the
// closure may still run later; callers must not share state with it
// afterwards.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
