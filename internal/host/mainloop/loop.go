// Package mainloop is the host main thread: a single goroutine that runs
// every state-changing job in submission order, plus a repeating task
// scheduler whose callbacks are delivered onto that goroutine.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	logx "trackcast/pkg/logx"
)

var ErrClosed = errors.New("main loop closed")

// Loop serializes jobs. Jobs must not block.
type Loop struct {
	log  logx.Logger
	jobs chan func()

	closeOnce sync.Once
	closed    chan struct{}
}

func New(queue int, log logx.Logger) *Loop {
	if queue <= 0 {
		queue = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{log: log, jobs: make(chan func(), queue), closed: make(chan struct{})}
}

// Run drains jobs until ctx is done. Submissions after that fail with ErrClosed.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeOnce.Do(func() { close(l.closed) })
	l.log.Debug("main loop started", logx.Int("queue_cap", cap(l.jobs)))
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("main loop stopped", logx.Int("pending", len(l.jobs)))
			return nil
		case fn := <-l.jobs:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("main loop job panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
}

// Post queues fn. It blocks while the queue is full and reports false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case <-l.closed:
		return false
	default:
	}
	select {
	case l.jobs <- fn:
		return true
	case <-l.closed:
		return false
	}
}

// Do queues fn and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	var pan any
	wrapped := func() {
		defer close(done)
		defer func() { pan = recover() }()
		fn()
	}
	select {
	case <-l.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.jobs <- wrapped:
	}
	select {
	case <-done:
		if pan != nil {
			return fmt.Errorf("main loop job panicked: %v", pan)
		}
		return nil
	case <-l.closed:
		// The job may still be queued behind shutdown; it will never run.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
