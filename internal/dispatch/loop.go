// Package dispatch provides the single-writer loop that owns session state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("dispatch loop closed")

// Loop runs posted functions one at a time on a single goroutine. State that
// is only touched from inside posted functions needs no further locking.
type Loop struct {
	queue chan func()
	quit  chan struct{}
	done  chan struct{}

	onPanic func(any)

	closeOnce sync.Once
	startOnce sync.Once
}

// Option configures a Loop.
type Option func(*Loop)

// WithPanicHandler installs a handler for panics raised by posted functions.
// The loop keeps running after a panic.
func WithPanicHandler(fn func(any)) Option {
	return func(l *Loop) { l.onPanic = fn }
}

// New creates a loop with the given queue capacity.
func New(buffer int, opts ...Option) *Loop {
	if buffer < 1 {
		buffer = 1
	}
	l := &Loop{
		queue: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes posted functions until ctx is done or Close is called.
// Calling Run more than once returns immediately.
func (l *Loop) Run(ctx context.Context) {
	started := false
	l.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(l.done)

	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
		case <-l.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.onPanic != nil {
			l.onPanic(r)
		}
	}()
	fn()
}

// Post enqueues fn without waiting for it. It blocks while the queue is full
// and reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.quit:
		return false
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish. A panic inside fn is
// recovered and returned as an error.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	posted := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("dispatch: panic: %v", r)
			}
		}()
		result <- fn()
	})
	if !posted {
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		// The loop may have run fn right before stopping.
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Queued functions that have not started are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.quit) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
