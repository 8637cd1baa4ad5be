// Package debounce delays an action until its input has been quiet for a
// fixed window. A newer input cancels the context of any action still
// running for an older one, so the last input always wins.
package debounce

import (
	"context"
	"sync"
	"time"
)

type Func[T any] func(ctx context.Context, value T)

type Option[T any] func(*Debouncer[T])

// WithContext sets the parent of the contexts passed to the action.
func WithContext[T any](ctx context.Context) Option[T] {
	return func(d *Debouncer[T]) {
		d.parent = ctx
	}
}

type Debouncer[T any] struct {
	mu      sync.Mutex
	wait    time.Duration
	fn      Func[T]
	parent  context.Context
	timer   *time.Timer
	cancel  context.CancelFunc
	gen     uint64
	stopped bool
}

func New[T any](wait time.Duration, fn Func[T], opts ...Option[T]) *Debouncer[T] {
	d := &Debouncer[T]{
		wait:   wait,
		fn:     fn,
		parent: context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Trigger restarts the quiescence window with value and cancels any
// in-flight action. It reports false once the debouncer is stopped.
func (d *Debouncer[T]) Trigger(value T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	d.supersedeLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.wait, func() {
		d.fire(gen, value)
	})

	return true
}

// Cancel drops the pending value, if any, and cancels any in-flight action.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.supersedeLocked()
}

// Stop cancels everything and makes further triggers no-ops.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.supersedeLocked()
	d.stopped = true
}

func (d *Debouncer[T]) supersedeLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Debouncer[T]) fire(gen uint64, value T) {
	d.mu.Lock()
	// a timer that lost the race with Stop inside supersedeLocked
	if gen != d.gen || d.stopped {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	d.timer = nil
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if gen == d.gen {
			d.cancel = nil
		}
		d.mu.Unlock()
		cancel()
	}()

	d.fn(ctx, value)
}
