// Package async runs blocking and CPU-bound work off the caller's goroutine
// and hands back a Task to wait on.
package async

import (
	"context"
	"fmt"
)

// Task is the pending result of a background call.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go t.run(ctx, fn)
	return t
}

func (t *Task[T]) run(ctx context.Context, fn func(context.Context) (T, error)) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	t.value, t.err = fn(ctx)
}

// Done is closed once the result is available.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is cancelled. Cancelling ctx
// abandons the wait only; the work keeps its own context.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
