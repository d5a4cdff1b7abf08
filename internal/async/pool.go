package async

import "context"

// Pool bounds how many submitted functions run at once.
type Pool struct {
	sema chan struct{}
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sema: make(chan struct{}, size)}
}

// Size is the maximum number of concurrently running functions.
func (p *Pool) Size() int { return cap(p.sema) }

// Submit queues fn on the pool. If ctx ends before a slot frees up, the task
// fails with ctx.Err() and fn never runs.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Task[T] {
	return Go(ctx, func(ctx context.Context) (T, error) {
		select {
		case p.sema <- struct{}{}:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
		defer func() { <-p.sema }()
		return fn(ctx)
	})
}
