package engine

import (
	"context"
	"sync"
)

// pool is a fixed-size goroutine pool with a bounded input queue.
// Submit never blocks: a full queue is the caller's backpressure signal.
type pool[T any] struct {
	queue   chan T
	process func(ctx context.Context, v T)
	wg      sync.WaitGroup
}

// newPool creates and starts a pool with n goroutines and queue capacity depth.
func newPool[T any](ctx context.Context, n, depth int, fn func(context.Context, T)) *pool[T] {
	p := &pool[T]{
		queue:   make(chan T, depth),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *pool[T]) run(ctx context.Context) {
	for {
		select {
		case v, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, v)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues work without blocking (returns false if full).
func (p *pool[T]) Submit(v T) bool {
	select {
	case p.queue <- v:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish.
func (p *pool[T]) Drain() {
	close(p.queue)
	p.wg.Wait()
}

// Len returns how many items are currently queued.
func (p *pool[T]) Len() int { return len(p.queue) }

// Cap returns the total queue capacity.
func (p *pool[T]) Cap() int { return cap(p.queue) }
