package gatt

import (
	"context"
	"sync"
)

// queue runs operations one at a time, in submission order.
type queue struct {
	mu   sync.Mutex
	ops  []*op
	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

type op struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

func newQueue() *queue {
	q := &queue{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	go q.loop()
	return q
}

// do appends fn to the queue and waits for it to run. If ctx ends first
// the caller stops waiting, and an op that has not started is skipped.
func (q *queue) do(ctx context.Context, fn func(ctx context.Context) error) error {
	o := &op{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	select {
	case <-q.quit:
		q.mu.Unlock()
		return ErrLinkClosed
	default:
	}
	q.ops = append(q.ops, o)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) next() *op {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return nil
	}
	o := q.ops[0]
	q.ops[0] = nil
	q.ops = q.ops[1:]
	return o
}

func (q *queue) loop() {
	for {
		o := q.next()
		if o == nil {
			select {
			case <-q.wake:
				continue
			case <-q.quit:
				q.drain()
				return
			}
		}
		if err := o.ctx.Err(); err != nil {
			o.done <- err
			continue
		}
		o.done <- o.fn(o.ctx)
	}
}

func (q *queue) drain() {
	for o := q.next(); o != nil; o = q.next() {
		o.done <- ErrLinkClosed
	}
}

func (q *queue) close() {
	q.once.Do(func() {
		q.mu.Lock()
		close(q.quit)
		q.mu.Unlock()
	})
}
