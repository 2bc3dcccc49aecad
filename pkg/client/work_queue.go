package client

import (
	"context"
	"sync"
)

// WorkQueue is an unbounded FIFO. Pop blocks until an item is pushed or
// the queue is closed.
type WorkQueue[T any] struct {
	locker     sync.Mutex
	items      []T
	isClosed   bool
	progressCh chan struct{}
}

func NewWorkQueue[T any]() *WorkQueue[T] {
	return &WorkQueue[T]{
		progressCh: make(chan struct{}),
	}
}

func (q *WorkQueue[T]) Push(item T) bool {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.isClosed {
		return false
	}
	q.items = append(q.items, item)
	q.notify()
	return true
}

// Close makes Pop return false once the queue is drained.
func (q *WorkQueue[T]) Close() {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.isClosed {
		return
	}
	q.isClosed = true
	q.notify()
}

func (q *WorkQueue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		item, ok, waitCh := q.tryPop()
		if waitCh == nil {
			return item, ok
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-waitCh:
		}
	}
}

func (q *WorkQueue[T]) Len() int {
	q.locker.Lock()
	defer q.locker.Unlock()
	return len(q.items)
}

func (q *WorkQueue[T]) tryPop() (T, bool, chan struct{}) {
	q.locker.Lock()
	defer q.locker.Unlock()
	var zero T
	if len(q.items) > 0 {
		item := q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
		return item, true, nil
	}
	if q.isClosed {
		return zero, false, nil
	}
	return zero, false, q.progressCh
}

func (q *WorkQueue[T]) notify() {
	oldCh := q.progressCh
	q.progressCh = make(chan struct{})
	close(oldCh)
}
