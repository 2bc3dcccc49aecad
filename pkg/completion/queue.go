package completion

import (
	"context"
	"errors"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
)

var ErrShutdown = errors.New("the completion queue is shut down")

type Event struct {
	Tag Tag

	// OK is false if the operation was cancelled or failed on the transport level.
	OK bool
}

// Queue collects completed operations. Every started operation calls Expect
// and is later completed with exactly one Post.
type Queue struct {
	locker     sync.Mutex
	events     []Event
	expected   int
	isShutdown bool
	progressCh chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		progressCh: make(chan struct{}),
	}
}

// Expect announces an operation that will complete with a Post.
func (q *Queue) Expect() error {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.isShutdown {
		return ErrShutdown
	}
	q.expected++
	return nil
}

func (q *Queue) Post(tag Tag, ok bool) {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.expected > 0 {
		q.expected--
	} else {
		logger.Default().Errorf("an unexpected completion of tag %s", tag)
	}
	q.events = append(q.events, Event{Tag: tag, OK: ok})
	q.notify()
}

// Shutdown forbids new operations. Next keeps returning events until all
// the expected operations are completed and consumed.
func (q *Queue) Shutdown() {
	q.locker.Lock()
	defer q.locker.Unlock()
	q.isShutdown = true
	q.notify()
}

// Next blocks until an operation completes. It returns false when
// the queue is shut down and drained, or when ctx is done.
func (q *Queue) Next(ctx context.Context) (Event, bool) {
	for {
		ev, ok, waitCh := q.tryNext()
		if waitCh == nil {
			return ev, ok
		}
		select {
		case <-ctx.Done():
			return Event{}, false
		case <-waitCh:
		}
	}
}

func (q *Queue) tryNext() (Event, bool, chan struct{}) {
	q.locker.Lock()
	defer q.locker.Unlock()
	if len(q.events) > 0 {
		ev := q.events[0]
		q.events[0] = Event{}
		q.events = q.events[1:]
		return ev, true, nil
	}
	if q.isShutdown && q.expected == 0 {
		return Event{}, false, nil
	}
	return Event{}, false, q.progressCh
}

// Pending returns the amount of operations that are not consumed yet.
func (q *Queue) Pending() int {
	q.locker.Lock()
	defer q.locker.Unlock()
	return q.expected + len(q.events)
}

func (q *Queue) notify() {
	oldCh := q.progressCh
	q.progressCh = make(chan struct{})
	close(oldCh)
}
