// Package completion implements the tag-per-call completion protocol shared
// by the asynchronous client and server: in-flight calls are registered in
// a Table under a generation-checked Tag, finished operations are posted to
// a Queue, and a consumer picks them up with Queue.Next.
package completion

import (
	"fmt"
	"sync"
)

// Tag identifies an in-flight call. A Tag becomes stale as soon as the call
// is released, even if its slot gets reused by another call.
type Tag struct {
	Index      uint32
	Generation uint32
}

func (t Tag) IsZero() bool {
	return t.Generation == 0
}

func (t Tag) String() string {
	return fmt.Sprintf("%d.%d", t.Index, t.Generation)
}

type slot[T any] struct {
	generation uint32
	inUse      bool
	value      T
}

// Table owns the values of in-flight calls, keyed by Tag.
type Table[T any] struct {
	locker sync.Mutex
	slots  []slot[T]
	free   []uint32
	count  int
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

func (t *Table[T]) Register(value T) Tag {
	t.locker.Lock()
	defer t.locker.Unlock()

	var idx uint32
	if len(t.free) > 0 {
		idx = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}

	s := &t.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.inUse = true
	s.value = value
	t.count++
	return Tag{Index: idx, Generation: s.generation}
}

func (t *Table[T]) Lookup(tag Tag) (T, bool) {
	t.locker.Lock()
	defer t.locker.Unlock()
	s := t.get(tag)
	if s == nil {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Release frees the slot of the tag. It returns false if the tag is stale.
func (t *Table[T]) Release(tag Tag) bool {
	t.locker.Lock()
	defer t.locker.Unlock()
	s := t.get(tag)
	if s == nil {
		return false
	}
	var zero T
	s.value = zero
	s.inUse = false
	t.free = append(t.free, tag.Index)
	t.count--
	return true
}

func (t *Table[T]) Len() int {
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.count
}

func (t *Table[T]) get(tag Tag) *slot[T] {
	if tag.IsZero() || int(tag.Index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[tag.Index]
	if !s.inUse || s.generation != tag.Generation {
		return nil
	}
	return s
}
