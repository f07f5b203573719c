/*
Package queue implements a lock-free FIFO used to hand deferred work items
to the reactor from any goroutine.
*/
package queue

import "sync/atomic"

type Queue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length int32
}

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	n := &node[T]{} // the first node is blank.
	q.head.Store(n)
	q.tail.Store(n)
	return q
}

func (that *Queue[T]) Enqueue(v T) {
	n := &node[T]{value: v}
	for {
		tail := that.tail.Load()
		next := tail.next.Load()

		if tail == that.tail.Load() {
			if next == nil {
				if tail.next.CompareAndSwap(next, n) {
					that.tail.CompareAndSwap(tail, n)
					atomic.AddInt32(&that.length, 1)
					return
				}
			} else {
				that.tail.CompareAndSwap(tail, next)
			}
		}
	}
}

func (that *Queue[T]) Dequeue() (v T, ok bool) {
	for {
		head := that.head.Load()
		tail := that.tail.Load()
		next := head.next.Load()
		if head == that.head.Load() {
			if head == tail {
				if next == nil {
					return
				}
				that.tail.CompareAndSwap(tail, next)
			} else {
				v = next.value
				if that.head.CompareAndSwap(head, next) {
					atomic.AddInt32(&that.length, -1)
					return v, true
				}
			}
		}
	}
}

func (that *Queue[T]) IsEmpty() bool {
	return atomic.LoadInt32(&that.length) == 0
}
