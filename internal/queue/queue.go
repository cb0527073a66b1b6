// Copyright (c) 2026 The Nanoev Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements the non-blocking concurrent queue of
// Maged M. Michael and Michael L. Scott (PODC 1996): https://dl.acm.org/doi/10.1145/248052.248106
//
// The queue is a singly linked list with a dummy head node. Producers link a
// new node after the tail with a CAS and then try to swing the tail forward,
// consumers swing the head forward with a CAS and take the value of the node
// that becomes the new dummy. A lagging tail is advanced by whoever notices it.
// Go's garbage collector stands in for the ABA counters of the paper.
package queue

import (
	"sync/atomic"

	uatomic "go.uber.org/atomic"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free FIFO queue safe for concurrent use by any number
// of producers and consumers. The zero value is not usable, call New.
type Queue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length uatomic.Int32
}

// New instantiates an empty queue.
func New[T any]() *Queue[T] {
	q := new(Queue[T])
	dummy := new(node[T])
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

// Enqueue puts v at the tail of the queue.
func (q *Queue[T]) Enqueue(v T) {
	n := &node[T]{value: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// Tail is falling behind.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Inc()
			return
		}
	}
}

// Dequeue removes and returns the value at the head of the queue,
// ok is false when the queue is empty.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return v, false
			}
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		// Read the value before the CAS, the node may be dequeued by someone else right after.
		v = next.value
		if q.head.CompareAndSwap(head, next) {
			var zero T
			next.value = zero
			q.length.Dec()
			return v, true
		}
	}
}

// IsEmpty indicates whether the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.head.Load().next.Load() == nil
}

// Length returns the approximate number of queued values.
func (q *Queue[T]) Length() int32 {
	return q.length.Load()
}
