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

// Package timerheap implements the timer scheduler of a loop: a binary
// min-heap of timer nodes ordered by absolute deadline.
//
// Every node records its own position in the heap, so cancelling an
// arbitrary timer costs O(log n). A node that is not scheduled has
// the index -1.
package timerheap

import (
	"time"

	errorx "github.com/nanoev/nanoev/pkg/errors"
)

// Infinite is what TimeToNextDeadline returns when no timer is scheduled,
// the poller reads it as "block until something happens".
const Infinite = -1

// Node is a timer entry. The zero value is not usable, call NewNode.
type Node struct {
	deadline time.Time
	index    int
	seq      uint64
	fire     func()
}

// NewNode creates an unscheduled node that calls fire when it expires.
func NewNode(fire func()) *Node {
	return &Node{index: -1, fire: fire}
}

// Scheduled tells whether the node sits in a heap.
func (n *Node) Scheduled() bool {
	return n.index >= 0
}

// Deadline returns the deadline the node was last scheduled with.
func (n *Node) Deadline() time.Time {
	return n.deadline
}

// Heap is a min-heap of nodes, it is not safe for concurrent use.
type Heap struct {
	nodes []*Node
	limit int
	seq   uint64
}

// New creates a heap holding at most limit nodes, a non-positive limit means no limit.
func New(limit int) *Heap {
	return &Heap{limit: limit}
}

// Len returns the number of scheduled nodes.
func (h *Heap) Len() int {
	return len(h.nodes)
}

// Peek returns the node with the earliest deadline, nil if the heap is empty.
func (h *Heap) Peek() *Node {
	if len(h.nodes) == 0 {
		return nil
	}
	return h.nodes[0]
}

// Schedule enqueues n to expire at deadline.
func (h *Heap) Schedule(n *Node, deadline time.Time) error {
	if n.Scheduled() {
		return errorx.ErrTimerScheduled
	}
	if h.limit > 0 && len(h.nodes) >= h.limit {
		return errorx.ErrOutOfMemory
	}
	h.seq++
	n.deadline, n.seq = deadline, h.seq
	h.nodes = append(h.nodes, nil)
	h.siftUp(len(h.nodes)-1, n)
	return nil
}

// Cancel removes n from the heap, it does nothing if n is not scheduled.
func (h *Heap) Cancel(n *Node) {
	if !n.Scheduled() {
		return
	}
	hole := n.index
	last := len(h.nodes) - 1
	tail := h.nodes[last]
	h.nodes[last] = nil
	h.nodes = h.nodes[:last]
	n.index = -1
	if hole == last {
		return
	}
	if hole > 0 && h.nodes[(hole-1)/2].deadline.After(tail.deadline) {
		h.siftUp(hole, tail)
	} else {
		h.siftDown(hole, tail)
	}
}

// TimeToNextDeadline returns how many whole milliseconds are left until
// the earliest deadline, 0 if it is due already and Infinite if the heap is empty.
func (h *Heap) TimeToNextDeadline(now time.Time) int {
	if len(h.nodes) == 0 {
		return Infinite
	}
	d := h.nodes[0].deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Millisecond)
}

// FireDue removes every node due at now and calls it, earliest first.
// Nodes scheduled while the pass runs are left for the next pass even
// when they are already due, so a timer rescheduling itself into the
// past cannot keep the pass going forever. It returns the number of
// nodes fired.
func (h *Heap) FireDue(now time.Time) (fired int) {
	bound := h.seq
	for len(h.nodes) > 0 {
		top := h.nodes[0]
		if top.deadline.After(now) || top.seq > bound {
			break
		}
		h.Cancel(top)
		fired++
		top.fire()
	}
	return
}

// siftUp moves the hole at index up while its parent expires later than n, then puts n into it.
func (h *Heap) siftUp(hole int, n *Node) {
	for hole > 0 {
		parent := (hole - 1) / 2
		if !h.nodes[parent].deadline.After(n.deadline) {
			break
		}
		h.nodes[hole] = h.nodes[parent]
		h.nodes[hole].index = hole
		hole = parent
	}
	h.nodes[hole] = n
	n.index = hole
}

// siftDown moves the hole at index down while its smaller child expires earlier than n, then puts n into it.
func (h *Heap) siftDown(hole int, n *Node) {
	size := len(h.nodes)
	for {
		child := 2*hole + 1
		if child >= size {
			break
		}
		if right := child + 1; right < size && h.nodes[child].deadline.After(h.nodes[right].deadline) {
			child = right
		}
		if !n.deadline.After(h.nodes[child].deadline) {
			break
		}
		h.nodes[hole] = h.nodes[child]
		h.nodes[hole].index = hole
		hole = child
	}
	h.nodes[hole] = n
	n.index = hole
}
