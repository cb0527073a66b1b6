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

//go:build darwin || dragonfly || freebsd || linux

/*
Package netpoll wraps the readiness notification facility of the operating system:
  - epoll on Linux - https://man7.org/linux/man-pages/man7/epoll.7.html
  - kqueue on FreeBSD, DragonFly BSD and macOS - https://man.freebsd.org/cgi/man.cgi?kqueue

A Poller watches file descriptors in level-triggered mode and reports which of them
are readable, writable or in error through a PollEventHandler. Besides that,
any goroutine may interrupt a blocked Poll by calling Wakeup, which is what the
nanoev loop relies on to notice Async signals and Break requests.

	poller, err := netpoll.OpenPoller()
	if err != nil {
		// handle error
	}
	defer poller.Close()

	if err = poller.AddRead(fd); err != nil {
		// handle error
	}
	woken, err := poller.Poll(100, func(fd int, ev netpoll.IOEvent) {
		if ev.IsReadable() {
			// read from fd
		}
	})

A Poller is not safe for concurrent use, except for Wakeup.
*/
package netpoll

// IOEvent is the set of readiness conditions reported for a file descriptor.
type IOEvent uint8

const (
	// EventRead means the file descriptor is readable, or acceptable for a listening socket.
	EventRead IOEvent = 1 << iota
	// EventWrite means the file descriptor is writable, or connected for a connecting socket.
	EventWrite
	// EventError means an error or a hang-up condition is pending on the file descriptor.
	EventError
)

// IsReadable tells whether ev carries the readable condition.
func (ev IOEvent) IsReadable() bool { return ev&EventRead != 0 }

// IsWritable tells whether ev carries the writable condition.
func (ev IOEvent) IsWritable() bool { return ev&EventWrite != 0 }

// IsError tells whether ev carries an error or hang-up condition.
func (ev IOEvent) IsError() bool { return ev&EventError != 0 }

// PollEventHandler is invoked by Poll for each ready file descriptor.
type PollEventHandler func(fd int, ev IOEvent)

const (
	// InitPollEventsCap represents the initial capacity of poller event-list.
	InitPollEventsCap = 128
	// MaxPollEventsCap is the maximum limitation of events that the poller can process.
	MaxPollEventsCap = 1024
	// MinPollEventsCap is the minimum limitation of events that the poller can process.
	MinPollEventsCap = 32
)

type eventList[T any] struct {
	size   int
	events []T
}

func newEventList[T any](size int) *eventList[T] {
	return &eventList[T]{size, make([]T, size)}
}

// adjust grows the list once it got filled up and shrinks it when less than half was used.
func (el *eventList[T]) adjust(n int) {
	newSize := el.size
	if n == el.size {
		newSize = el.size << 1
	} else if n < el.size>>1 {
		newSize = el.size >> 1
	}
	if newSize != el.size && newSize <= MaxPollEventsCap && newSize >= MinPollEventsCap {
		el.size = newSize
		el.events = make([]T, newSize)
	}
}
