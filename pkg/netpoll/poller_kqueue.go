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

//go:build darwin || dragonfly || freebsd

package netpoll

import (
	"os"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Poller monitors file descriptors with kqueue, an EVFILT_USER event serves the wakeups.
type Poller struct {
	fd         int
	wakeupCall atomic.Bool
	events     *eventList[unix.Kevent_t]
}

// OpenPoller instantiates a poller.
func OpenPoller() (poller *Poller, err error) {
	poller = new(Poller)
	if poller.fd, err = unix.Kqueue(); err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(poller.fd)
	if _, err = unix.Kevent(poller.fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		_ = poller.Close()
		return nil, os.NewSyscallError("kevent add|clear", err)
	}
	poller.events = newEventList[unix.Kevent_t](InitPollEventsCap)
	return
}

// Close closes the poller.
func (p *Poller) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return os.NewSyscallError("close", err)
}

var note = []unix.Kevent_t{{
	Ident:  0,
	Filter: unix.EVFILT_USER,
	Fflags: unix.NOTE_TRIGGER,
}}

// Wakeup interrupts a blocked Poll, it may be called from any goroutine.
// Wakeups requested before the poller noticed the previous one are coalesced.
func (p *Poller) Wakeup() error {
	if !p.wakeupCall.CompareAndSwap(false, true) {
		return nil
	}
	for {
		_, err := unix.Kevent(p.fd, note, nil, nil)
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			// Changes are applied before EINTR is returned, trigger again anyway.
			continue
		}
		return os.NewSyscallError("kevent trigger", err)
	}
}

// Poll waits up to msec milliseconds for readiness, a negative msec blocks until
// something happens, and calls handler for every ready file descriptor.
// woken reports whether the poller got woken up by Wakeup in the meantime.
// An interrupted wait returns without events nor error.
func (p *Poller) Poll(msec int, handler PollEventHandler) (woken bool, err error) {
	var tsp *unix.Timespec
	if msec >= 0 {
		ts := unix.NsecToTimespec(int64(msec) * 1e6)
		tsp = &ts
	}

	el := p.events
	n, err := unix.Kevent(p.fd, nil, el.events, tsp)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, os.NewSyscallError("kevent wait", err)
	}

	for i := 0; i < n; i++ {
		ev := &el.events[i]
		if ev.Filter == unix.EVFILT_USER {
			woken = true
			continue
		}
		var io IOEvent
		switch ev.Filter {
		case unix.EVFILT_READ:
			io = EventRead
		case unix.EVFILT_WRITE:
			io = EventWrite
		}
		if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			io |= EventError
		}
		handler(int(ev.Ident), io)
	}
	if woken {
		p.wakeupCall.Store(false)
	}
	el.adjust(n)
	return
}

func (p *Poller) change(fd int, filter, flags int) error {
	var ev [1]unix.Kevent_t
	unix.SetKevent(&ev[0], fd, filter, flags)
	_, err := unix.Kevent(p.fd, ev[:], nil, nil)
	if err != nil && flags == unix.EV_DELETE && err == unix.ENOENT {
		// The filter was not registered.
		return nil
	}
	if err != nil {
		if flags == unix.EV_DELETE {
			return os.NewSyscallError("kevent delete", err)
		}
		return os.NewSyscallError("kevent add", err)
	}
	return nil
}

func (p *Poller) set(fd int, read, write bool) error {
	readFlags, writeFlags := unix.EV_DELETE, unix.EV_DELETE
	if read {
		readFlags = unix.EV_ADD
	}
	if write {
		writeFlags = unix.EV_ADD
	}
	if err := p.change(fd, unix.EVFILT_READ, readFlags); err != nil {
		return err
	}
	return p.change(fd, unix.EVFILT_WRITE, writeFlags)
}

// AddRead registers the given file-descriptor with readable event to the poller.
func (p *Poller) AddRead(fd int) error {
	return p.change(fd, unix.EVFILT_READ, unix.EV_ADD)
}

// AddWrite registers the given file-descriptor with writable event to the poller.
func (p *Poller) AddWrite(fd int) error {
	return p.change(fd, unix.EVFILT_WRITE, unix.EV_ADD)
}

// AddReadWrite registers the given file-descriptor with readable and writable events to the poller.
func (p *Poller) AddReadWrite(fd int) error {
	return p.set(fd, true, true)
}

// ModRead renews the given file-descriptor with readable event in the poller.
func (p *Poller) ModRead(fd int) error {
	return p.set(fd, true, false)
}

// ModWrite renews the given file-descriptor with writable event in the poller.
func (p *Poller) ModWrite(fd int) error {
	return p.set(fd, false, true)
}

// ModReadWrite renews the given file-descriptor with readable and writable events in the poller.
func (p *Poller) ModReadWrite(fd int) error {
	return p.set(fd, true, true)
}

// Delete removes the given file-descriptor from the poller.
func (p *Poller) Delete(fd int) error {
	return p.set(fd, false, false)
}
