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

//go:build linux

package netpoll

import (
	"os"
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI
	writeEvents = unix.EPOLLOUT
	errEvents   = unix.EPOLLERR | unix.EPOLLHUP
)

// Poller monitors file descriptors with epoll, an eventfd serves the wakeups.
type Poller struct {
	fd         int    // epoll fd
	efd        int    // eventfd
	efdBuf     []byte // efd buffer to read an 8-byte integer
	wakeupCall atomic.Bool
	events     *eventList[unix.EpollEvent]
}

// OpenPoller instantiates a poller.
func OpenPoller() (poller *Poller, err error) {
	poller = &Poller{fd: -1, efd: -1}
	if poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	if poller.efd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		_ = poller.Close()
		return nil, os.NewSyscallError("eventfd", err)
	}
	poller.efdBuf = make([]byte, 8)
	if err = poller.AddRead(poller.efd); err != nil {
		_ = poller.Close()
		return nil, err
	}
	poller.events = newEventList[unix.EpollEvent](InitPollEventsCap)
	return
}

// Close closes the poller.
func (p *Poller) Close() (err error) {
	if p.efd >= 0 {
		err = multierr.Append(err, os.NewSyscallError("close", unix.Close(p.efd)))
		p.efd = -1
	}
	if p.fd >= 0 {
		err = multierr.Append(err, os.NewSyscallError("close", unix.Close(p.fd)))
		p.fd = -1
	}
	return
}

// Make the endianness of bytes compatible with more linux OSs under different processor-architectures,
// according to http://man7.org/linux/man-pages/man2/eventfd.2.html.
var (
	u uint64 = 1
	b        = (*(*[8]byte)(unsafe.Pointer(&u)))[:]
)

// Wakeup interrupts a blocked Poll, it may be called from any goroutine.
// Wakeups requested before the poller noticed the previous one are coalesced.
func (p *Poller) Wakeup() (err error) {
	if !p.wakeupCall.CompareAndSwap(false, true) {
		return nil
	}
	for {
		_, err = unix.Write(p.efd, b)
		if err == unix.EAGAIN {
			_, _ = unix.Read(p.efd, p.efdBuf)
			continue
		}
		break
	}
	return os.NewSyscallError("write", err)
}

// Poll waits up to msec milliseconds for readiness, a negative msec blocks until
// something happens, and calls handler for every ready file descriptor.
// woken reports whether the poller got woken up by Wakeup in the meantime.
// An interrupted wait returns without events nor error.
func (p *Poller) Poll(msec int, handler PollEventHandler) (woken bool, err error) {
	el := p.events
	n, err := unix.EpollWait(p.fd, el.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, os.NewSyscallError("epoll_wait", err)
	}

	for i := 0; i < n; i++ {
		ev := &el.events[i]
		fd := int(ev.Fd)
		if fd == p.efd {
			_, _ = unix.Read(p.efd, p.efdBuf)
			woken = true
			continue
		}
		var io IOEvent
		if ev.Events&readEvents != 0 {
			io |= EventRead
		}
		if ev.Events&writeEvents != 0 {
			io |= EventWrite
		}
		if ev.Events&errEvents != 0 {
			io |= EventError
		}
		handler(fd, io)
	}
	if woken {
		// Reset after the eventfd got drained, so that a Wakeup racing with
		// the caller draining its own queues writes the eventfd again.
		p.wakeupCall.Store(false)
	}
	el.adjust(n)
	return
}

func (p *Poller) ctl(op, fd int, events uint32) error {
	var name string
	switch op {
	case unix.EPOLL_CTL_ADD:
		name = "epoll_ctl add"
	case unix.EPOLL_CTL_MOD:
		name = "epoll_ctl mod"
	default:
		name = "epoll_ctl del"
	}
	return os.NewSyscallError(name, unix.EpollCtl(p.fd, op, fd, &unix.EpollEvent{Fd: int32(fd), Events: events}))
}

// AddRead registers the given file-descriptor with readable event to the poller.
func (p *Poller) AddRead(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, readEvents)
}

// AddWrite registers the given file-descriptor with writable event to the poller.
func (p *Poller) AddWrite(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, writeEvents)
}

// AddReadWrite registers the given file-descriptor with readable and writable events to the poller.
func (p *Poller) AddReadWrite(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, readEvents|writeEvents)
}

// ModRead renews the given file-descriptor with readable event in the poller.
func (p *Poller) ModRead(fd int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, readEvents)
}

// ModWrite renews the given file-descriptor with writable event in the poller.
func (p *Poller) ModWrite(fd int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, writeEvents)
}

// ModReadWrite renews the given file-descriptor with readable and writable events in the poller.
func (p *Poller) ModReadWrite(fd int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, readEvents|writeEvents)
}

// Delete removes the given file-descriptor from the poller.
func (p *Poller) Delete(fd int) error {
	return p.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}
