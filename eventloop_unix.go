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

package nanoev

import (
	"os"

	"golang.org/x/sys/unix"

	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/netpoll"
	"github.com/nanoev/nanoev/pkg/socket"
)

// handleIO resolves the operations of the socket fd that ev made ready.
func (l *Loop) handleIO(fd int, ev netpoll.IOEvent) {
	if l.polled {
		// Callbacks below schedule timers against the time the poll returned.
		l.UpdateNow()
		l.polled = false
	}
	e := l.conns[fd]
	if e == nil {
		// Closed earlier in this very batch.
		return
	}
	t := e.tcp
	if t.attachedAt == l.cycle {
		// fd got closed and reused by a callback of this batch, the readiness
		// belongs to the previous socket.
		return
	}

	switch t.state {
	case TCPConnecting:
		if t.connectCb != nil && (ev.IsWritable() || ev.IsError()) {
			err := socket.SocketError(fd)
			if err == nil && !ev.IsWritable() {
				return
			}
			if err != nil {
				err = errorx.Classify(os.NewSyscallError("connect", err))
			}
			l.completeConnect(e, err)
		}
	case TCPListening:
		if t.acceptCb != nil && (ev.IsReadable() || ev.IsError()) {
			l.accept(e)
		}
	case TCPEstablished:
		if t.readCb != nil && (ev.IsReadable() || ev.IsError()) {
			l.read(e, ev.IsError())
			// The callback may have freed or closed the event.
			if e.freed || t.fd != fd {
				return
			}
		}
		if t.writeCb != nil && (ev.IsWritable() || ev.IsError()) {
			l.write(e, ev.IsError())
		}
	}
}

// completeConnect resolves the pending connect of e with err, already classified.
func (l *Loop) completeConnect(e *Event, err error) {
	t := e.tcp
	cb := t.connectCb
	t.connectCb = nil
	l.inflight--

	if err == nil {
		t.state = TCPEstablished
		t.local, _ = socket.LocalAddr(t.fd)
		t.remote, _ = socket.PeerAddr(t.fd)
	} else {
		t.err = err
		t.state = TCPIdle
		if derr := l.detach(e); derr != nil {
			l.logger.Warnf("failed to close socket after connect failure: %v", derr)
		}
	}
	cb(e, err)
	l.resync(e)
}

func (l *Loop) accept(e *Event) {
	t := e.tcp
	nfd, raddr, err := socket.Accept(t.fd)
	switch err {
	case nil:
	case unix.EAGAIN, unix.EINTR, unix.ECONNABORTED:
		// Spurious readiness or a connection reset while queued, keep waiting.
		return
	default:
		err = errorx.Classify(os.NewSyscallError("accept", err))
		t.err = err
		cb := t.acceptCb
		t.acceptCb, t.acceptUserdata = nil, nil
		l.inflight--
		cb(e, err, nil)
		l.resync(e)
		return
	}

	cb, userdata := t.acceptCb, t.acceptUserdata
	t.acceptCb, t.acceptUserdata = nil, nil
	l.inflight--

	if err = socket.SetOptions(nfd, l.connOpts...); err != nil {
		l.logger.Warnf("failed to set options on accepted socket: %v", err)
	}
	conn := &Event{typ: EventTCP, loop: l, userdata: userdata, tcp: newTCPEvent()}
	ct := conn.tcp
	ct.state, ct.remote = TCPEstablished, raddr
	ct.local, _ = socket.LocalAddr(nfd)
	l.attach(conn, nfd)
	l.events++

	cb(e, nil, conn)
	l.resync(e)
}

// ioError tells what to report when a read or a write would block: nothing
// unless the socket is in error, in which case the pending socket error.
func ioError(fd int, isErrEvent bool) error {
	if !isErrEvent {
		return nil
	}
	return socket.SocketError(fd)
}

func (l *Loop) read(e *Event, isErrEvent bool) {
	t := e.tcp
	var (
		n   int
		err error
	)
	for {
		n, err = unix.Read(t.fd, t.readBuf)
		if err != unix.EINTR {
			break
		}
	}
	if err == unix.EAGAIN {
		if err = ioError(t.fd, isErrEvent); err == nil {
			return
		}
	}

	cb, buf := t.readCb, t.readBuf
	t.readBuf, t.readCb = nil, nil
	l.inflight--
	if err != nil {
		n = 0
		err = errorx.Classify(os.NewSyscallError("read", err))
		t.err = err
	}
	cb(e, err, buf, n)
	l.resync(e)
}

func (l *Loop) write(e *Event, isErrEvent bool) {
	t := e.tcp
	var (
		n   int
		err error
	)
	for {
		n, err = unix.Write(t.fd, t.writeBuf)
		if err != unix.EINTR {
			break
		}
	}
	if err == unix.EAGAIN {
		if err = ioError(t.fd, isErrEvent); err == nil {
			return
		}
	}

	cb, buf := t.writeCb, t.writeBuf
	t.writeBuf, t.writeCb = nil, nil
	l.inflight--
	if err != nil {
		n = 0
		err = errorx.Classify(os.NewSyscallError("write", err))
		t.err = err
	}
	cb(e, err, buf, n)
	l.resync(e)
}

// resync drops the interest nobody waits for anymore, unless the event went away.
func (l *Loop) resync(e *Event) {
	if e.freed || e.tcp.fd < 0 {
		return
	}
	if err := l.syncInterest(e); err != nil {
		l.logger.Errorf("failed to update poller interest of fd %d: %v", e.tcp.fd, err)
	}
}
