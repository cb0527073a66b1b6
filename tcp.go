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
	"net"
	"os"

	"golang.org/x/sys/unix"

	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/socket"
)

type interest uint8

const (
	interestRead interest = 1 << iota
	interestWrite
)

type tcpEvent struct {
	fd    int
	state TCPState
	err   error

	local  *net.TCPAddr
	remote *net.TCPAddr

	// Poller interest currently registered for fd.
	registered bool
	interest   interest
	attachedAt uint64 // loop cycle fd got attached in

	connectCb      ConnectCallback
	acceptCb       AcceptCallback
	acceptUserdata any
	readBuf        []byte
	readCb         ReadCallback
	writeBuf       []byte
	writeCb        WriteCallback
}

func newTCPEvent() *tcpEvent {
	return &tcpEvent{fd: -1}
}

func (t *tcpEvent) pending() (n int) {
	if t.connectCb != nil {
		n++
	}
	if t.acceptCb != nil {
		n++
	}
	if t.readCb != nil {
		n++
	}
	if t.writeCb != nil {
		n++
	}
	return
}

// Connect starts connecting to ip:port. Arguments and state are checked right
// away, whereas any failure of the connection attempt itself, an invalid
// address included, is reported to cb.
func (e *Event) Connect(ip string, port int, cb ConnectCallback) error {
	if err := e.checkType(EventTCP); err != nil {
		return err
	}
	if cb == nil {
		return errorx.ErrNilCallback
	}
	t := e.tcp
	if t.state != TCPIdle {
		return errorx.ErrInvalidState
	}

	l := e.loop
	t.state = TCPConnecting
	t.connectCb = cb
	t.err = nil
	l.inflight++

	addr, err := socket.ParseTCPAddr(ip, port)
	if err == nil {
		var fd int
		if fd, _, err = socket.Connect(addr, l.connOpts...); err == nil {
			l.attach(e, fd)
			// Completes once the socket turns writable, which it does right away
			// when the connection got established synchronously.
			if err = l.syncInterest(e); err != nil {
				if derr := l.detach(e); derr != nil {
					l.logger.Warnf("failed to close socket: %v", derr)
				}
			}
		}
	}
	if err != nil {
		l.deferCompletion(func() {
			if e.freed || t.connectCb == nil {
				return
			}
			l.completeConnect(e, err)
		})
	}
	return nil
}

// Listen binds the socket to ip:port and starts listening, a non-positive
// backlog means the maximum the system allows.
func (e *Event) Listen(ip string, port, backlog int) error {
	if err := e.checkType(EventTCP); err != nil {
		return err
	}
	t := e.tcp
	if t.state != TCPIdle {
		return errorx.ErrInvalidState
	}
	addr, err := socket.ParseTCPAddr(ip, port)
	if err != nil {
		return err
	}

	l := e.loop
	fd, err := socket.Listen(addr, backlog, l.listenSockOpts()...)
	if err != nil {
		t.err = err
		return err
	}
	if t.local, err = socket.LocalAddr(fd); err != nil {
		_ = unix.Close(fd)
		t.err = err
		return err
	}
	t.state, t.err = TCPListening, nil
	l.attach(e, fd)
	return nil
}

// Accept waits for the next incoming connection, which will carry userdata.
func (e *Event) Accept(cb AcceptCallback, userdata any) error {
	if err := e.checkType(EventTCP); err != nil {
		return err
	}
	if cb == nil {
		return errorx.ErrNilCallback
	}
	t := e.tcp
	if t.state != TCPListening {
		return errorx.ErrInvalidState
	}
	if t.acceptCb != nil {
		return errorx.ErrBusy
	}
	t.acceptCb, t.acceptUserdata = cb, userdata
	return e.loop.submitted(e, func() { t.acceptCb, t.acceptUserdata = nil, nil })
}

// Write sends buf with a single non-blocking send once the socket is writable,
// cb reports how many bytes got through, the rest is up to the caller.
func (e *Event) Write(buf []byte, cb WriteCallback) error {
	if err := e.checkType(EventTCP); err != nil {
		return err
	}
	if cb == nil {
		return errorx.ErrNilCallback
	}
	if len(buf) == 0 {
		return errorx.ErrEmptyBuffer
	}
	t := e.tcp
	if t.state != TCPEstablished {
		return errorx.ErrInvalidState
	}
	if t.writeCb != nil {
		return errorx.ErrBusy
	}
	t.writeBuf, t.writeCb = buf, cb
	return e.loop.submitted(e, func() { t.writeBuf, t.writeCb = nil, nil })
}

// Read receives into buf once data is available.
func (e *Event) Read(buf []byte, cb ReadCallback) error {
	if err := e.checkType(EventTCP); err != nil {
		return err
	}
	if cb == nil {
		return errorx.ErrNilCallback
	}
	if len(buf) == 0 {
		return errorx.ErrEmptyBuffer
	}
	t := e.tcp
	if t.state != TCPEstablished {
		return errorx.ErrInvalidState
	}
	if t.readCb != nil {
		return errorx.ErrBusy
	}
	t.readBuf, t.readCb = buf, cb
	return e.loop.submitted(e, func() { t.readBuf, t.readCb = nil, nil })
}

// Addr returns the local or the remote address of the socket.
func (e *Event) Addr(local bool) (ip string, port int, err error) {
	if err = e.checkType(EventTCP); err != nil {
		return
	}
	addr := e.tcp.remote
	if local {
		addr = e.tcp.local
	}
	if addr == nil {
		return "", 0, errorx.ErrInvalidState
	}
	return addr.IP.String(), addr.Port, nil
}

// Err returns the last error the socket ran into, nil for other event types.
func (e *Event) Err() error {
	if e.typ != EventTCP {
		return nil
	}
	return e.tcp.err
}

// State returns the state of the TCP event, TCPIdle for other event types.
func (e *Event) State() TCPState {
	if e.typ != EventTCP {
		return TCPIdle
	}
	return e.tcp.state
}

// Close closes the socket. Pending operations complete with ErrClosed on the
// next cycle of the loop. A closed TCP event cannot be reused.
func (e *Event) Close() error {
	if err := e.checkType(EventTCP); err != nil {
		return err
	}
	t := e.tcp
	if t.state == TCPClosed {
		return nil
	}

	l := e.loop
	if cb := t.connectCb; cb != nil {
		l.deferCompletion(func() {
			if !e.freed {
				cb(e, errorx.ErrClosed)
			}
		})
	}
	if cb := t.acceptCb; cb != nil {
		l.deferCompletion(func() {
			if !e.freed {
				cb(e, errorx.ErrClosed, nil)
			}
		})
	}
	if cb, buf := t.readCb, t.readBuf; cb != nil {
		l.deferCompletion(func() {
			if !e.freed {
				cb(e, errorx.ErrClosed, buf, 0)
			}
		})
	}
	if cb, buf := t.writeCb, t.writeBuf; cb != nil {
		l.deferCompletion(func() {
			if !e.freed {
				cb(e, errorx.ErrClosed, buf, 0)
			}
		})
	}
	l.clearPending(e)
	err := l.detach(e)
	t.state = TCPClosed
	return err
}

// freeTCP releases the socket of e, dropping its pending operations silently.
func (l *Loop) freeTCP(e *Event) {
	if n := e.tcp.pending(); n > 0 {
		l.logger.Warnf("freeing a TCP event with %d pending operation(s), their callbacks are dropped", n)
	}
	l.clearPending(e)
	if err := l.detach(e); err != nil {
		l.logger.Warnf("failed to close socket: %v", err)
	}
}

func (l *Loop) clearPending(e *Event) {
	t := e.tcp
	l.inflight -= t.pending()
	t.connectCb = nil
	t.acceptCb, t.acceptUserdata = nil, nil
	t.readBuf, t.readCb = nil, nil
	t.writeBuf, t.writeCb = nil, nil
}

// attach makes e the owner of fd for readiness dispatch.
func (l *Loop) attach(e *Event, fd int) {
	e.tcp.fd, e.tcp.attachedAt = fd, l.cycle
	l.conns[fd] = e
}

// detach unregisters and closes the socket of e.
func (l *Loop) detach(e *Event) error {
	t := e.tcp
	if t.fd < 0 {
		return nil
	}
	if t.registered {
		_ = l.poller.Delete(t.fd)
		t.registered, t.interest = false, 0
	}
	delete(l.conns, t.fd)
	err := unix.Close(t.fd)
	t.fd = -1
	if err != nil {
		return errorx.Classify(os.NewSyscallError("close", err))
	}
	return nil
}

// submitted accounts for an operation just stored in its slot, undo empties the
// slot again should the poller refuse the socket.
func (l *Loop) submitted(e *Event, undo func()) error {
	l.inflight++
	if err := l.syncInterest(e); err != nil {
		undo()
		l.inflight--
		return err
	}
	return nil
}

// syncInterest registers the socket of e for the readiness its pending operations wait for:
// readable for a read or an accept, writable for a write or a connect.
func (l *Loop) syncInterest(e *Event) (err error) {
	t := e.tcp
	if t.fd < 0 {
		return nil
	}
	var want interest
	if t.readCb != nil || t.acceptCb != nil {
		want |= interestRead
	}
	if t.writeCb != nil || t.connectCb != nil {
		want |= interestWrite
	}

	switch {
	case want == 0:
		if t.registered {
			err = l.poller.Delete(t.fd)
			t.registered, t.interest = false, 0
		}
		return errorx.Classify(err)
	case !t.registered:
		switch want {
		case interestRead:
			err = l.poller.AddRead(t.fd)
		case interestWrite:
			err = l.poller.AddWrite(t.fd)
		default:
			err = l.poller.AddReadWrite(t.fd)
		}
	case t.interest != want:
		switch want {
		case interestRead:
			err = l.poller.ModRead(t.fd)
		case interestWrite:
			err = l.poller.ModWrite(t.fd)
		default:
			err = l.poller.ModReadWrite(t.fd)
		}
	default:
		return nil
	}
	if err != nil {
		return errorx.Classify(err)
	}
	t.registered, t.interest = true, want
	return nil
}
