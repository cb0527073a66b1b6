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
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/frame"
	"github.com/nanoev/nanoev/pkg/netpoll"
	"github.com/nanoev/nanoev/pkg/pool/bytebuffer"
)

func listenLocal(t *testing.T, l *Loop) (*Event, int) {
	t.Helper()
	listener := newTestEvent(t, EventTCP, l)
	require.NoError(t, listener.Listen("127.0.0.1", 0, 0))
	require.Equal(t, TCPListening, listener.State())
	ip, port, err := listener.Addr(true)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)
	require.NotZero(t, port)
	return listener, port
}

// writeAll resubmits the unwritten tail of buf until all of it went out.
func writeAll(ev *Event, buf []byte, done func(err error)) error {
	return ev.Write(buf, func(ev *Event, err error, buf []byte, n int) {
		if err == nil && n < len(buf) {
			err = writeAll(ev, buf[n:], done)
			if err == nil {
				return
			}
		}
		done(err)
	})
}

func TestEchoRoundTrip(t *testing.T) {
	l := newTestLoop(t)
	listener, port := listenLocal(t, l)
	client := newTestEvent(t, EventTCP, l)

	var serverSawEOF bool
	serverDec := frame.NewDecoder(nil, 0)
	var serverRead ReadCallback
	serverRead = func(conn *Event, err error, buf []byte, n int) {
		require.NoError(t, err)
		if n == 0 {
			serverSawEOF = true
			assert.NoError(t, conn.Free())
			return
		}
		done, err := serverDec.Advance(n)
		require.NoError(t, err)
		if !done {
			require.NoError(t, conn.Read(serverDec.Next(), serverRead))
			return
		}
		echo := append([]byte(nil), serverDec.Frame()...)
		require.NoError(t, writeAll(conn, echo, func(err error) {
			require.NoError(t, err)
			require.NoError(t, conn.Read(serverDec.Next(), serverRead))
		}))
	}
	require.NoError(t, listener.Accept(func(ev *Event, err error, conn *Event) {
		require.NoError(t, err)
		require.NotNil(t, conn)
		assert.Equal(t, "server-conn", conn.Userdata())
		assert.Equal(t, TCPEstablished, conn.State())
		_, localPort, err := conn.Addr(true)
		require.NoError(t, err)
		assert.Equal(t, port, localPort)
		require.NoError(t, conn.Read(serverDec.Next(), serverRead))
	}, "server-conn"))

	var (
		got       []byte
		responded bool
	)
	msg := []byte("Hello, Server!\x00")
	out := frame.Encode(msg)
	defer bytebuffer.Put(out)
	clientDec := frame.NewDecoder(nil, 0)
	var clientRead ReadCallback
	clientRead = func(ev *Event, err error, buf []byte, n int) {
		require.NoError(t, err)
		require.NotZero(t, n)
		done, err := clientDec.Advance(n)
		require.NoError(t, err)
		if !done {
			require.NoError(t, ev.Read(clientDec.Next(), clientRead))
			return
		}
		got = append([]byte(nil), clientDec.Body()...)
		responded = true
		assert.NoError(t, ev.Free())
		assert.NoError(t, listener.Free())
	}
	require.NoError(t, client.Connect("127.0.0.1", port, func(ev *Event, err error) {
		require.NoError(t, err)
		assert.Equal(t, TCPEstablished, ev.State())
		_, peerPort, err := ev.Addr(false)
		require.NoError(t, err)
		assert.Equal(t, port, peerPort)
		require.NoError(t, writeAll(ev, out.B, func(err error) {
			require.NoError(t, err)
		}))
		require.NoError(t, ev.Read(clientDec.Next(), clientRead))
	}))
	assert.Equal(t, TCPConnecting, client.State())

	runLoop(t, l)
	require.True(t, responded)
	assert.Equal(t, msg, got)
	assert.Len(t, out.B, 19)
	assert.True(t, serverSawEOF)
}

func TestPartialWrite(t *testing.T) {
	l := newTestLoop(t, WithSocketSendBuffer(4096), WithSocketRecvBuffer(4096))
	listener, port := listenLocal(t, l)
	client := newTestEvent(t, EventTCP, l)

	var (
		accepted *Event
		written  = -1
	)
	finish := func() {
		if accepted == nil || written < 0 {
			return
		}
		assert.NoError(t, accepted.Free())
		assert.NoError(t, client.Free())
		assert.NoError(t, listener.Free())
	}
	require.NoError(t, listener.Accept(func(_ *Event, err error, conn *Event) {
		require.NoError(t, err)
		accepted = conn
		finish()
	}, nil))

	big := make([]byte, 8<<20)
	require.NoError(t, client.Connect("127.0.0.1", port, func(ev *Event, err error) {
		require.NoError(t, err)
		require.NoError(t, ev.Write(big, func(_ *Event, err error, buf []byte, n int) {
			require.NoError(t, err)
			assert.Len(t, buf, len(big))
			written = n
			finish()
		}))
		assert.ErrorIs(t, ev.Write(big, func(*Event, error, []byte, int) {}), errorx.ErrBusy)
	}))

	runLoop(t, l)
	assert.Greater(t, written, 0)
	assert.Less(t, written, len(big))
}

func TestConnectRefused(t *testing.T) {
	l := newTestLoop(t)
	listener, port := listenLocal(t, l)
	// Nobody listens on port anymore.
	require.NoError(t, listener.Free())

	client := newTestEvent(t, EventTCP, l)
	var called bool
	require.NoError(t, client.Connect("127.0.0.1", port, func(ev *Event, err error) {
		called = true
		assert.ErrorIs(t, err, unix.ECONNREFUSED)
		assert.Equal(t, errorx.StatusFail, errorx.StatusOf(err))
		assert.Equal(t, TCPIdle, ev.State())
		assert.Equal(t, err, ev.Err())
	}))
	runLoop(t, l)
	assert.True(t, called)

	// The event may be reused after a failed attempt.
	assert.Equal(t, TCPIdle, client.State())
	require.NoError(t, client.Free())
}

func TestConnectInvalidAddress(t *testing.T) {
	l := newTestLoop(t)
	client := newTestEvent(t, EventTCP, l)

	var called bool
	require.NoError(t, client.Connect("not-an-ip", 80, func(ev *Event, err error) {
		called = true
		assert.ErrorIs(t, err, errorx.ErrInvalidAddress)
		assert.Equal(t, errorx.StatusInvalidArg, errorx.StatusOf(err))
	}))
	// Reported on the next cycle, not synchronously.
	assert.False(t, called)
	assert.ErrorIs(t, client.Connect("127.0.0.1", 80, func(*Event, error) {}), errorx.ErrInvalidState)

	runLoop(t, l)
	assert.True(t, called)
	require.NoError(t, client.Free())
}

func TestListenBusyPort(t *testing.T) {
	l := newTestLoop(t, WithReuseAddr(false))
	first, port := listenLocal(t, l)

	second := newTestEvent(t, EventTCP, l)
	err := second.Listen("127.0.0.1", port, 0)
	assert.ErrorIs(t, err, unix.EADDRINUSE)
	assert.Equal(t, errorx.StatusFail, errorx.StatusOf(err))
	assert.Equal(t, TCPIdle, second.State())

	assert.ErrorIs(t, second.Listen("localhost", port, 0), errorx.ErrInvalidAddress)
	assert.ErrorIs(t, first.Listen("127.0.0.1", 0, 0), errorx.ErrInvalidState)

	require.NoError(t, first.Free())
	require.NoError(t, second.Free())
}

func TestSubmissionErrors(t *testing.T) {
	l := newTestLoop(t)
	listener, _ := listenLocal(t, l)
	idle := newTestEvent(t, EventTCP, l)

	noopRead := func(*Event, error, []byte, int) {}
	noopAccept := func(*Event, error, *Event) {}

	assert.ErrorIs(t, idle.Read(make([]byte, 8), noopRead), errorx.ErrInvalidState)
	assert.ErrorIs(t, idle.Write([]byte("x"), noopRead), errorx.ErrInvalidState)
	assert.ErrorIs(t, idle.Accept(noopAccept, nil), errorx.ErrInvalidState)
	assert.ErrorIs(t, idle.Read(nil, noopRead), errorx.ErrEmptyBuffer)
	assert.ErrorIs(t, idle.Write(nil, noopRead), errorx.ErrEmptyBuffer)
	assert.ErrorIs(t, idle.Read(make([]byte, 8), nil), errorx.ErrNilCallback)
	assert.ErrorIs(t, idle.Connect("127.0.0.1", 80, nil), errorx.ErrNilCallback)
	assert.ErrorIs(t, listener.Accept(nil, nil), errorx.ErrNilCallback)
	_, _, err := idle.Addr(true)
	assert.ErrorIs(t, err, errorx.ErrInvalidState)

	require.NoError(t, listener.Accept(noopAccept, nil))
	assert.ErrorIs(t, listener.Accept(noopAccept, nil), errorx.ErrBusy)
	assert.ErrorIs(t, listener.Read(make([]byte, 8), noopRead), errorx.ErrInvalidState)

	logger := new(recordLogger)
	l.logger = logger
	// The pending accept is dropped along with the listener.
	require.NoError(t, listener.Free())
	assert.Equal(t, 1, logger.count())
	assert.ErrorIs(t, listener.Accept(noopAccept, nil), errorx.ErrEventFreed)
	require.NoError(t, idle.Free())
	runLoop(t, l)
}

func TestCloseCompletesPendingWithErrClosed(t *testing.T) {
	l := newTestLoop(t)
	listener, port := listenLocal(t, l)
	client := newTestEvent(t, EventTCP, l)

	var closedRead bool
	require.NoError(t, listener.Accept(func(ev *Event, err error, conn *Event) {
		require.NoError(t, err)
		assert.NoError(t, ev.Free())

		inCall := true
		require.NoError(t, conn.Read(make([]byte, 16), func(conn *Event, err error, _ []byte, n int) {
			assert.False(t, inCall, "completion delivered from Close")
			assert.ErrorIs(t, err, errorx.ErrClosed)
			assert.Equal(t, errorx.StatusFail, errorx.StatusOf(err))
			assert.Zero(t, n)
			closedRead = true
			assert.NoError(t, conn.Free())
			assert.NoError(t, client.Free())
		}))
		require.NoError(t, conn.Close())
		inCall = false
		assert.Equal(t, TCPClosed, conn.State())
		assert.NoError(t, conn.Close())
		assert.ErrorIs(t, conn.Read(make([]byte, 16), func(*Event, error, []byte, int) {}), errorx.ErrInvalidState)
	}, nil))
	require.NoError(t, client.Connect("127.0.0.1", port, func(_ *Event, err error) {
		assert.NoError(t, err)
	}))

	runLoop(t, l)
	assert.True(t, closedRead)
}

func TestCloseDropsCompletionOfFreedEvent(t *testing.T) {
	l := newTestLoop(t)
	listener, _ := listenLocal(t, l)
	require.NoError(t, listener.Accept(func(*Event, error, *Event) {
		t.Error("completion of a freed event delivered")
	}, nil))
	require.NoError(t, listener.Close())
	require.NoError(t, listener.Free())
	runLoop(t, l)
}

func TestRunReturnsOnceDeferredCompletionFreesLastEvent(t *testing.T) {
	l := newTestLoop(t)
	client := newTestEvent(t, EventTCP, l)

	var called bool
	require.NoError(t, client.Connect("not-an-ip", 80, func(ev *Event, err error) {
		called = true
		assert.ErrorIs(t, err, errorx.ErrInvalidAddress)
		assert.NoError(t, ev.Free())
	}))

	start := time.Now()
	runLoop(t, l)
	assert.True(t, called)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTimerFromAcceptCallbackCountsFromPollReturn(t *testing.T) {
	const (
		dialDelay = 300 * time.Millisecond
		after     = 100 * time.Millisecond
	)
	l := newTestLoop(t)
	listener, port := listenLocal(t, l)
	timer := newTestEvent(t, EventTimer, l)

	var elapsed time.Duration
	require.NoError(t, listener.Accept(func(ev *Event, err error, conn *Event) {
		require.NoError(t, err)
		assert.NoError(t, conn.Free())
		assert.NoError(t, ev.Free())
		scheduled := time.Now()
		// The cached time got refreshed once the poll returned.
		assert.Less(t, scheduled.Sub(l.Now()), dialDelay/2)
		require.NoError(t, timer.AddTimer(after, func(tm *Event) {
			elapsed = time.Since(scheduled)
			assert.NoError(t, tm.Free())
		}))
	}, nil))

	dialed := make(chan net.Conn, 1)
	go func() {
		// Keeps the loop blocked in its poll for a while.
		time.Sleep(dialDelay)
		c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if assert.NoError(t, err) {
			dialed <- c
		}
		close(dialed)
	}()

	runLoop(t, l)
	for c := range dialed {
		_ = c.Close()
	}
	// Counted from the cached time, a hair before the callback ran.
	assert.GreaterOrEqual(t, elapsed, after-10*time.Millisecond)
}

func TestReadinessOfFreshlyAttachedSocketIgnored(t *testing.T) {
	l := newTestLoop(t)
	listener, port := listenLocal(t, l)
	client := newTestEvent(t, EventTCP, l)

	var connected bool
	require.NoError(t, client.Connect("127.0.0.1", port, func(ev *Event, err error) {
		require.NoError(t, err)
		connected = true
		assert.NoError(t, ev.Free())
	}))
	// Readiness reported before the socket got attached belongs to a former
	// owner of the descriptor.
	l.handleIO(client.tcp.fd, netpoll.EventWrite)
	assert.False(t, connected)
	assert.Equal(t, TCPConnecting, client.State())

	require.NoError(t, listener.Accept(func(ev *Event, err error, conn *Event) {
		require.NoError(t, err)
		assert.NoError(t, conn.Free())
		assert.NoError(t, ev.Free())
	}, nil))
	runLoop(t, l)
	assert.True(t, connected)
}

func TestConnectFailureLogsCloseError(t *testing.T) {
	logger := new(recordLogger)
	l := newTestLoop(t, WithLogger(logger))
	listener, port := listenLocal(t, l)
	client := newTestEvent(t, EventTCP, l)

	var got error
	require.NoError(t, client.Connect("127.0.0.1", port, func(_ *Event, err error) {
		got = err
	}))
	// Pull the descriptor away so that closing it fails.
	require.NoError(t, unix.Close(client.tcp.fd))
	l.completeConnect(client, errorx.ErrFail)

	assert.ErrorIs(t, got, errorx.ErrFail)
	assert.Equal(t, TCPIdle, client.State())
	assert.Equal(t, 1, logger.count())

	require.NoError(t, client.Free())
	require.NoError(t, listener.Free())
}
