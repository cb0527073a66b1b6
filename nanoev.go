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
	"go.uber.org/atomic"

	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/logging"
	"github.com/nanoev/nanoev/pkg/netpoll"
)

var initialized atomic.Bool

// Init brings nanoev up, it must be called before creating any loop.
// It makes sure the readiness facility of the platform is usable.
func Init() error {
	if !initialized.CompareAndSwap(false, true) {
		return errorx.ErrAlreadyInitialized
	}
	poller, err := netpoll.OpenPoller()
	if err != nil {
		initialized.Store(false)
		return errorx.Classify(err)
	}
	if err = poller.Close(); err != nil {
		logging.Warnf("failed to close the probing poller: %v", err)
	}
	return nil
}

// Term tears nanoev down, flushing the default logger. Loops still open keep working.
func Term() {
	if initialized.CompareAndSwap(true, false) {
		_ = logging.Flush()
	}
}

// EventType tells the variant of an Event.
type EventType int

const (
	// EventUnknown is not a valid event type.
	EventUnknown EventType = iota
	// EventTCP is a TCP socket.
	EventTCP
	// EventAsync is a cross-goroutine wakeup signal.
	EventAsync
	// EventTimer is a one-shot timer.
	EventTimer
)

func (t EventType) String() string {
	switch t {
	case EventTCP:
		return "tcp"
	case EventAsync:
		return "async"
	case EventTimer:
		return "timer"
	}
	return "unknown"
}

// TCPState is the state of a TCP event.
type TCPState int

const (
	// TCPIdle is the state of a TCP event without socket.
	TCPIdle TCPState = iota
	// TCPConnecting means a connection is being established.
	TCPConnecting
	// TCPListening means the socket accepts connections.
	TCPListening
	// TCPEstablished means the socket is connected.
	TCPEstablished
	// TCPClosed means the socket got closed by Close.
	TCPClosed
)

func (s TCPState) String() string {
	switch s {
	case TCPIdle:
		return "idle"
	case TCPConnecting:
		return "connecting"
	case TCPListening:
		return "listening"
	case TCPEstablished:
		return "established"
	case TCPClosed:
		return "closed"
	}
	return "invalid"
}

type (
	// ConnectCallback reports the outcome of Connect.
	ConnectCallback func(ev *Event, err error)

	// AcceptCallback reports the outcome of Accept, conn is the accepted
	// connection, nil when err is not.
	AcceptCallback func(ev *Event, err error, conn *Event)

	// WriteCallback reports the outcome of Write, n bytes of buf got written.
	WriteCallback func(ev *Event, err error, buf []byte, n int)

	// ReadCallback reports the outcome of Read, n bytes were read into buf.
	// A nil err along with n == 0 means the peer shut the connection down.
	ReadCallback func(ev *Event, err error, buf []byte, n int)

	// AsyncCallback is run on the loop goroutine after Send.
	AsyncCallback func(ev *Event)

	// TimerCallback is run on the loop goroutine once the timer expires.
	TimerCallback func(ev *Event)
)
