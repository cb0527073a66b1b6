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
	errorx "github.com/nanoev/nanoev/pkg/errors"
)

// Event is a TCP socket, an async signal or a timer bound to a Loop.
// Apart from Send on async events and the plain accessors, its methods
// must be called on the goroutine owning the loop.
type Event struct {
	typ      EventType
	loop     *Loop
	userdata any
	freed    bool

	tcp   *tcpEvent
	async *asyncEvent
	timer *timerEvent
}

// NewEvent creates an event of the given type bound to loop.
func NewEvent(typ EventType, loop *Loop, userdata any) (*Event, error) {
	if loop == nil {
		return nil, errorx.ErrInvalidArg
	}
	if loop.closed {
		return nil, errorx.ErrLoopClosed
	}
	if err := loop.checkThread(); err != nil {
		return nil, err
	}

	e := &Event{typ: typ, loop: loop, userdata: userdata}
	switch typ {
	case EventTCP:
		e.tcp = newTCPEvent()
	case EventAsync:
		e.async = new(asyncEvent)
	case EventTimer:
		e.timer = newTimerEvent(e)
	default:
		return nil, errorx.ErrInvalidArg
	}
	loop.events++
	return e, nil
}

// Free destroys the event. A scheduled timer is cancelled, a queued async
// signal is dropped and a TCP socket is closed along with any pending
// operation, whose callback will never be invoked.
func (e *Event) Free() error {
	if err := e.check(); err != nil {
		return err
	}
	switch e.typ {
	case EventTCP:
		e.loop.freeTCP(e)
	case EventAsync:
		if e.async.started {
			e.async.started = false
			e.loop.asyncsStarted--
		}
	case EventTimer:
		e.loop.timers.Cancel(e.timer.node)
	}
	e.freed = true
	e.loop.events--
	return nil
}

// Type returns the variant of the event.
func (e *Event) Type() EventType {
	return e.typ
}

// Loop returns the loop the event is bound to.
func (e *Event) Loop() *Loop {
	return e.loop
}

// Userdata returns the data attached to the event.
func (e *Event) Userdata() any {
	return e.userdata
}

// SetUserdata replaces the data attached to the event.
func (e *Event) SetUserdata(userdata any) {
	e.userdata = userdata
}

func (e *Event) check() error {
	if e.freed {
		return errorx.ErrEventFreed
	}
	return e.loop.checkThread()
}

func (e *Event) checkType(typ EventType) error {
	if e.typ != typ {
		return errorx.ErrWrongEventType
	}
	return e.check()
}
