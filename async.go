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
)

type asyncEvent struct {
	pending atomic.Bool
	cb      AsyncCallback
	started bool
}

// Start binds cb to the async event, replacing the previous callback if any.
// A started async event keeps the loop running until it gets freed.
func (e *Event) Start(cb AsyncCallback) error {
	if err := e.checkType(EventAsync); err != nil {
		return err
	}
	if cb == nil {
		return errorx.ErrNilCallback
	}
	e.async.cb = cb
	if !e.async.started {
		e.async.started = true
		e.loop.asyncsStarted++
	}
	return nil
}

// Send asks the loop to run the callback of the async event, it may be called
// from any goroutine. Signals sent before the loop got around to the callback
// are coalesced into a single invocation. Send must not race with Free.
func (e *Event) Send() error {
	if e.typ != EventAsync {
		return errorx.ErrWrongEventType
	}
	if !e.async.pending.CompareAndSwap(false, true) {
		return nil
	}
	e.loop.asyncs.Enqueue(e)
	if err := e.loop.poller.Wakeup(); err != nil {
		return errorx.Classify(err)
	}
	return nil
}

// Pending tells whether a signal was sent and its callback has not run yet.
func (e *Event) Pending() bool {
	return e.typ == EventAsync && e.async.pending.Load()
}

// drainAsyncs runs the callbacks of the async events queued before the call.
func (l *Loop) drainAsyncs() {
	for n := l.asyncs.Length(); n > 0; n-- {
		e, ok := l.asyncs.Dequeue()
		if !ok {
			return
		}
		e.async.pending.Store(false)
		if e.freed {
			continue
		}
		if e.async.cb == nil {
			l.logger.Warnf("async event signaled before being started, signal dropped")
			continue
		}
		e.async.cb(e)
	}
}
