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
	"time"

	"github.com/nanoev/nanoev/internal/timerheap"
	errorx "github.com/nanoev/nanoev/pkg/errors"
)

type timerEvent struct {
	node *timerheap.Node
	cb   TimerCallback
}

func newTimerEvent(e *Event) *timerEvent {
	t := new(timerEvent)
	t.node = timerheap.NewNode(func() {
		if !e.freed && t.cb != nil {
			t.cb(e)
		}
	})
	return t
}

// AddTimer schedules the timer to expire after the given duration, counted from
// the loop's cached time. The timer must not be scheduled already, a timer fires
// once and may be scheduled again from its own callback.
func (e *Event) AddTimer(after time.Duration, cb TimerCallback) error {
	if err := e.checkType(EventTimer); err != nil {
		return err
	}
	if cb == nil {
		return errorx.ErrNilCallback
	}
	if e.timer.node.Scheduled() {
		return errorx.ErrTimerScheduled
	}
	if !e.loop.running.Load() {
		e.loop.UpdateNow()
	}
	if after < 0 {
		after = 0
	}
	e.timer.cb = cb
	return e.loop.timers.Schedule(e.timer.node, e.loop.now.Add(after))
}

// DelTimer cancels the timer, it does nothing if the timer is not scheduled.
func (e *Event) DelTimer() error {
	if err := e.checkType(EventTimer); err != nil {
		return err
	}
	e.loop.timers.Cancel(e.timer.node)
	return nil
}

// TimerPending tells whether the timer is scheduled.
func (e *Event) TimerPending() bool {
	return e.typ == EventTimer && e.timer.node.Scheduled()
}
