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
	"runtime"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/nanoev/nanoev/internal/queue"
	"github.com/nanoev/nanoev/internal/timerheap"
	"github.com/nanoev/nanoev/internal/toolkit"
	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/logging"
	"github.com/nanoev/nanoev/pkg/netpoll"
	"github.com/nanoev/nanoev/pkg/socket"
)

// Loop is an event loop, driven by the goroutine calling Run.
type Loop struct {
	poller   *netpoll.Poller         // epoll or kqueue
	timers   *timerheap.Heap         // scheduled timer events
	asyncs   *queue.Queue[*Event]    // signaled async events, fed by any goroutine
	conns    map[int]*Event          // TCP events by socket
	deferred []func()                // completions waiting for the next cycle
	spare    []func()                // recycled deferred list
	opts     *Options                // loop and socket options
	connOpts []socket.Option         // applied to connected and accepted sockets
	logger   logging.Logger          // logger of the loop
	flush    logging.Flusher         // flushes logger if the loop created it
	userdata any                     // opaque data of the caller
	now      time.Time               // cached time, refreshed every cycle
	cycle    uint64                  // number of polls so far
	polled   bool                    // now predates the current readiness batch

	owner    atomic.Uint64 // goroutine allowed to touch the loop
	running  atomic.Bool
	breaking atomic.Bool
	closed   bool

	events        int // events created and not freed yet
	inflight      int // TCP operations pending
	asyncsStarted int // async events started and not freed yet
}

// NewLoop creates a loop owned by the calling goroutine until Run is called.
func NewLoop(userdata any, opts ...Option) (*Loop, error) {
	if !initialized.Load() {
		return nil, errorx.ErrNotInitialized
	}

	options := loadOptions(opts...)
	poller, err := netpoll.OpenPoller()
	if err != nil {
		return nil, errorx.Classify(err)
	}

	l := &Loop{
		poller:   poller,
		timers:   timerheap.New(options.MaxTimers),
		asyncs:   queue.New[*Event](),
		conns:    make(map[int]*Event),
		opts:     options,
		userdata: userdata,
		now:      time.Now(),
	}
	l.logger = options.Logger
	if l.logger == nil && options.LogPath != "" {
		if l.logger, l.flush, err = logging.NewFileLogger(options.LogPath, options.LogLevel); err != nil {
			_ = poller.Close()
			return nil, errorx.Classify(err)
		}
	}
	if l.logger == nil {
		l.logger = logging.Default()
	}
	l.connOpts = connSockOpts(options)
	l.owner.Store(toolkit.GoroutineID())
	return l, nil
}

func connSockOpts(opts *Options) []socket.Option {
	var sockOpts []socket.Option
	if opts.TCPNoDelay == TCPNoDelay {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetNoDelay, Opt: 1})
	}
	if opts.TCPKeepAlive > 0 {
		secs := int(opts.TCPKeepAlive / time.Second)
		if secs == 0 {
			secs = 1
		}
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetKeepAlivePeriod, Opt: secs})
	}
	if opts.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetRecvBuffer, Opt: opts.SocketRecvBuffer})
	}
	if opts.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetSendBuffer, Opt: opts.SocketSendBuffer})
	}
	return sockOpts
}

func (l *Loop) listenSockOpts() []socket.Option {
	var sockOpts []socket.Option
	if l.opts.ReuseAddr {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetReuseAddr, Opt: 1})
	}
	if l.opts.ReusePort {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetReuseport, Opt: 1})
	}
	// Accepted sockets inherit the buffer sizes of the listener.
	if l.opts.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetRecvBuffer, Opt: l.opts.SocketRecvBuffer})
	}
	if l.opts.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetSendBuffer, Opt: l.opts.SocketSendBuffer})
	}
	return sockOpts
}

// Run drives the loop on the calling goroutine, which becomes the owner of the loop.
// It returns once Break got called or, unless RunUntilBreak is set, once nothing
// keeps the loop alive anymore: no pending TCP operation, no scheduled timer,
// no started async event and no queued completion.
func (l *Loop) Run() error {
	if l.closed {
		return errorx.ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return errorx.ErrLoopRunning
	}
	defer l.running.Store(false)
	defer l.breaking.Store(false)

	if l.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	l.owner.Store(toolkit.GoroutineID())

	l.logger.Debugf("event-loop is running")
	defer l.logger.Debugf("event-loop exits")

	for {
		l.runDeferred()

		l.UpdateNow()
		timeout := l.timers.TimeToNextDeadline(l.now)
		if len(l.deferred) > 0 || !l.asyncs.IsEmpty() || l.breaking.Load() ||
			(!l.opts.RunUntilBreak && !l.alive()) {
			timeout = 0
		}
		l.cycle++
		l.polled = true
		if _, err := l.poller.Poll(timeout, l.handleIO); err != nil {
			l.logger.Errorf("error occurs in event-loop: %v", err)
			return errorx.Classify(err)
		}

		l.UpdateNow()
		l.timers.FireDue(l.now)

		l.drainAsyncs()

		if l.breaking.Load() {
			return nil
		}
		if !l.opts.RunUntilBreak && !l.alive() {
			return nil
		}
	}
}

func (l *Loop) alive() bool {
	return l.inflight > 0 ||
		l.timers.Len() > 0 ||
		l.asyncsStarted > 0 ||
		len(l.deferred) > 0 ||
		!l.asyncs.IsEmpty()
}

// deferCompletion queues fn to run on the next cycle, before any readiness gets dispatched.
func (l *Loop) deferCompletion(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// runDeferred runs the completions queued so far, those queued meanwhile wait for the next cycle.
func (l *Loop) runDeferred() {
	if len(l.deferred) == 0 {
		return
	}
	batch := l.deferred
	l.deferred = l.spare[:0]
	for i, fn := range batch {
		batch[i] = nil
		fn()
	}
	l.spare = batch[:0]
}

// Break makes Run return at the end of its current cycle, it may be called from any goroutine.
func (l *Loop) Break() {
	l.breaking.Store(true)
	if l.running.Load() {
		if err := l.poller.Wakeup(); err != nil {
			l.logger.Errorf("failed to wake up the event-loop: %v", err)
		}
	}
}

// Close releases the loop. It fails with ErrLoopRunning while Run is in progress
// and with ErrLoopBusy as long as events bound to the loop are not freed.
func (l *Loop) Close() (err error) {
	if l.running.Load() {
		return errorx.ErrLoopRunning
	}
	if l.closed {
		return nil
	}
	if l.events > 0 {
		return errorx.ErrLoopBusy
	}
	l.closed = true
	err = multierr.Append(err, l.poller.Close())
	if l.flush != nil {
		err = multierr.Append(err, l.flush())
	}
	return
}

// Userdata returns the data attached to the loop.
func (l *Loop) Userdata() any {
	return l.userdata
}

// Now returns the cached time, refreshed at the start of every cycle and once the poll returns.
func (l *Loop) Now() time.Time {
	return l.now
}

// UpdateNow refreshes the cached time.
func (l *Loop) UpdateNow() {
	l.now = time.Now()
}

// Logger returns the logger of the loop.
func (l *Loop) Logger() logging.Logger {
	return l.logger
}

func (l *Loop) checkThread() error {
	if l.opts.ThreadCheck && l.owner.Load() != toolkit.GoroutineID() {
		return errorx.ErrNotInLoopThread
	}
	return nil
}
