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

package nanoev

import (
	"time"

	"github.com/nanoev/nanoev/pkg/logging"
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{
		ThreadCheck: true,
		TCPNoDelay:  TCPNoDelay,
		ReuseAddr:   true,
	}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// TCPSocketOpt is the type of TCP socket options.
type TCPSocketOpt int

// Available TCP socket options.
const (
	TCPNoDelay TCPSocketOpt = iota
	TCPDelay
)

// Options are configurations of a loop and of the sockets it creates.
type Options struct {
	// ================================== Options for the loop ==================================

	// LockOSThread pins the goroutine calling Run to its OS thread until Run returns.
	LockOSThread bool

	// ThreadCheck makes loop-affine operations fail with ErrNotInLoopThread when called
	// from a goroutine other than the one owning the loop. It is on by default, turning it
	// off saves the cost of identifying the calling goroutine.
	ThreadCheck bool

	// RunUntilBreak keeps Run polling after every event went idle, Run then returns
	// only once Break is called.
	RunUntilBreak bool

	// MaxTimers caps the number of timers scheduled at once, AddTimer fails with
	// ErrOutOfMemory beyond it. Zero means no limit.
	MaxTimers int

	// Logger is the customized logger for logging info, if it is not set,
	// then the loop uses the default logger powered by go.uber.org/zap.
	Logger logging.Logger

	// LogPath is the local path where logs will be written, this is the easiest way to set up logging,
	// the loop instantiates a default uber-go/zap logger with this given log path, you are also allowed to employ
	// your own logger during the lifetime by implementing the following logging.Logger interface.
	//
	// Note that this option can be overridden by the option Logger.
	LogPath string

	// LogLevel indicates the logging level, it should be used along with LogPath.
	LogLevel logging.Level

	// ============================= Options for connected and accepted sockets =============================

	// TCPNoDelay controls whether the operating system should delay
	// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
	//
	// The default is true (no delay), meaning that data is sent
	// as soon as possible after a write operation.
	TCPNoDelay TCPSocketOpt

	// TCPKeepAlive sets up a duration for (SO_KEEPALIVE) socket option.
	TCPKeepAlive time.Duration

	// SocketRecvBuffer sets the maximum socket receive buffer in bytes.
	SocketRecvBuffer int

	// SocketSendBuffer sets the maximum socket send buffer in bytes.
	SocketSendBuffer int

	// ================================== Options for listeners ==================================

	// ReuseAddr indicates whether to set up the SO_REUSEADDR socket option, on by default.
	ReuseAddr bool

	// ReusePort indicates whether to set up the SO_REUSEPORT socket option.
	ReusePort bool
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithLockOSThread sets up LockOSThread mode for the loop goroutine.
func WithLockOSThread(lockOSThread bool) Option {
	return func(opts *Options) {
		opts.LockOSThread = lockOSThread
	}
}

// WithThreadCheck turns the owning goroutine check on or off.
func WithThreadCheck(check bool) Option {
	return func(opts *Options) {
		opts.ThreadCheck = check
	}
}

// WithRunUntilBreak keeps Run going until Break even when nothing is pending.
func WithRunUntilBreak(untilBreak bool) Option {
	return func(opts *Options) {
		opts.RunUntilBreak = untilBreak
	}
}

// WithMaxTimers caps the number of timers scheduled at once.
func WithMaxTimers(n int) Option {
	return func(opts *Options) {
		opts.MaxTimers = n
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithLogPath sets up a local log path.
func WithLogPath(fileName string) Option {
	return func(opts *Options) {
		opts.LogPath = fileName
	}
}

// WithLogLevel sets up the logging level.
func WithLogLevel(lvl logging.Level) Option {
	return func(opts *Options) {
		opts.LogLevel = lvl
	}
}

// WithTCPNoDelay enable/disable the TCP_NODELAY socket option.
func WithTCPNoDelay(tcpNoDelay TCPSocketOpt) Option {
	return func(opts *Options) {
		opts.TCPNoDelay = tcpNoDelay
	}
}

// WithTCPKeepAlive sets up the SO_KEEPALIVE socket option with duration.
func WithTCPKeepAlive(tcpKeepAlive time.Duration) Option {
	return func(opts *Options) {
		opts.TCPKeepAlive = tcpKeepAlive
	}
}

// WithSocketRecvBuffer sets the maximum socket receive buffer in bytes.
func WithSocketRecvBuffer(recvBuf int) Option {
	return func(opts *Options) {
		opts.SocketRecvBuffer = recvBuf
	}
}

// WithSocketSendBuffer sets the maximum socket send buffer in bytes.
func WithSocketSendBuffer(sendBuf int) Option {
	return func(opts *Options) {
		opts.SocketSendBuffer = sendBuf
	}
}

// WithReuseAddr sets up SO_REUSEADDR socket option.
func WithReuseAddr(reuseAddr bool) Option {
	return func(opts *Options) {
		opts.ReuseAddr = reuseAddr
	}
}

// WithReusePort sets up SO_REUSEPORT socket option.
func WithReusePort(reusePort bool) Option {
	return func(opts *Options) {
		opts.ReusePort = reusePort
	}
}
