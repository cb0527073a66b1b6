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

// Package errors defines the errors and status codes reported by nanoev.
//
// Every fallible operation in nanoev communicates one of five statuses:
// success, invalid argument, access denied, generic failure and out of memory.
// The sentinel errors below carry those statuses; more specific errors wrap
// one of them, so errors.Is(err, ErrInvalidArg) holds for every caller-contract
// violation and StatusOf can map any returned error back to its status.
package errors

import (
	"errors"
	"fmt"
	"syscall"
)

// Status is the boundary status code of an operation.
type Status int

const (
	// StatusSuccess means the operation succeeded.
	StatusSuccess Status = iota
	// StatusInvalidArg means the caller violated the contract of the operation.
	StatusInvalidArg
	// StatusAccessDenied means the operating system refused the operation for lack of privilege.
	StatusAccessDenied
	// StatusFail is a generic failure, transport errors included.
	StatusFail
	// StatusOutOfMemory means some storage could not grow.
	StatusOutOfMemory
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidArg:
		return "invalid argument"
	case StatusAccessDenied:
		return "access denied"
	case StatusFail:
		return "failure"
	case StatusOutOfMemory:
		return "out of memory"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

var (
	// ErrInvalidArg occurs when an argument or the state of an event does not allow the operation.
	ErrInvalidArg = errors.New("nanoev: invalid argument")
	// ErrAccessDenied occurs when the operating system denies the operation.
	ErrAccessDenied = errors.New("nanoev: access denied")
	// ErrFail is the generic failure.
	ErrFail = errors.New("nanoev: operation failed")
	// ErrOutOfMemory occurs when a loop-owned structure cannot grow any further.
	ErrOutOfMemory = errors.New("nanoev: out of memory")
)

var (
	// ErrInvalidState occurs when an operation is submitted on a TCP event in the wrong state.
	ErrInvalidState = fmt.Errorf("%w: event is in the wrong state", ErrInvalidArg)
	// ErrBusy occurs when an operation of the same direction is already outstanding.
	ErrBusy = fmt.Errorf("%w: operation already pending", ErrInvalidArg)
	// ErrWrongEventType occurs when calling an operation of another event variant.
	ErrWrongEventType = fmt.Errorf("%w: operation not supported by this event type", ErrInvalidArg)
	// ErrEmptyBuffer occurs when a read or a write is submitted with an empty buffer.
	ErrEmptyBuffer = fmt.Errorf("%w: buffer cannot be empty", ErrInvalidArg)
	// ErrNilCallback occurs when an operation is submitted without a callback.
	ErrNilCallback = fmt.Errorf("%w: callback cannot be nil", ErrInvalidArg)
	// ErrTimerScheduled occurs when scheduling a timer that is already scheduled.
	ErrTimerScheduled = fmt.Errorf("%w: timer is already scheduled", ErrInvalidArg)
	// ErrInvalidAddress occurs when the address is not a textual IP literal or the port is out of range.
	ErrInvalidAddress = fmt.Errorf("%w: invalid network address", ErrInvalidArg)
	// ErrNotInLoopThread occurs when a loop-affine operation is called off the loop goroutine.
	ErrNotInLoopThread = fmt.Errorf("%w: not called on the loop goroutine", ErrInvalidArg)
	// ErrEventFreed occurs when using an event that has been freed.
	ErrEventFreed = fmt.Errorf("%w: event has been freed", ErrInvalidArg)
	// ErrLoopRunning occurs when running a loop twice or closing a running loop.
	ErrLoopRunning = fmt.Errorf("%w: loop is running", ErrInvalidArg)
	// ErrLoopBusy occurs when closing a loop that still has live events.
	ErrLoopBusy = fmt.Errorf("%w: loop still has live events", ErrInvalidArg)
	// ErrLoopClosed occurs when using a loop that has been closed.
	ErrLoopClosed = fmt.Errorf("%w: loop has been closed", ErrInvalidArg)
	// ErrNotInitialized occurs when creating a loop before Init.
	ErrNotInitialized = fmt.Errorf("%w: nanoev is not initialized", ErrInvalidArg)
	// ErrAlreadyInitialized occurs when calling Init twice without Term.
	ErrAlreadyInitialized = fmt.Errorf("%w: nanoev is already initialized", ErrInvalidArg)
)

var (
	// ErrClosed is delivered to operations that were pending when their event got closed.
	ErrClosed = fmt.Errorf("%w: use of closed connection", ErrFail)
	// ErrUnsupportedPlatform occurs when nanoev runs on a platform without epoll or kqueue.
	ErrUnsupportedPlatform = fmt.Errorf("%w: unsupported platform", ErrFail)
	// ErrUnsupportedOp occurs when calling some methods that are not supported on the platform.
	ErrUnsupportedOp = fmt.Errorf("%w: unsupported operation", ErrFail)
)

// StatusOf maps err to its status code, nil being StatusSuccess.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrInvalidArg):
		return StatusInvalidArg
	case errors.Is(err, ErrAccessDenied):
		return StatusAccessDenied
	case errors.Is(err, ErrOutOfMemory):
		return StatusOutOfMemory
	}
	return StatusFail
}

// Classify tags an operating system error with the status it stands for,
// the returned error matches both the status sentinel and err.
// Errors that already carry a status are returned as they are.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrInvalidArg, ErrAccessDenied, ErrFail, ErrOutOfMemory} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %w", ErrFail, err)
	}
	switch errno {
	case syscall.EINVAL, syscall.EAFNOSUPPORT, syscall.EBADF, syscall.ENOTSOCK, syscall.EADDRNOTAVAIL:
		return fmt.Errorf("%w: %w", ErrInvalidArg, err)
	case syscall.EACCES, syscall.EPERM:
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	case syscall.ENOMEM, syscall.ENOBUFS:
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	return fmt.Errorf("%w: %w", ErrFail, err)
}
