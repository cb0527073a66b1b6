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

/*
Package nanoev is a small proactor-style asynchronous I/O engine.

A Loop is driven by exactly one goroutine. Callers submit non-blocking TCP
operations (connect, accept, read, write) and timers on events bound to the
loop, the loop waits for readiness through epoll or kqueue, performs the
operations and reports their completion by calling the callback supplied at
submission, always on the loop goroutine and never from within the
submitting call. An Async event lets any other goroutine wake the loop up and
have a callback run on it.

	if err := nanoev.Init(); err != nil {
		// handle error
	}
	defer nanoev.Term()

	loop, _ := nanoev.NewLoop(nil)
	defer loop.Close()

	tcp, _ := nanoev.NewEvent(nanoev.EventTCP, loop, nil)
	defer tcp.Free()

	_ = tcp.Connect("127.0.0.1", 4000, func(ev *nanoev.Event, err error) {
		if err != nil {
			// the connection failed, errors.StatusOf(err) tells why
			return
		}
		_ = ev.Write([]byte("hello"), func(ev *nanoev.Event, err error, buf []byte, n int) {
			// n bytes of buf were written
		})
	})

	_ = loop.Run() // returns once nothing is pending anymore

Buffers handed to Read and Write belong to the caller again once the
corresponding callback has been invoked. Errors passed to callbacks match one
of the status sentinels of package errors: ErrInvalidArg, ErrAccessDenied,
ErrFail or ErrOutOfMemory.
*/
package nanoev
