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

package netpoll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

type collected map[int]IOEvent

func (c collected) handler() PollEventHandler {
	return func(fd int, ev IOEvent) { c[fd] |= ev }
}

func TestPollerReadiness(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	a, b := socketPair(t)
	require.NoError(t, p.AddRead(a))

	got := collected{}
	woken, err := p.Poll(0, got.handler())
	require.NoError(t, err)
	assert.False(t, woken)
	assert.Empty(t, got)

	_, err = unix.Write(b, []byte("ping"))
	require.NoError(t, err)
	_, err = p.Poll(1000, got.handler())
	require.NoError(t, err)
	assert.True(t, got[a].IsReadable())
	assert.False(t, got[a].IsWritable())

	// Level-triggered: still readable until drained.
	got = collected{}
	_, err = p.Poll(1000, got.handler())
	require.NoError(t, err)
	assert.True(t, got[a].IsReadable())

	require.NoError(t, p.ModWrite(a))
	got = collected{}
	_, err = p.Poll(1000, got.handler())
	require.NoError(t, err)
	assert.True(t, got[a].IsWritable())
	assert.False(t, got[a].IsReadable())

	require.NoError(t, p.ModReadWrite(a))
	got = collected{}
	_, err = p.Poll(1000, got.handler())
	require.NoError(t, err)
	assert.True(t, got[a].IsWritable())
	assert.True(t, got[a].IsReadable())

	require.NoError(t, p.Delete(a))
	got = collected{}
	_, err = p.Poll(10, got.handler())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPollerHangUp(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0]) //nolint:errcheck
	require.NoError(t, p.AddRead(fds[0]))
	require.NoError(t, unix.Close(fds[1]))

	got := collected{}
	_, err = p.Poll(1000, got.handler())
	require.NoError(t, err)
	assert.True(t, got[fds[0]].IsReadable())
	assert.True(t, got[fds[0]].IsError())
}

func TestPollerWakeup(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		for i := 0; i < 10; i++ {
			_ = p.Wakeup()
		}
	}()

	start := time.Now()
	woken, err := p.Poll(-1, func(int, IOEvent) { t.Fatal("unexpected readiness") })
	require.NoError(t, err)
	assert.True(t, woken)
	assert.Less(t, time.Since(start), 5*time.Second)
	<-done

	// Coalesced wakeups never outnumber the Polls noticing them.
	for i := 0; i < 3 && woken; i++ {
		woken, err = p.Poll(10, func(int, IOEvent) {})
		require.NoError(t, err)
	}
	assert.False(t, woken)

	require.NoError(t, p.Wakeup())
	woken, err = p.Poll(1000, func(int, IOEvent) {})
	require.NoError(t, err)
	assert.True(t, woken)
}

func TestEventListAdjust(t *testing.T) {
	el := newEventList[int](InitPollEventsCap)
	el.adjust(InitPollEventsCap)
	assert.Equal(t, InitPollEventsCap<<1, el.size)
	assert.Len(t, el.events, InitPollEventsCap<<1)
	for i := 0; i < 10; i++ {
		el.adjust(0)
	}
	assert.Equal(t, MinPollEventsCap, el.size)
	for i := 0; i < 10; i++ {
		el.adjust(el.size)
	}
	assert.Equal(t, MaxPollEventsCap, el.size)
}
