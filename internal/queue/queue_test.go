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

package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	assert.True(t, q.IsEmpty())
	_, ok := q.Dequeue()
	assert.False(t, ok)

	for i := 0; i < 100; i++ {
		q.Enqueue(i)
	}
	assert.False(t, q.IsEmpty())
	assert.EqualValues(t, 100, q.Length())
	for i := 0; i < 100; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())
	assert.Zero(t, q.Length())
}

func TestQueueConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perWorker = 10000
	)
	q := New[int]()

	var eg errgroup.Group
	for p := 0; p < producers; p++ {
		p := p
		eg.Go(func() error {
			for i := 0; i < perWorker; i++ {
				q.Enqueue(p*perWorker + i)
			}
			return nil
		})
	}

	var (
		seen = make(map[int]struct{}, producers*perWorker)
		last = make([]int, producers)
	)
	for i := range last {
		last[i] = -1
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; n < producers*perWorker; {
			v, ok := q.Dequeue()
			if !ok {
				continue
			}
			seen[v] = struct{}{}
			// Values of one producer come out in the order it enqueued them.
			p := v / perWorker
			if v <= last[p] {
				t.Errorf("value %d dequeued after %d", v, last[p])
			}
			last[p] = v
			n++
		}
	}()
	require.NoError(t, eg.Wait())
	<-done

	assert.Len(t, seen, producers*perWorker)
	assert.True(t, q.IsEmpty())
}
