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

// Package goroutine provides the worker pool nanoev programs spread their loops over.
package goroutine

import (
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultPoolSize is the capacity of the pool returned by Default.
	DefaultPoolSize = 1 << 10

	// ExpiryDuration is the interval time to clean up those expired workers.
	ExpiryDuration = 10 * time.Second
)

func init() {
	// The pools below are the only ones in use, release the default pool of ants.
	ants.Release()
}

// Pool is the alias of ants.Pool.
type Pool = ants.Pool

// New instantiates a pool of size workers, a non-positive size means DefaultPoolSize.
// Submitting to a full pool blocks until a worker frees up, since each task
// usually drives a whole loop and must not be dropped.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return ants.NewPool(size, ants.WithOptions(ants.Options{ExpiryDuration: ExpiryDuration}))
}

// Default instantiates a pool with the capacity of DefaultPoolSize.
func Default() *Pool {
	p, _ := New(DefaultPoolSize)
	return p
}
