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

// Package bytebuffer pools the buffers outgoing frames are encoded into.
package bytebuffer

import "github.com/valyala/bytebufferpool"

// ByteBuffer is the alias of bytebufferpool.ByteBuffer.
type ByteBuffer = bytebufferpool.ByteBuffer

// Frames of one application tend to have similar sizes, a dedicated pool
// calibrates its default buffer size on them only.
var framePool bytebufferpool.Pool

// Get returns an empty byte buffer from the pool.
func Get() *ByteBuffer {
	return framePool.Get()
}

// Put returns b to the pool, b must not be used afterwards.
func Put(b *ByteBuffer) {
	if b != nil {
		framePool.Put(b)
	}
}
