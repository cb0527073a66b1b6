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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/pool/bytebuffer"
)

type recorder struct {
	BuiltinResponseHandler

	calls  []string
	length int
	body   []byte
	err    error
}

func (r *recorder) OnError(err error) { r.calls = append(r.calls, "error"); r.err = err }
func (r *recorder) OnHeader(n int)    { r.calls = append(r.calls, "header"); r.length = n }
func (r *recorder) OnHeaderEnd()      { r.calls = append(r.calls, "header-end") }
func (r *recorder) OnBody(b []byte) {
	r.calls = append(r.calls, "body")
	r.body = append(r.body, b...)
}
func (r *recorder) OnEnd() { r.calls = append(r.calls, "end") }

func TestEncode(t *testing.T) {
	bb := Encode([]byte("Hello, Server!\x00"))
	defer bytebuffer.Put(bb)
	require.Equal(t, 19, bb.Len())
	assert.Equal(t, []byte{15, 0, 0, 0}, bb.B[:HeaderSize])
	assert.Equal(t, "Hello, Server!\x00", string(bb.B[HeaderSize:]))
}

func TestDecoderByteByByte(t *testing.T) {
	bb := Encode([]byte("Hello, Server!\x00"))
	defer bytebuffer.Put(bb)

	rec := &recorder{}
	d := NewDecoder(rec, 0)
	src := bb.B
	for i := 0; i < len(src); i++ {
		w := d.Next()
		require.NotEmpty(t, w)
		copy(w, src[i:i+1])
		done, err := d.Advance(1)
		require.NoError(t, err)
		require.Equal(t, i == len(src)-1, done)
	}
	assert.Equal(t, src, d.Frame())
	assert.Equal(t, "Hello, Server!\x00", string(d.Body()))
	assert.Equal(t, 15, rec.length)
	assert.Equal(t, "Hello, Server!\x00", string(rec.body))
	assert.Equal(t, "header", rec.calls[0])
	assert.Equal(t, "header-end", rec.calls[1])
	assert.Equal(t, "end", rec.calls[len(rec.calls)-1])
}

func TestDecoderWindows(t *testing.T) {
	d := NewDecoder(nil, 0)
	assert.Len(t, d.Next(), HeaderSize)

	msg := make([]byte, 1000)
	for i := range msg {
		msg[i] = byte(i)
	}
	bb := Encode(msg)
	defer bytebuffer.Put(bb)

	n := copy(d.Next(), bb.B)
	done, err := d.Advance(n)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, 1000, d.Remaining())

	w := d.Next()
	require.Len(t, w, 1000)
	copy(w, bb.B[HeaderSize:])
	done, err = d.Advance(len(w))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, msg, d.Body())

	// The following frame starts from scratch.
	assert.Len(t, d.Next(), HeaderSize)
	assert.Nil(t, d.Frame())

	_, err = d.Advance(HeaderSize + 1)
	assert.ErrorIs(t, err, errorx.ErrInvalidArg)
}

func TestDecoderEmptyBody(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, 0)
	copy(d.Next(), []byte{0, 0, 0, 0})
	done, err := d.Advance(HeaderSize)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, d.Body())
	assert.Equal(t, []string{"header", "header-end", "end"}, rec.calls)
}

func TestDecoderTooLarge(t *testing.T) {
	rec := &recorder{}
	d := NewDecoder(rec, 8)
	copy(d.Next(), []byte{9, 0, 0, 0})
	_, err := d.Advance(HeaderSize)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.ErrorIs(t, err, errorx.ErrInvalidArg)
	assert.Equal(t, []string{"error"}, rec.calls)
}

func TestDispatch(t *testing.T) {
	bb := Encode([]byte("pong"))
	defer bytebuffer.Put(bb)

	rec := &recorder{}
	require.NoError(t, Dispatch(rec, bb.B))
	assert.Equal(t, []string{"header", "header-end", "body", "end"}, rec.calls)
	assert.Equal(t, "pong", string(rec.body))

	rec = &recorder{}
	assert.Error(t, Dispatch(rec, bb.B[:6]))
	assert.Equal(t, []string{"error"}, rec.calls)
	assert.Error(t, Dispatch(&recorder{}, []byte{1}))
}
