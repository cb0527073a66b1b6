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

// Package frame implements the length-prefixed framing spoken by the nanoev
// example programs: a 4-byte little-endian body length followed by the body.
//
// Frames are encoded in one go with Encode. Decoding is incremental, as bytes
// trickle in through read completions: the Decoder hands out the exact window
// the next read should fill, so that no byte of the following frame is ever
// consumed, and reports the progress of the frame to a ResponseHandler.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/nanoev/nanoev/internal/toolkit"
	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/pool/bytebuffer"
)

// HeaderSize is the size of the length prefix.
const HeaderSize = 4

// DefaultMaxBodySize bounds the body length a Decoder accepts unless told otherwise.
const DefaultMaxBodySize = 1 << 20

// ErrFrameTooLarge occurs when a frame announces a body longer than allowed.
var ErrFrameTooLarge = fmt.Errorf("%w: frame body too large", errorx.ErrInvalidArg)

// Encode frames msg into a pooled buffer, which the caller should hand back
// with bytebuffer.Put once written out.
func Encode(msg []byte) *bytebuffer.ByteBuffer {
	bb := bytebuffer.Get()
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(msg)))
	_, _ = bb.Write(hdr[:])
	_, _ = bb.Write(msg)
	return bb
}

// ResponseHandler is notified as a response frame gets decoded.
type ResponseHandler interface {
	// OnError reports a failure, no other notification follows for this exchange.
	OnError(err error)
	// OnStatus reports the status of the connection the response comes from.
	OnStatus(status errorx.Status)
	// OnHeader reports the body length announced by the header.
	OnHeader(length int)
	// OnHeaderEnd is called once the header has been processed.
	OnHeaderEnd()
	// OnBody delivers a chunk of the body as it arrives.
	OnBody(chunk []byte)
	// OnEnd is called once the whole frame has been received.
	OnEnd()
}

// BuiltinResponseHandler implements every method of ResponseHandler with a no-op,
// embed it to implement only the notifications of interest.
type BuiltinResponseHandler struct{}

// OnError does nothing.
func (BuiltinResponseHandler) OnError(error) {}

// OnStatus does nothing.
func (BuiltinResponseHandler) OnStatus(errorx.Status) {}

// OnHeader does nothing.
func (BuiltinResponseHandler) OnHeader(int) {}

// OnHeaderEnd does nothing.
func (BuiltinResponseHandler) OnHeaderEnd() {}

// OnBody does nothing.
func (BuiltinResponseHandler) OnBody([]byte) {}

// OnEnd does nothing.
func (BuiltinResponseHandler) OnEnd() {}

// Dispatch feeds a complete frame to h at once.
func Dispatch(h ResponseHandler, frame []byte) error {
	if len(frame) < HeaderSize {
		err := fmt.Errorf("%w: truncated frame header", errorx.ErrInvalidArg)
		h.OnError(err)
		return err
	}
	length := int(binary.LittleEndian.Uint32(frame))
	if len(frame)-HeaderSize != length {
		err := fmt.Errorf("%w: frame announces %d bytes, carries %d", errorx.ErrInvalidArg, length, len(frame)-HeaderSize)
		h.OnError(err)
		return err
	}
	h.OnHeader(length)
	h.OnHeaderEnd()
	if length > 0 {
		h.OnBody(frame[HeaderSize:])
	}
	h.OnEnd()
	return nil
}

// Decoder reassembles one frame after the other out of successive reads.
type Decoder struct {
	handler ResponseHandler
	maxBody int
	buf     []byte
	size    int // bytes of the current frame received so far
	total   int // size of the current frame, HeaderSize until the header is in
	done    bool
}

// NewDecoder creates a decoder notifying h, which may be nil. A non-positive
// maxBody means DefaultMaxBodySize.
func NewDecoder(h ResponseHandler, maxBody int) *Decoder {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	if h == nil {
		h = BuiltinResponseHandler{}
	}
	return &Decoder{handler: h, maxBody: maxBody, buf: make([]byte, 64), total: HeaderSize}
}

// Next returns the window the next read should fill, exactly the bytes still
// missing from the current frame. After a frame completed, Next starts a new one.
func (d *Decoder) Next() []byte {
	if d.done {
		d.Reset()
	}
	return d.buf[d.size:d.total]
}

// Remaining returns how many bytes the current frame still misses.
func (d *Decoder) Remaining() int {
	return d.total - d.size
}

// Advance records that n bytes were read into the window returned by Next.
// done turns true once the frame is complete, Frame then returns it.
func (d *Decoder) Advance(n int) (done bool, err error) {
	if n < 0 || n > d.total-d.size {
		return false, errorx.ErrInvalidArg
	}
	if d.done {
		return true, nil
	}
	from := d.size
	d.size += n

	if d.total == HeaderSize {
		if d.size < HeaderSize {
			return false, nil
		}
		length := int(binary.LittleEndian.Uint32(d.buf))
		if length > d.maxBody {
			err = fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, d.maxBody)
			d.handler.OnError(err)
			return false, err
		}
		d.total = HeaderSize + length
		d.grow(d.total)
		d.handler.OnHeader(length)
		d.handler.OnHeaderEnd()
		from = HeaderSize
	}
	if d.size > from {
		d.handler.OnBody(d.buf[from:d.size])
	}
	if d.size == d.total {
		d.done = true
		d.handler.OnEnd()
	}
	return d.done, nil
}

// Frame returns the last complete frame, header included, valid until the next call to Next.
func (d *Decoder) Frame() []byte {
	if !d.done {
		return nil
	}
	return d.buf[:d.total]
}

// Body returns the body of the last complete frame, valid until the next call to Next.
func (d *Decoder) Body() []byte {
	if !d.done {
		return nil
	}
	return d.buf[HeaderSize:d.total]
}

// Reset drops any partially received frame.
func (d *Decoder) Reset() {
	d.size, d.total, d.done = 0, HeaderSize, false
}

func (d *Decoder) grow(n int) {
	if n <= len(d.buf) {
		return
	}
	buf := make([]byte, toolkit.CeilToPowerOfTwo(n))
	copy(buf, d.buf[:d.size])
	d.buf = buf
}
