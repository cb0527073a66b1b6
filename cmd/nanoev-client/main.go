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

// Command nanoev-client sends a framed message to a nanoev echo server and
// prints the response. Each client runs its own loop on a pooled goroutine.
//
//	nanoev-client -port 4000 -msg "Hello, Server!" -n 4
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/nanoev/nanoev"
	errorx "github.com/nanoev/nanoev/pkg/errors"
	"github.com/nanoev/nanoev/pkg/frame"
	"github.com/nanoev/nanoev/pkg/logging"
	"github.com/nanoev/nanoev/pkg/pool/bytebuffer"
	"github.com/nanoev/nanoev/pkg/pool/goroutine"
)

var (
	errServerClosed = errors.New("server closed the connection")
	errTimeout      = errors.New("timed out waiting for the response")
)

func main() {
	var (
		addr    string
		port    int
		msg     string
		n       int
		timeout time.Duration
	)
	flag.StringVar(&addr, "addr", "127.0.0.1", "server address")
	flag.IntVar(&port, "port", 4000, "server port")
	flag.StringVar(&msg, "msg", "Hello, Server!", "message to send")
	flag.IntVar(&n, "n", 1, "number of concurrent clients")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "time allowed for each exchange")
	flag.Parse()

	if err := run(addr, port, msg, n, timeout); err != nil {
		logging.Errorf("nanoev-client: %v", err)
		logging.Flush()
		os.Exit(1)
	}
	logging.Flush()
}

func run(addr string, port int, msg string, n int, timeout time.Duration) (err error) {
	if err = nanoev.Init(); err != nil {
		return err
	}
	defer nanoev.Term()

	if n < 1 {
		n = 1
	}
	var pool *goroutine.Pool
	if n >= goroutine.DefaultPoolSize {
		// Submissions beyond the capacity wait for earlier clients to finish.
		pool = goroutine.Default()
	} else if pool, err = goroutine.New(n); err != nil {
		return err
	}
	defer pool.Release()

	// The message travels with its terminating NUL, as C clients send it.
	payload := append([]byte(msg), 0)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		id := i
		wg.Add(1)
		if serr := pool.Submit(func() {
			defer wg.Done()
			cerr := runClient(id, addr, port, payload, timeout)
			if cerr != nil {
				mu.Lock()
				err = multierr.Append(err, fmt.Errorf("client %d: %w", id, cerr))
				mu.Unlock()
			}
		}); serr != nil {
			wg.Done()
			mu.Lock()
			err = multierr.Append(err, serr)
			mu.Unlock()
		}
	}
	wg.Wait()
	return err
}

// printer prints the response the way the reference client does.
type printer struct {
	frame.BuiltinResponseHandler

	id   int
	size int
	body []byte
}

func (p *printer) OnStatus(status errorx.Status) {
	if status != errorx.StatusSuccess {
		logging.Warnf("client %d: connect status = %s", p.id, status)
	}
}

func (p *printer) OnError(err error) {
	logging.Errorf("client %d: %v", p.id, err)
}

func (p *printer) OnHeader(length int) {
	p.size = frame.HeaderSize + length
	p.body = p.body[:0]
}

func (p *printer) OnBody(chunk []byte) {
	p.body = append(p.body, chunk...)
}

func (p *printer) OnEnd() {
	fmt.Printf("Server return %d bytes : %s\n", p.size, bytes.TrimRight(p.body, "\x00"))
}

// client carries one exchange: connect, send the request, receive the response.
type client struct {
	tcp     *nanoev.Event
	timer   *nanoev.Event
	out     *bytebuffer.ByteBuffer
	dec     *frame.Decoder
	handler frame.ResponseHandler
	done    bool
	err     error
}

func runClient(id int, ip string, port int, msg []byte, timeout time.Duration) (err error) {
	loop, err := nanoev.NewLoop(id)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, loop.Close())
	}()

	handler := &printer{id: id}
	c := &client{
		out:     frame.Encode(msg),
		dec:     frame.NewDecoder(handler, 0),
		handler: handler,
	}
	defer bytebuffer.Put(c.out)

	if c.tcp, err = nanoev.NewEvent(nanoev.EventTCP, loop, c); err != nil {
		return err
	}
	if c.timer, err = nanoev.NewEvent(nanoev.EventTimer, loop, c); err != nil {
		return multierr.Append(err, c.tcp.Free())
	}
	if err = c.timer.AddTimer(timeout, c.onTimeout); err != nil {
		c.finish(err)
		return err
	}
	if err = c.tcp.Connect(ip, port, c.onConnect); err != nil {
		c.finish(err)
		return err
	}

	if err = loop.Run(); err != nil {
		c.finish(err)
		return err
	}
	return c.err
}

// finish ends the exchange with err and releases its events, which lets the loop return.
func (c *client) finish(err error) {
	if c.done {
		return
	}
	c.done = true
	// The decoder already reported oversized frames.
	if err != nil && !errors.Is(err, frame.ErrFrameTooLarge) {
		c.handler.OnError(err)
	}
	c.err = multierr.Combine(err, c.tcp.Free(), c.timer.Free())
}

func (c *client) onTimeout(*nanoev.Event) {
	c.finish(errTimeout)
}

func (c *client) onConnect(ev *nanoev.Event, err error) {
	c.handler.OnStatus(errorx.StatusOf(err))
	if err != nil {
		c.finish(err)
		return
	}
	if err = ev.Write(c.out.B, c.onWrite); err != nil {
		c.finish(err)
	}
}

func (c *client) onWrite(ev *nanoev.Event, err error, buf []byte, n int) {
	if err != nil {
		c.finish(err)
		return
	}
	if n < len(buf) {
		err = ev.Write(buf[n:], c.onWrite)
	} else {
		err = ev.Read(c.dec.Next(), c.onRead)
	}
	if err != nil {
		c.finish(err)
	}
}

func (c *client) onRead(ev *nanoev.Event, err error, _ []byte, n int) {
	if err != nil {
		c.finish(err)
		return
	}
	if n == 0 {
		c.finish(errServerClosed)
		return
	}
	done, err := c.dec.Advance(n)
	if err != nil {
		c.finish(err)
		return
	}
	if done {
		c.finish(nil)
		return
	}
	if err = ev.Read(c.dec.Next(), c.onRead); err != nil {
		c.finish(err)
	}
}
