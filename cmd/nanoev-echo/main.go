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

// Command nanoev-echo serves framed messages back to their senders until
// interrupted.
//
//	nanoev-echo -port 4000
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/nanoev/nanoev"
	"github.com/nanoev/nanoev/pkg/frame"
	"github.com/nanoev/nanoev/pkg/logging"
)

func main() {
	var (
		addr    string
		port    int
		backlog int
	)
	flag.StringVar(&addr, "addr", "127.0.0.1", "listening address")
	flag.IntVar(&port, "port", 4000, "listening port")
	flag.IntVar(&backlog, "backlog", 0, "listen backlog, 0 for the system maximum")
	flag.Parse()

	if err := serve(addr, port, backlog); err != nil {
		logging.Errorf("nanoev-echo: %v", err)
		logging.Flush()
		os.Exit(1)
	}
	logging.Flush()
}

type server struct {
	loop     *nanoev.Loop
	listener *nanoev.Event
	stop     *nanoev.Event
	sessions map[*nanoev.Event]*session
}

// session echoes the frames of one connection, one at a time.
type session struct {
	srv *server
	dec *frame.Decoder
}

func serve(addr string, port, backlog int) (err error) {
	if err = nanoev.Init(); err != nil {
		return err
	}
	defer nanoev.Term()

	loop, err := nanoev.NewLoop(nil)
	if err != nil {
		return err
	}
	s := &server{loop: loop, sessions: make(map[*nanoev.Event]*session)}
	defer func() {
		err = multierr.Combine(err, s.release(), loop.Close())
	}()

	if s.stop, err = nanoev.NewEvent(nanoev.EventAsync, loop, s); err != nil {
		return err
	}
	if err = s.stop.Start(s.onStop); err != nil {
		return err
	}
	if s.listener, err = nanoev.NewEvent(nanoev.EventTCP, loop, s); err != nil {
		return err
	}
	if err = s.listener.Listen(addr, port, backlog); err != nil {
		return err
	}
	if err = s.listener.Accept(s.onAccept, nil); err != nil {
		return err
	}
	ip, lport, _ := s.listener.Addr(true)
	logging.Infof("echo server is listening on %s:%d", ip, lport)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	stop := s.stop
	go func() {
		if _, ok := <-sig; ok {
			if err := stop.Send(); err != nil {
				logging.Errorf("failed to signal the event-loop: %v", err)
			}
		}
	}()

	return loop.Run()
}

// release frees every event still around once the loop returned.
func (s *server) release() (err error) {
	for conn := range s.sessions {
		err = multierr.Append(err, conn.Free())
	}
	s.sessions = nil
	for _, ev := range []*nanoev.Event{s.listener, s.stop} {
		if ev != nil {
			err = multierr.Append(err, ev.Free())
		}
	}
	s.listener, s.stop = nil, nil
	return
}

func (s *server) onStop(*nanoev.Event) {
	logging.Infof("shutting down, %d connection(s) open", len(s.sessions))
	s.loop.Break()
}

func (s *server) onAccept(ev *nanoev.Event, err error, conn *nanoev.Event) {
	if err != nil {
		logging.Errorf("accept failed: %v", err)
	} else {
		ss := &session{srv: s, dec: frame.NewDecoder(nil, 0)}
		s.sessions[conn] = ss
		if err = conn.Read(ss.dec.Next(), ss.onRead); err != nil {
			ss.drop(conn, err)
		}
	}
	if err = ev.Accept(s.onAccept, nil); err != nil {
		logging.Errorf("failed to accept again, stopping: %v", err)
		s.loop.Break()
	}
}

func (ss *session) drop(conn *nanoev.Event, err error) {
	if err != nil {
		ip, port, _ := conn.Addr(false)
		logging.Warnf("dropping connection from %s:%d: %v", ip, port, err)
	}
	delete(ss.srv.sessions, conn)
	if err = conn.Free(); err != nil {
		logging.Errorf("failed to free connection: %v", err)
	}
}

func (ss *session) onRead(conn *nanoev.Event, err error, _ []byte, n int) {
	if err != nil || n == 0 {
		ss.drop(conn, err)
		return
	}
	done, err := ss.dec.Advance(n)
	if err == nil {
		if done {
			err = conn.Write(ss.dec.Frame(), ss.onWrite)
		} else {
			err = conn.Read(ss.dec.Next(), ss.onRead)
		}
	}
	if err != nil {
		ss.drop(conn, err)
	}
}

func (ss *session) onWrite(conn *nanoev.Event, err error, buf []byte, n int) {
	if err == nil {
		if n < len(buf) {
			err = conn.Write(buf[n:], ss.onWrite)
		} else {
			err = conn.Read(ss.dec.Next(), ss.onRead)
		}
	}
	if err != nil {
		ss.drop(conn, err)
	}
}
