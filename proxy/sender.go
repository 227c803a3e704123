// Copyright 2024 The Mantalon Authors
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

// Package proxy implements the Protocol Sender (C3) and Connection Pool
// (C4): a handshaked HTTP/1 or HTTP/2 client multiplexed over an arbitrary
// duplex stream, keyed in a pool by destination address (spec.md §4.3-4.4).
package proxy

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/tunnel"
)

// backgroundDriver spawns the "background connection driver task" spec.md
// §4.3 describes: it watches the tunnel for closure and runs onDead exactly
// once when that happens. An errgroup.Group is overkill for a single
// goroutine, but it's the pack's idiom for "run goroutines, collect the
// first error, know when they're done" (caddy's reverseproxy streaming
// uses the same package for its read/write pump pair).
func backgroundDriver(stream *tunnel.Stream, onDead func()) {
	var g errgroup.Group
	g.Go(func() error {
		<-stream.Closed()
		return nil
	})
	go func() {
		g.Wait()
		mantalon.Log().Debug("proxy: background connection driver exited")
		onDead()
	}()
}

// Sender is the uniform interface the Pool holds regardless of whether the
// underlying connection speaks HTTP/1 or HTTP/2 (spec.md §4.3, "Protocol
// Sender").
type Sender interface {
	// Ready blocks until the sender can accept a new request, or returns
	// the underlying protocol's readiness failure.
	Ready(ctx context.Context) error
	// SendRequest dispatches req and returns its response. For H1 it
	// injects the Host header from the URI authority if absent.
	SendRequest(req *http.Request) (*http.Response, error)
}

// h1Sender wraps a single HTTP/1 connection. The wire protocol forbids
// interleaved requests on one connection, so dispatch is mutex-serialized
// (spec.md §4.3).
type h1Sender struct {
	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
	dead bool
}

func newH1Sender(conn net.Conn, stream *tunnel.Stream) *h1Sender {
	s := &h1Sender{conn: conn, br: bufio.NewReader(conn)}
	backgroundDriver(stream, func() {
		s.mu.Lock()
		s.dead = true
		s.mu.Unlock()
	})
	return s
}

func (s *h1Sender) Ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return mantalon.ErrConnNotReady
	}
	return nil
}

func (s *h1Sender) SendRequest(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return nil, mantalon.ErrConnNotReady
	}
	if req.Host == "" && req.URL != nil {
		req.Host = req.URL.Host
	}

	if err := req.Write(s.conn); err != nil {
		s.dead = true
		return nil, mantalon.E(mantalon.KindTransport, "HandshakeFailed", err)
	}

	resp, err := http.ReadResponse(s.br, req)
	if err != nil {
		s.dead = true
		return nil, mantalon.E(mantalon.KindTransport, "HandshakeFailed", err)
	}
	return resp, nil
}

// h2Sender wraps an HTTP/2 ClientConn. Unlike H1, cloning an h2Sender
// reaches the same underlying multiplexed connection, so no serialization
// is needed (spec.md §4.4, "Value = a Protocol Sender shared so that
// clones reach the same underlying connection").
type h2Sender struct {
	cc *http2.ClientConn
}

func newH2Sender(conn net.Conn, t *http2.Transport, stream *tunnel.Stream) (*h2Sender, error) {
	cc, err := t.NewClientConn(conn)
	if err != nil {
		return nil, mantalon.E(mantalon.KindTransport, "HandshakeFailed", err)
	}
	s := &h2Sender{cc: cc}
	backgroundDriver(stream, func() {
		mantalon.Log().Debug("proxy: h2 tunnel closed")
	})
	return s, nil
}

func (s *h2Sender) Ready(ctx context.Context) error {
	if !s.cc.CanTakeNewRequest() {
		return mantalon.ErrConnNotReady
	}
	return nil
}

func (s *h2Sender) SendRequest(req *http.Request) (*http.Response, error) {
	resp, err := s.cc.RoundTrip(req)
	if err != nil {
		return nil, mantalon.E(mantalon.KindTransport, "HandshakeFailed", err)
	}
	return resp, nil
}

var (
	_ Sender = (*h1Sender)(nil)
	_ Sender = (*h2Sender)(nil)
)
