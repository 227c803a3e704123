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

package proxy

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/net/http2"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/internal/addr"
	"github.com/Mubelotix/mantalon/tunnel"
)

// Pool maps Destination Address strings to live Senders, opening new
// tunnels on miss and evicting on close (spec.md §4.4, "Connection Pool").
type Pool struct {
	mu       sync.RWMutex
	conns    map[string]Sender
	endpoint *Endpoint
	h2       *http2.Transport
}

// NewPool returns an empty Pool that dials through endpoint.
func NewPool(endpoint *Endpoint) *Pool {
	return &Pool{
		conns:    make(map[string]Sender),
		endpoint: endpoint,
		h2:       new(http2.Transport),
	}
}

// SendRequest implements the acquisition algorithm of spec.md §4.4: reuse a
// live sender if one is pooled and still ready; otherwise open a new tunnel,
// TLS-negotiate the protocol, and dispatch.
func (p *Pool) SendRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	destAddr, err := addr.Of(req.URL)
	if err != nil {
		return nil, err
	}

	if sender := p.lookup(destAddr); sender != nil {
		if err := sender.Ready(ctx); err == nil {
			return sender.SendRequest(req)
		}
		// Stale: proceed to reopen as if it had been a miss.
	}

	sender, err := p.open(ctx, destAddr, req.URL)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.conns[destAddr] = sender
	p.mu.Unlock()

	if err := sender.Ready(ctx); err != nil {
		return nil, err
	}
	return sender.SendRequest(req)
}

func (p *Pool) lookup(destAddr string) Sender {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conns[destAddr]
}

// evict removes destAddr unconditionally; called from a tunnel's on-close
// hook. Removing an already-removed key is a harmless no-op (spec.md §4.4,
// "Concurrency invariants").
func (p *Pool) evict(destAddr string) {
	p.mu.Lock()
	delete(p.conns, destAddr)
	p.mu.Unlock()
}

func (p *Pool) open(ctx context.Context, destAddr string, u *url.URL) (Sender, error) {
	relayURL, err := p.endpoint.Get(destAddr)
	if err != nil {
		return nil, err
	}

	stream, err := tunnel.Dial(ctx, relayURL, func() { p.evict(destAddr) })
	if err != nil {
		return nil, err
	}
	if err := stream.Ready(ctx); err != nil {
		return nil, mantalon.ErrTunnelNotOpen
	}

	conn := newStreamConn(stream, destAddr)

	if u.Scheme != "https" {
		return newH1Sender(conn, stream), nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: u.Hostname(),
		NextProtos: []string{"h2", "http/1.1"},
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, mantalon.E(mantalon.KindTransport, "TlsConnect", err)
	}

	switch tlsConn.ConnectionState().NegotiatedProtocol {
	case "h2":
		return newH2Sender(tlsConn, p.h2, stream)
	case "http/1.1":
		return newH1Sender(tlsConn, stream), nil
	default:
		return nil, mantalon.ErrNoCommonProtocol
	}
}
