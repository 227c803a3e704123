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
	"net"
	"time"

	"github.com/Mubelotix/mantalon/tunnel"
)

// tunnelAddr satisfies net.Addr for a relay tunnel, which has no real
// network address of its own.
type tunnelAddr string

func (a tunnelAddr) Network() string { return "mantalon-tunnel" }
func (a tunnelAddr) String() string  { return string(a) }

// streamConn adapts a tunnel.Stream to net.Conn so it can be handed to
// crypto/tls or http2 directly. Deadlines are a no-op: the relay protocol
// doesn't expose per-frame timing control.
type streamConn struct {
	*tunnel.Stream
	addr string
}

func newStreamConn(s *tunnel.Stream, addr string) *streamConn {
	return &streamConn{Stream: s, addr: addr}
}

func (c *streamConn) LocalAddr() net.Addr                { return tunnelAddr("local/" + c.addr) }
func (c *streamConn) RemoteAddr() net.Addr                { return tunnelAddr(c.addr) }
func (c *streamConn) SetDeadline(t time.Time) error       { return nil }
func (c *streamConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *streamConn) SetWriteDeadline(t time.Time) error  { return nil }

var _ net.Conn = (*streamConn)(nil)
