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

// Package tunnel wraps a message-oriented WebSocket as a byte-oriented,
// io.ReadWriteCloser duplex stream (component C1), the substrate TLS and
// HTTP/1/2 clients run over once a connection to the relay is dialed.
package tunnel

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
)

// state mirrors the WebSocket readyState values relevant to us.
type state int

const (
	stateConnecting state = iota
	stateOpen
	stateClosed
)

// OnClose is called exactly once, the first time the tunnel transitions to
// closed, whether due to a remote close frame, a read or write failure, or a
// local Close(). It is not called when Dial itself fails. The Connection Pool
// uses it to evict its map entry.
type OnClose func()

// Stream presents conn as a byte-oriented duplex stream. A background
// goroutine reads binary frames off the socket into an internal FIFO;
// Read drains that FIFO, blocking (via sync.Cond, Go's stand-in for the
// original poll_read waker) until bytes are available or the tunnel closes.
type Stream struct {
	conn    *websocket.Conn
	onClose OnClose

	mu       sync.Mutex
	cond     *sync.Cond
	buf      bytes.Buffer
	st       state
	closeErr error
	closedCh chan struct{}
	closeOne sync.Once
}

// Dial opens a WebSocket to relayURL and wraps it as a Stream. onClose fires
// once, when the tunnel transitions to closed for any reason.
func Dial(ctx context.Context, relayURL string, onClose OnClose) (*Stream, error) {
	if _, err := url.Parse(relayURL); err != nil {
		return nil, mantalon.E(mantalon.KindTransport, "TunnelOpenFailed", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, mantalon.E(mantalon.KindTransport, "TunnelOpenFailed", err)
	}
	return wrap(conn, onClose), nil
}

func wrap(conn *websocket.Conn, onClose OnClose) *Stream {
	s := &Stream{
		conn:     conn,
		onClose:  onClose,
		st:       stateOpen,
		closedCh: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	conn.SetCloseHandler(func(code int, text string) error {
		mantalon.Log().Debug("tunnel: remote closed", zap.Int("code", code))
		s.fail(nil)
		return nil
	})

	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				mantalon.Log().Error("tunnel: read loop ended", zap.Error(err))
				s.fail(err)
			} else {
				mantalon.Log().Debug("tunnel: closed", zap.Error(err))
				s.fail(nil)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		s.mu.Lock()
		s.buf.Write(data)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// Ready blocks until the tunnel has finished connecting. Since Dial already
// performs the WebSocket handshake synchronously, Ready never actually
// blocks on a live Stream; it exists so callers that hold a Stream across
// an await-like boundary (as the Connection Pool does) have a uniform gate
// to call before first use, matching spec.md's "await ready() before using
// the stream" contract.
func (s *Stream) Ready(ctx context.Context) error {
	s.mu.Lock()
	st := s.st
	s.mu.Unlock()
	if st == stateClosed {
		return mantalon.ErrTunnelNotOpen
	}
	return nil
}

// Read drains up to len(p) bytes from the FIFO, blocking until at least one
// byte is available or the tunnel has closed (returns 0, io.EOF).
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && s.st != stateClosed {
		s.cond.Wait()
	}
	if s.buf.Len() == 0 {
		if s.closeErr != nil {
			return 0, mantalon.E(mantalon.KindTransport, "ProtocolError", s.closeErr)
		}
		return 0, io.EOF
	}
	return s.buf.Read(p)
}

// Write issues a single binary WebSocket send for the whole buffer.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.st == stateClosed
	s.mu.Unlock()
	if closed {
		return 0, mantalon.ErrTunnelNotOpen
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		s.fail(err)
		return 0, mantalon.E(mantalon.KindTransport, "ProtocolError", err)
	}
	return len(p), nil
}

// Close shuts down the tunnel from our side.
func (s *Stream) Close() error {
	s.fail(nil)
	return s.conn.Close()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	already := s.st == stateClosed
	s.st = stateClosed
	if err != nil {
		s.closeErr = err
	}
	s.mu.Unlock()
	s.cond.Broadcast()
	if !already {
		s.closeOne.Do(func() {
			close(s.closedCh)
			if s.onClose != nil {
				s.onClose()
			}
		})
	}
}

// Closed returns a channel that's closed once the tunnel has closed, for
// callers that want to select on it rather than block in Read.
func (s *Stream) Closed() <-chan struct{} { return s.closedCh }
