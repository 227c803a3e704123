package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startBackend runs a plain HTTP/1 server on a real TCP listener (not
// httptest.Server, so our h1Sender can speak the wire protocol directly).
func startBackend(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

// startRelay bridges every WebSocket connection to a fresh TCP connection
// to backendAddr, ignoring the requested path (a stand-in for the real
// relay, which would route by Destination Address instead).
func startRelay(t *testing.T, backendAddr string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		tcp, err := net.Dial("tcp", backendAddr)
		if err != nil {
			ws.Close()
			return
		}
		go bridgeTCPToWS(tcp, ws)
		bridgeWSToTCP(ws, tcp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func bridgeWSToTCP(ws *websocket.Conn, tcp net.Conn) {
	defer tcp.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if _, err := tcp.Write(data); err != nil {
			return
		}
	}
}

func bridgeTCPToWS(tcp net.Conn, ws *websocket.Conn) {
	defer ws.Close()
	buf := make([]byte, 4096)
	for {
		n, err := tcp.Read(buf)
		if n > 0 {
			if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func TestPoolSendRequestOverFreshTunnel(t *testing.T) {
	backend := startBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello from backend")
	})
	relay := startRelay(t, backend)

	endpoint := &Endpoint{}
	endpoint.Set(strings.Replace(relay.URL, "http://", "ws://", 1))

	pool := NewPool(endpoint)

	reqURL, err := url.Parse("http://" + backend + "/")
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, reqURL.String(), nil)
	require.NoError(t, err)

	resp, err := pool.SendRequest(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello from backend", string(body))
}

func TestPoolReusesConnectionOnSecondRequest(t *testing.T) {
	var hits int
	backend := startBackend(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, "ok")
	})
	relay := startRelay(t, backend)

	endpoint := &Endpoint{}
	endpoint.Set(strings.Replace(relay.URL, "http://", "ws://", 1))
	pool := NewPool(endpoint)

	reqURL := "http://" + backend + "/"
	for i := 0; i < 2; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, reqURL, nil)
		require.NoError(t, err)
		resp, err := pool.SendRequest(context.Background(), req)
		require.NoError(t, err)
		io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	assert.Len(t, pool.conns, 1)
	assert.Equal(t, 2, hits)
}
