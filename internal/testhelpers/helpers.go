// Package testhelpers provides utilities shared by the roomcast server tests:
// a running hub behind an httptest server, WebSocket clients that speak the
// event envelope, and HTTP request helpers.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomcast/internal/server"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// ReadTimeout bounds every read made through these helpers.
const ReadTimeout = 2 * time.Second

// Envelope is one event as seen on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// StartServer runs a hub behind an httptest server. The server's own URL is
// added to the allowed origins before customize runs. Everything is torn
// down and the configuration reset when the test ends.
func StartServer(t *testing.T, customize func(cfg *server.Config)) (*httptest.Server, *server.Hub) {
	t.Helper()

	hub := server.NewHub(nil, server.NewMetrics())
	go hub.Run()

	srv := httptest.NewServer(server.SetupRoutes(hub))

	cfg := server.NewConfig()
	cfg.AllowedOrigins = append(cfg.AllowedOrigins, srv.URL)
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)

	t.Cleanup(func() {
		_ = hub.Shutdown(time.Second)
		srv.Close()
		server.SetConfig(nil)
	})
	return srv, hub
}

// WebSocketURL turns an httptest server URL into its /ws endpoint.
func WebSocketURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// DialWithOrigin opens a WebSocket connection sending the given Origin header.
func DialWithOrigin(srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(WebSocketURL(srv), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Connect dials srv from an allowed origin, consumes the userId greeting and
// returns the connection with its id.
func Connect(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()

	conn, _, err := DialWithOrigin(srv, srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var greeting struct {
		ID string `json:"id"`
	}
	Decode(t, ExpectEvent(t, conn, "userId"), &greeting)
	require.NotEmpty(t, greeting.ID)
	return conn, greeting.ID
}

// Send writes one {"event","data"} frame.
func Send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// ReadEvent reads the next frame as an Envelope.
func ReadEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// ExpectEvent reads the next frame and requires it to carry event.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	env := ReadEvent(t, conn)
	require.Equal(t, event, env.Event, "unexpected event with data %s", string(env.Data))
	return env
}

// Decode unmarshals the envelope's data into v.
func Decode(t *testing.T, env Envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// ExpectNoMessage requires that nothing arrives on conn within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))

	_, payload, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, got %s", string(payload))

	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected read error: %v", err)
}

// MakeRequest executes an HTTP request with a 5-second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
