// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a decoded server message with the union of all message fields.
type Frame struct {
	Type      string   `json:"type"`
	Users     []string `json:"users"`
	OpenRooms []string `json:"open_rooms"`
	From      string   `json:"from"`
	Accepted  bool     `json:"accepted"`
	Usernames []string `json:"usernames"`
	Reason    string   `json:"reason"`
}

// WSClient is a simple WebSocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// WSURL turns an httptest server URL ("http://host:port") plus path into a
// WebSocket URL.
func WSURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// NewWSClient dials url and returns a test client.
//
// Precondition: url must be a ws:// URL with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	return NewWSClientWithHeader(t, url, nil)
}

// NewWSClientWithHeader dials url sending header with the handshake.
func NewWSClientWithHeader(t *testing.T, url string, header http.Header) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// Handshake sends the display name as the first frame.
func (c *WSClient) Handshake(name string) {
	c.t.Helper()
	c.SendRaw(name)
}

// Send encodes msg as JSON and sends it as a text frame.
func (c *WSClient) Send(msg any) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("encoding %v: %v", msg, err)
	}
	c.SendRaw(string(data))
}

// SendRaw sends text as a single text frame.
func (c *WSClient) SendRaw(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Read returns the next frame or fails the test on timeout.
func (c *WSClient) Read(timeout time.Duration) Frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var f Frame
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		c.t.Fatalf("decoding frame %s: %v", data, err)
	}
	return f
}

// ReadUntil reads frames until one matches pred or timeout occurs.
//
// Postcondition: Returns the matching frame, or fails on timeout.
func (c *WSClient) ReadUntil(pred func(Frame) bool, timeout time.Duration) Frame {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no matching frame within %s", timeout)
		}
		if f := c.Read(remaining); pred(f) {
			return f
		}
	}
}

// ReadType reads frames until one of the given type arrives.
func (c *WSClient) ReadType(kind string, timeout time.Duration) Frame {
	c.t.Helper()
	return c.ReadUntil(func(f Frame) bool { return f.Type == kind }, timeout)
}

// ReadClose reads until the server closes the connection and returns the
// close error.
func (c *WSClient) ReadClose(timeout time.Duration) error {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
