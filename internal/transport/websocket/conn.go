// Package websocket serves lobby clients over WebSocket: it upgrades HTTP
// requests, runs a write pump per connection and exposes the inbound frame
// stream to a connection handler.
package websocket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/benlongcp/lobby/internal/config"
)

// ErrClosed is returned by ReadFrame after the connection has been closed.
var ErrClosed = errors.New("connection closed")

// Conn wraps an upgraded WebSocket with keepalive handling and a single
// writer goroutine. ReadFrame must be called from one goroutine only.
type Conn struct {
	ws     *gws.Conn
	remote string
	cfg    config.WebSocketConfig
	logger *zap.Logger

	mu       sync.Mutex
	attached bool
	pumpDone chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn configures ws and wraps it.
//
// Precondition: ws must be an open, freshly upgraded connection; cfg must be valid.
// Postcondition: The read limit and the initial read deadline are set.
func NewConn(ws *gws.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *Conn {
	c := &Conn{
		ws:       ws,
		remote:   ws.RemoteAddr().String(),
		cfg:      cfg,
		logger:   logger,
		pumpDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	ws.SetReadLimit(cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})
	return c
}

// ReadFrame blocks for the next text or binary message. Every message
// received extends the read deadline.
//
// Postcondition: Returns the message payload, or an error once the peer
// goes away, the deadline passes or the connection is closed.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	return data, nil
}

// Attach starts the write pump for frames. Only the first call has an effect.
//
// Postcondition: frames is drained to the peer until it is closed, at which
// point a normal close frame is sent and the socket is closed.
func (c *Conn) Attach(frames <-chan []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return
	}
	c.attached = true
	go c.writePump(frames)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// GoingAway sends a going-away close frame and closes the socket, which
// unblocks a pending ReadFrame. It is safe to call from any goroutine.
func (c *Conn) GoingAway(reason string) {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	_ = c.ws.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseGoingAway, reason), deadline)
	c.closeSocket()
}

// Close waits up to the write timeout for the write pump to flush, then
// closes the socket. Close is idempotent.
func (c *Conn) Close() error {
	if c.isAttached() {
		select {
		case <-c.pumpDone:
		case <-time.After(c.cfg.WriteTimeout):
			c.logger.Debug("write pump did not finish before close",
				zap.String("remote_addr", c.remote),
			)
		}
	}
	c.closeSocket()
	return nil
}

func (c *Conn) isAttached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

func (c *Conn) closeSocket() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writePump is the only goroutine that writes data frames.
func (c *Conn) writePump(frames <-chan []byte) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(c.pumpDone)
	}()

	for {
		select {
		case frame, ok := <-frames:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
				c.closeSocket()
				return
			}
			if err := c.ws.WriteMessage(gws.TextMessage, frame); err != nil {
				c.logger.Debug("write failed",
					zap.String("remote_addr", c.remote),
					zap.Error(err),
				)
				c.closeSocket()
				drain(frames)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(gws.PingMessage, nil, deadline); err != nil {
				c.closeSocket()
				drain(frames)
				return
			}
		case <-c.closed:
			drain(frames)
			return
		}
	}
}

// drain discards frames until the outbox is closed.
func drain(frames <-chan []byte) {
	for range frames {
	}
}
