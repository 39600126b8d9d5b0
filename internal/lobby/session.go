// Package lobby is the session-coordination engine: it tracks connected
// sessions, rooms and pending invites, and keeps every client's view of the
// lobby consistent as connections come and go.
package lobby

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOutboxClosed is returned when pushing to a session that has been torn down.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned when a session's outbound queue is saturated.
	ErrOutboxFull = errors.New("outbox full")
)

// Outbox is a session's bounded queue of encoded outbound frames. The
// connection's write pump drains it; pushes never block.
type Outbox struct {
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox holding up to size frames.
//
// Postcondition: Returns an open Outbox. Sizes < 1 fall back to 64.
func NewOutbox(size int) *Outbox {
	if size < 1 {
		size = 64
	}
	return &Outbox{frames: make(chan []byte, size)}
}

// Push enqueues a frame without blocking.
//
// Postcondition: The frame is queued, or ErrOutboxClosed / ErrOutboxFull is returned.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Frames returns the channel the write pump reads from. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the frame channel; already-queued frames remain readable.
// Close is idempotent.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Session is one live connection bound to a display name. Sessions are
// compared by identity; two sessions may share a name.
type Session struct {
	id          string
	name        string
	seq         uint64
	connectedAt time.Time
	outbox      *Outbox
}

func newSession(name string, seq uint64, outbox *Outbox) *Session {
	return &Session{
		id:          uuid.NewString(),
		name:        name,
		seq:         seq,
		connectedAt: time.Now(),
		outbox:      outbox,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Name returns the display name sent in the handshake.
func (s *Session) Name() string { return s.name }

// ConnectedAt returns when the session was registered.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Outbox returns the session's outbound queue.
func (s *Session) Outbox() *Outbox { return s.outbox }

func (s *Session) String() string {
	return fmt.Sprintf("%s(%s)", s.name, s.id)
}
