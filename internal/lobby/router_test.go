package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/benlongcp/lobby/internal/protocol"
)

// fakeConn feeds scripted inbound frames and collects outbound ones.
type fakeConn struct {
	inbound chan []byte

	mu       sync.Mutex
	outbound []received
	attached int
	done     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (f *fakeConn) send(frame string) { f.inbound <- []byte(frame) }

// hangUp makes the next ReadFrame fail as a closed peer would.
func (f *fakeConn) hangUp() { close(f.inbound) }

func (f *fakeConn) ReadFrame() ([]byte, error) {
	frame, ok := <-f.inbound
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (f *fakeConn) Attach(frames <-chan []byte) {
	f.mu.Lock()
	f.attached++
	f.mu.Unlock()
	go func() {
		defer close(f.done)
		for frame := range frames {
			var msg received
			if err := json.Unmarshal(frame, &msg); err != nil {
				continue
			}
			f.mu.Lock()
			f.outbound = append(f.outbound, msg)
			f.mu.Unlock()
		}
	}()
}

func (f *fakeConn) RemoteAddr() string { return "fake:0" }

// wait blocks until the outbox has been closed and fully drained.
func (f *fakeConn) wait(t *testing.T) []received {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("outbox was never closed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]received(nil), f.outbound...)
}

func serve(t *testing.T, r *Router, conn *fakeConn) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- r.Serve(context.Background(), conn) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestRouter_HandshakeRegistersName(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	conn := newFakeConn()
	conn.send("alice")
	conn.hangUp()

	err := waitErr(t, serve(t, r, conn))
	assert.ErrorIs(t, err, io.EOF)

	msgs := conn.wait(t)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "lobby_update", msgs[0].Type)
	assert.Equal(t, []string{"alice"}, msgs[0].Users)
	assert.Equal(t, 1, conn.attached)
}

func TestRouter_HandshakeFailure(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	conn := newFakeConn()
	conn.hangUp()

	err := waitErr(t, serve(t, r, conn))
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, conn.attached)
	sessions, _ := c.Counts()
	assert.Zero(t, sessions)
}

func TestRouter_DispatchesCreateRoom(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	conn := newFakeConn()
	conn.send("alice")
	conn.send(`{"type":"create_room"}`)
	conn.hangUp()

	waitErr(t, serve(t, r, conn))
	msgs := conn.wait(t)
	assert.Equal(t, []string{"lobby_update", "room_joined", "lobby_update"}, types(msgs))
	assert.Equal(t, []string{"alice"}, msgs[1].Usernames)
}

func TestRouter_IgnoresUnknownAndInvalid(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	conn := newFakeConn()
	conn.send("alice")
	conn.send(`{"type":"dance"}`)
	conn.send(`{"no_type":true}`)
	conn.send(`{"type":"join_room"}`)
	conn.send(`{"type":"invite_response","accepted":true}`)
	conn.send(`{"type":"leave_room"}`)
	conn.hangUp()

	err := waitErr(t, serve(t, r, conn))
	assert.ErrorIs(t, err, io.EOF, "only the hang-up ends the loop")
	assert.Equal(t, []string{"lobby_update", "room_left"}, types(conn.wait(t)))
}

func TestRouter_MalformedFrameClosesConnection(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	watcher := c.Connect("watcher")

	conn := newFakeConn()
	conn.send("alice")
	conn.send(`{"type":"create_room"`)
	conn.send(`{"type":"create_room"}`)

	err := waitErr(t, serve(t, r, conn))
	assert.ErrorIs(t, err, protocol.ErrMalformed)
	assert.NotContains(t, types(conn.wait(t)), "room_joined", "frames after the bad one are not processed")

	assert.Equal(t, []string{"watcher"}, c.Snapshot().Users)
	assert.Equal(t, StateInLobby, c.State(watcher))
}

func TestRouter_TeardownCleansUpOnce(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	s := connectAll(t, c, "bob")
	bob := s[0]

	conn := newFakeConn()
	conn.send("alice")
	conn.send(`{"type":"create_room"}`)
	conn.send(`{"type":"invite","to":"bob"}`)
	errc := serve(t, r, conn)

	require.Eventually(t, func() bool {
		return len(ofType(drain(t, bob), "invite_received")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.JoinRoom(bob, "alice's room")
	conn.hangUp()
	require.ErrorIs(t, waitErr(t, errc), io.EOF)

	msgs := drain(t, bob)
	updates := ofType(msgs, "room_update")
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"bob"}, updates[0].Usernames)
	assert.Equal(t, []string{"bob (in room)"}, c.Snapshot().Users)
	assert.Equal(t, []string{"alice's room"}, c.Snapshot().OpenRooms)

	// Bob's pending invite from alice is gone with her.
	c.Respond(bob, "alice", true)
	assert.Empty(t, drain(t, bob))
}

func TestRouter_ContextCancelStopsLoop(t *testing.T) {
	c := newTestCoordinator(t)
	r := NewRouter(c, zaptest.NewLogger(t))
	conn := newFakeConn()
	conn.send("alice")
	conn.send(`{"type":"leave_room"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Serve(ctx, conn)
	assert.True(t, errors.Is(err, context.Canceled))
	conn.wait(t)
	sessions, _ := c.Counts()
	assert.Zero(t, sessions)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "in_lobby", StateInLobby.String())
	assert.Equal(t, "invite_requested", StateInviteRequested.String())
	assert.Equal(t, "in_room", StateInRoom.String())
	assert.Equal(t, "state(42)", State(42).String())
}
