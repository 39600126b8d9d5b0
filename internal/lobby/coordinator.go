package lobby

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/benlongcp/lobby/internal/protocol"
)

// Coordinator owns the connection, room and invite registries and applies
// every lobby operation as one atomic unit under a single mutex.
//
// Outbound messages are pushed onto session outboxes while the lock is
// held. Pushes never block, so per-connection ordering follows mutation
// order; the network writes that can stall happen in each connection's
// write pump, outside the lock.
type Coordinator struct {
	mu          sync.Mutex
	conns       *Connections
	rooms       *Rooms
	invites     *Invites
	broadcaster *Broadcaster
	sendBuffer  int
	logger      *zap.Logger
}

// NewCoordinator creates a Coordinator whose sessions queue up to
// sendBuffer outbound frames.
//
// Precondition: logger must be non-nil.
func NewCoordinator(logger *zap.Logger, sendBuffer int) *Coordinator {
	invites := NewInvites()
	return &Coordinator{
		conns:       NewConnections(),
		rooms:       NewRooms(invites),
		invites:     invites,
		broadcaster: NewBroadcaster(logger),
		sendBuffer:  sendBuffer,
		logger:      logger,
	}
}

// Connect registers a new session for name and refreshes the lobby.
//
// Postcondition: Returns the registered session; every session, including
// the new one, has a lobby_update queued.
func (c *Coordinator) Connect(name string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.conns.Register(name, NewOutbox(c.sendBuffer))
	c.logger.Info("session connected",
		zap.String("session", s.id),
		zap.String("name", name),
		zap.Int("sessions", c.conns.Count()),
	)
	c.refresh()
	return s
}

// Disconnect tears a session down: unregister, drop its invites as inviter
// and invitee, remove it from every room, then refresh the lobby so the
// snapshot reflects the cleanup. Calling it again is a no-op.
//
// Postcondition: The session's outbox is closed.
func (c *Coordinator) Disconnect(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer s.outbox.Close()

	if !c.conns.Unregister(s) {
		return
	}
	c.invites.Drop(s)
	departures := c.leaveRooms(s.name)
	c.logger.Info("session disconnected",
		zap.String("session", s.id),
		zap.String("name", s.name),
		zap.Int("rooms_left", len(departures)),
		zap.Int("sessions", c.conns.Count()),
	)
	c.refresh()
}

// Invite sends invites from s to each named user. Unknown names, the
// sender itself and invites already pending from s are skipped silently.
func (c *Coordinator) Invite(s *Session, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.conns.Contains(s) {
		return
	}
	var targets []*Session
	for _, name := range names {
		target, ok := c.conns.FindByName(name)
		if !ok {
			c.logger.Debug("invite target not connected",
				zap.String("session", s.id),
				zap.String("target", name),
			)
			continue
		}
		targets = append(targets, target)
	}

	invited := c.invites.Invite(s, targets)
	c.deliver(invited, protocol.NewInviteReceived(s.name))
	if len(invited) > 0 {
		c.logger.Info("invites sent",
			zap.String("session", s.id),
			zap.String("room", RoomID(s.name)),
			zap.Int("count", len(invited)),
		)
	}
}

// Respond answers the invite s holds from the user named from. Responses
// that match no pending invite are dropped. An acceptance puts inviter and
// invitee in the inviter's room, creating it if needed.
func (c *Coordinator) Respond(s *Session, from string, accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inviter, ok := c.invites.Resolve(s, from)
	if !ok {
		c.logger.Debug("invite response without pending invite",
			zap.String("session", s.id),
			zap.String("from", from),
		)
		return
	}
	c.deliver([]*Session{inviter}, protocol.NewInviteResult(s.name, accepted))
	if !accepted {
		return
	}

	roomID := RoomID(inviter.name)
	members := c.rooms.Admit(roomID, inviter.name, s.name)
	c.logger.Info("invite accepted",
		zap.String("room", roomID),
		zap.Strings("members", members),
	)
	c.deliver(c.conns.SessionsNamed(members), protocol.NewRoomJoined(members))
	c.refresh()
}

// CreateRoom opens the room owned by s. When the room already exists, s
// rejoins it and the current members are kept.
func (c *Coordinator) CreateRoom(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.conns.Contains(s) {
		return
	}
	before, existed := c.rooms.Members(RoomID(s.name))
	members, created := c.rooms.Create(s.name)
	c.logger.Info("room created",
		zap.String("room", RoomID(s.name)),
		zap.Bool("new", created),
		zap.Strings("members", members),
	)

	switch {
	case existed && len(members) > len(before):
		c.deliver(c.conns.SessionsNamed(members), protocol.NewRoomJoined(members))
	default:
		c.deliver([]*Session{s}, protocol.NewRoomJoined(members))
	}
	if created || len(members) > len(before) {
		c.refresh()
	}
}

// JoinRoom adds s to roomID if authorized. A refused join is answered with
// room_join_denied and changes nothing; a join to a missing room is dropped.
func (c *Coordinator) JoinRoom(s *Session, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.conns.Contains(s) {
		return
	}
	members, added, err := c.rooms.Join(s.name, roomID)
	switch {
	case errors.Is(err, ErrNotInvited):
		c.logger.Info("join denied",
			zap.String("session", s.id),
			zap.String("room", roomID),
		)
		c.deliver([]*Session{s}, protocol.NewRoomJoinDenied(err.Error()))
		return
	case err != nil:
		c.logger.Debug("join failed",
			zap.String("session", s.id),
			zap.String("room", roomID),
			zap.Error(err),
		)
		return
	}

	if !added {
		c.deliver([]*Session{s}, protocol.NewRoomJoined(members))
		return
	}
	c.logger.Info("room joined",
		zap.String("session", s.id),
		zap.String("room", roomID),
		zap.Strings("members", members),
	)
	c.deliver(c.conns.SessionsNamed(members), protocol.NewRoomJoined(members))
	c.refresh()
}

// LeaveRoom removes s from every room it is in, tells the remaining members,
// confirms with room_left and refreshes the lobby.
func (c *Coordinator) LeaveRoom(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.conns.Contains(s) {
		return
	}
	departures := c.leaveRooms(s.name)
	c.deliver([]*Session{s}, protocol.NewRoomLeft())
	if len(departures) > 0 {
		c.refresh()
	}
}

// Snapshot returns the current lobby view.
func (c *Coordinator) Snapshot() protocol.LobbyUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcaster.Snapshot(c.conns, c.rooms)
}

// State reports the connection state of s as seen by the registries.
func (c *Coordinator) State(s *Session) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.conns.Contains(s):
		return StateDisconnected
	case c.rooms.InRoom(s.name):
		return StateInRoom
	case c.invites.HasPending(s):
		return StateInviteRequested
	default:
		return StateInLobby
	}
}

// Counts returns the number of connected sessions and open rooms.
func (c *Coordinator) Counts() (sessions, rooms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns.Count(), c.rooms.Count()
}

// leaveRooms removes name from its rooms and sends room_update to the
// members left behind. Caller holds c.mu.
func (c *Coordinator) leaveRooms(name string) []Departure {
	departures := c.rooms.Leave(name)
	for _, d := range departures {
		if d.Closed {
			c.logger.Info("room closed", zap.String("room", d.RoomID))
			continue
		}
		c.deliver(c.conns.SessionsNamed(d.Remaining), protocol.NewRoomUpdate(d.Remaining))
	}
	return departures
}

// refresh sends the current snapshot to every session. Caller holds c.mu.
func (c *Coordinator) refresh() {
	snapshot := c.broadcaster.Snapshot(c.conns, c.rooms)
	c.deliver(c.conns.All(), snapshot)
}

// deliver pushes msg to sessions and logs partial failures. Caller holds c.mu.
func (c *Coordinator) deliver(sessions []*Session, msg any) {
	if err := c.broadcaster.Deliver(sessions, msg); err != nil {
		c.logger.Warn("delivery failed", zap.Error(err))
	}
}
