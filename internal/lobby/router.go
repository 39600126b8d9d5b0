package lobby

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/benlongcp/lobby/internal/protocol"
)

// State is a connection's position in the lobby state machine.
type State int

const (
	StateConnecting State = iota
	StateInLobby
	StateInviteRequested
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateInLobby:
		return "in_lobby"
	case StateInviteRequested:
		return "invite_requested"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the transport seen by the Router.
type Conn interface {
	// ReadFrame blocks for the next inbound frame.
	ReadFrame() ([]byte, error)
	// Attach starts writing frames from the channel to the peer until the
	// channel is closed.
	Attach(frames <-chan []byte)
	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// Router runs the receive loop of each connection and dispatches decoded
// frames to the Coordinator.
type Router struct {
	coord   *Coordinator
	decoder *protocol.Decoder
	logger  *zap.Logger
}

// NewRouter creates a Router.
//
// Precondition: coord and logger must be non-nil.
func NewRouter(coord *Coordinator, logger *zap.Logger) *Router {
	return &Router{
		coord:   coord,
		decoder: protocol.NewDecoder(),
		logger:  logger,
	}
}

// Serve handles one connection from handshake to teardown. The first frame
// is the raw display name. Teardown runs exactly once, whatever ends the loop.
//
// Postcondition: The connection's session, if any, is disconnected. Returns
// the error that ended the loop.
func (r *Router) Serve(ctx context.Context, conn Conn) error {
	logger := r.logger.With(zap.String("remote_addr", conn.RemoteAddr()))

	name, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("reading handshake: %w", err)
	}
	s := r.coord.Connect(string(name))
	conn.Attach(s.Outbox().Frames())
	defer r.coord.Disconnect(s)

	logger = logger.With(zap.String("session", s.ID()), zap.String("name", s.Name()))
	state := StateInLobby
	logger.Debug("state transition",
		zap.Stringer("from", StateConnecting),
		zap.Stringer("to", state),
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := conn.ReadFrame()
		if err != nil {
			return err
		}

		req, err := r.decoder.Decode(frame)
		switch {
		case errors.Is(err, protocol.ErrInvalid):
			logger.Debug("dropping invalid frame", zap.Error(err))
			continue
		case err != nil:
			logger.Info("protocol error, closing connection", zap.Error(err))
			return err
		}

		r.dispatch(s, req, logger)

		if next := r.coord.State(s); next != state {
			logger.Debug("state transition",
				zap.Stringer("from", state),
				zap.Stringer("to", next),
			)
			state = next
		}
	}
}

func (r *Router) dispatch(s *Session, req protocol.Request, logger *zap.Logger) {
	switch m := req.(type) {
	case protocol.Invite:
		r.coord.Invite(s, m.To)
	case protocol.InviteResponse:
		r.coord.Respond(s, m.From, m.Accepted)
	case protocol.CreateRoom:
		r.coord.CreateRoom(s)
	case protocol.JoinRoom:
		r.coord.JoinRoom(s, m.RoomID)
	case protocol.LeaveRoom:
		r.coord.LeaveRoom(s)
	default:
		logger.Debug("ignoring unknown frame", zap.String("kind", string(req.Kind())))
	}
}
