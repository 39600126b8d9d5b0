package lobby

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/benlongcp/lobby/internal/protocol"
)

// InRoomMarker is appended to the names of users who are in a room.
const InRoomMarker = " (in room)"

// Broadcaster computes lobby snapshots and fans encoded messages out to
// session outboxes.
type Broadcaster struct {
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
//
// Precondition: logger must be non-nil.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{logger: logger}
}

// Snapshot computes the lobby view: every connected session's name in
// connection order, marked when the name is in a room, plus the open room ids.
func (b *Broadcaster) Snapshot(conns *Connections, rooms *Rooms) protocol.LobbyUpdate {
	users := lo.Map(conns.All(), func(s *Session, _ int) string {
		if rooms.InRoom(s.name) {
			return s.name + InRoomMarker
		}
		return s.name
	})
	return protocol.NewLobbyUpdate(users, rooms.OpenRooms())
}

// Deliver encodes msg once and pushes it to every session. A session whose
// outbox is full is evicted by closing its outbox, which ends its
// connection; delivery to the remaining sessions continues regardless.
//
// Postcondition: Returns the combined per-session failures, or nil.
func (b *Broadcaster) Deliver(sessions []*Session, msg any) error {
	if len(sessions) == 0 {
		return nil
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	var errs error
	for _, s := range sessions {
		if err := s.outbox.Push(frame); err != nil {
			if errors.Is(err, ErrOutboxFull) {
				b.logger.Warn("evicting slow session",
					zap.String("session", s.id),
					zap.String("name", s.name),
				)
				s.outbox.Close()
			}
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", s, err))
		}
	}
	return errs
}
