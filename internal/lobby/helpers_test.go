package lobby

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// received is a decoded server frame with the union of all message fields.
type received struct {
	Type      string   `json:"type"`
	Users     []string `json:"users"`
	OpenRooms []string `json:"open_rooms"`
	From      string   `json:"from"`
	Accepted  bool     `json:"accepted"`
	Usernames []string `json:"usernames"`
	Reason    string   `json:"reason"`
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return NewCoordinator(zaptest.NewLogger(t), 256)
}

// drain returns every frame currently queued for s without blocking.
func drain(t *testing.T, s *Session) []received {
	t.Helper()
	var out []received
	for {
		select {
		case frame, ok := <-s.Outbox().Frames():
			if !ok {
				return out
			}
			var msg received
			require.NoError(t, json.Unmarshal(frame, &msg), "frame %s", frame)
			out = append(out, msg)
		default:
			return out
		}
	}
}

func ofType(msgs []received, kind string) []received {
	var out []received
	for _, m := range msgs {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func types(msgs []received) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

// connectAll connects the named sessions and discards their initial frames.
func connectAll(t *testing.T, c *Coordinator, names ...string) []*Session {
	t.Helper()
	sessions := make([]*Session, 0, len(names))
	for _, name := range names {
		sessions = append(sessions, c.Connect(name))
	}
	for _, s := range sessions {
		drain(t, s)
	}
	return sessions
}
