package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/benlongcp/lobby/internal/lobby"
	"github.com/benlongcp/lobby/internal/protocol"
)

// event is a server frame with the union of all message fields.
type event struct {
	Type      protocol.Kind `json:"type"`
	Users     []string      `json:"users"`
	OpenRooms []string      `json:"open_rooms"`
	From      string        `json:"from"`
	Accepted  bool          `json:"accepted"`
	Usernames []string      `json:"usernames"`
	Reason    string        `json:"reason"`
}

// renderer prints server frames for a human.
type renderer struct {
	out     io.Writer
	colours bool
}

func (r *renderer) paint(style color.Style, s string) string {
	if !r.colours {
		return s
	}
	return style.Render(s)
}

// Render decodes frame and prints it. Lobby snapshots are drawn as a table.
func (r *renderer) Render(frame []byte) error {
	var ev event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}

	switch ev.Type {
	case protocol.KindLobbyUpdate:
		r.lobby(ev)
	case protocol.KindInviteReceived:
		r.line(color.New(color.FgCyan, color.OpBold), "invite from %s (accept %s / decline %s)", ev.From, ev.From, ev.From)
	case protocol.KindInviteResult:
		verdict := lo.Ternary(ev.Accepted, "accepted", "declined")
		r.line(color.New(color.FgCyan), "%s %s your invite", ev.From, verdict)
	case protocol.KindRoomJoined:
		r.line(color.New(color.FgGreen, color.OpBold), "joined room with %s", strings.Join(ev.Usernames, ", "))
	case protocol.KindRoomUpdate:
		r.line(color.New(color.FgGreen), "room members: %s", strings.Join(ev.Usernames, ", "))
	case protocol.KindRoomLeft:
		r.line(color.New(color.FgYellow), "left room")
	case protocol.KindRoomJoinDenied:
		r.line(color.New(color.FgRed, color.OpBold), "join denied: %s", ev.Reason)
	default:
		r.line(color.New(color.FgDarkGray), "unhandled frame %s", frame)
	}
	return nil
}

func (r *renderer) line(style color.Style, format string, args ...any) {
	fmt.Fprintln(r.out, r.paint(style, fmt.Sprintf(format, args...)))
}

func (r *renderer) lobby(ev event) {
	rows := max(len(ev.Users), len(ev.OpenRooms))
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"User", "Status", "Open room"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i := 0; i < rows; i++ {
		var user, status, room string
		if i < len(ev.Users) {
			name, inRoom := strings.CutSuffix(ev.Users[i], lobby.InRoomMarker)
			user = name
			status = lo.Ternary(inRoom, r.paint(color.New(color.FgGreen), "in room"), "lobby")
		}
		if i < len(ev.OpenRooms) {
			room = ev.OpenRooms[i]
		}
		table.Append([]string{user, status, room})
	}
	table.Render()
}
