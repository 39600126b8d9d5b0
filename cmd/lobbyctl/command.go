package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benlongcp/lobby/internal/protocol"
)

var (
	errQuit = errors.New("quit")
	errHelp = errors.New("help")
)

const helpText = `commands:
  invite <name>...   invite users to your room
  accept <name>      accept the invite from name
  decline <name>     decline the invite from name
  create             open your room
  join <room id>     join a room, e.g. join alice's room
  leave              leave your room
  help               show this text
  quit               disconnect`

// parseCommand turns one line of user input into a wire message. name is the
// local display name, sent as the legacy usernames field on leave.
//
// Postcondition: Returns (msg, nil), (nil, nil) for a blank line, or an error;
// errQuit or errHelp for those commands.
func parseCommand(line, name string) (map[string]any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "invite":
		if len(args) == 0 {
			return nil, errors.New("usage: invite <name> [name...]")
		}
		return map[string]any{"type": protocol.KindInvite, "to": args}, nil
	case "accept", "decline":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: %s <name>", fields[0])
		}
		return map[string]any{
			"type":     protocol.KindInviteResponse,
			"from":     args[0],
			"accepted": strings.EqualFold(fields[0], "accept"),
		}, nil
	case "create":
		return map[string]any{"type": protocol.KindCreateRoom}, nil
	case "join":
		roomID := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if roomID == "" {
			return nil, errors.New("usage: join <room id>")
		}
		return map[string]any{"type": protocol.KindJoinRoom, "room_id": roomID}, nil
	case "leave":
		return map[string]any{"type": protocol.KindLeaveRoom, "usernames": []string{name}}, nil
	case "quit", "exit":
		return nil, errQuit
	case "help":
		return nil, errHelp
	default:
		return nil, fmt.Errorf("unknown command %q, try help", fields[0])
	}
}
