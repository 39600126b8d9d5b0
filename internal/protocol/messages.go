// Package protocol defines the JSON wire messages exchanged between lobby
// clients and the server. Every structured frame carries a "type" field that
// selects its kind; the connection handshake (the raw display name) is not a
// structured frame and never passes through this package.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind is the value of a frame's "type" discriminator.
type Kind string

// Client → server kinds.
const (
	KindInvite         Kind = "invite"
	KindInviteResponse Kind = "invite_response"
	KindCreateRoom     Kind = "create_room"
	KindJoinRoom       Kind = "join_room"
	KindLeaveRoom      Kind = "leave_room"
)

// Server → client kinds.
const (
	KindLobbyUpdate    Kind = "lobby_update"
	KindInviteReceived Kind = "invite_received"
	KindInviteResult   Kind = "invite_result"
	KindRoomJoined     Kind = "room_joined"
	KindRoomUpdate     Kind = "room_update"
	KindRoomLeft       Kind = "room_left"
	KindRoomJoinDenied Kind = "room_join_denied"
)

// Names is a list of display names that also accepts a single JSON string,
// so `"to": "bob"` and `"to": ["bob", "carol"]` decode alike. null decodes
// to an empty list.
type Names []string

// UnmarshalJSON implements json.Unmarshaler.
func (n *Names) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*n = Names{}
		} else {
			*n = Names{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("names must be a string or a list of strings: %w", err)
	}
	if many == nil {
		many = []string{}
	}
	*n = Names(many)
	return nil
}

// Request is a decoded client frame.
type Request interface {
	Kind() Kind
}

// Invite asks the server to invite the named users to the sender's room.
type Invite struct {
	To Names `json:"to"`
}

// InviteResponse answers an invite received from the named inviter.
type InviteResponse struct {
	From     string `json:"from" validate:"required"`
	Accepted bool   `json:"accepted"`
}

// CreateRoom opens a room owned by the sender.
type CreateRoom struct{}

// JoinRoom asks to join an existing room.
type JoinRoom struct {
	RoomID string `json:"room_id" validate:"required"`
}

// LeaveRoom leaves every room the sender is in. Usernames is a legacy field
// older clients send with the member list they believe they are in; it is
// accepted and ignored.
type LeaveRoom struct {
	Usernames []string `json:"usernames,omitempty"`
}

// Unknown is a well-formed frame whose kind the server does not handle.
type Unknown struct {
	Type Kind
}

func (Invite) Kind() Kind         { return KindInvite }
func (InviteResponse) Kind() Kind { return KindInviteResponse }
func (CreateRoom) Kind() Kind     { return KindCreateRoom }
func (JoinRoom) Kind() Kind       { return KindJoinRoom }
func (LeaveRoom) Kind() Kind      { return KindLeaveRoom }
func (u Unknown) Kind() Kind      { return u.Type }

// LobbyUpdate is the full lobby snapshot sent to every connection.
type LobbyUpdate struct {
	Type      Kind     `json:"type"`
	Users     []string `json:"users"`
	OpenRooms []string `json:"open_rooms"`
}

// InviteReceived tells a user they were invited.
type InviteReceived struct {
	Type Kind   `json:"type"`
	From string `json:"from"`
}

// InviteResult tells an inviter how their invite was answered.
type InviteResult struct {
	Type     Kind   `json:"type"`
	From     string `json:"from"`
	Accepted bool   `json:"accepted"`
}

// RoomMembers carries a room's member list; used for room_joined and room_update.
type RoomMembers struct {
	Type      Kind     `json:"type"`
	Usernames []string `json:"usernames"`
}

// RoomLeft confirms a leave request.
type RoomLeft struct {
	Type Kind `json:"type"`
}

// RoomJoinDenied rejects a join request.
type RoomJoinDenied struct {
	Type   Kind   `json:"type"`
	Reason string `json:"reason"`
}

// NewLobbyUpdate builds a lobby_update message.
func NewLobbyUpdate(users, openRooms []string) LobbyUpdate {
	return LobbyUpdate{Type: KindLobbyUpdate, Users: nonNil(users), OpenRooms: nonNil(openRooms)}
}

// NewInviteReceived builds an invite_received message.
func NewInviteReceived(from string) InviteReceived {
	return InviteReceived{Type: KindInviteReceived, From: from}
}

// NewInviteResult builds an invite_result message.
func NewInviteResult(from string, accepted bool) InviteResult {
	return InviteResult{Type: KindInviteResult, From: from, Accepted: accepted}
}

// NewRoomJoined builds a room_joined message.
func NewRoomJoined(usernames []string) RoomMembers {
	return RoomMembers{Type: KindRoomJoined, Usernames: nonNil(usernames)}
}

// NewRoomUpdate builds a room_update message.
func NewRoomUpdate(usernames []string) RoomMembers {
	return RoomMembers{Type: KindRoomUpdate, Usernames: nonNil(usernames)}
}

// NewRoomLeft builds a room_left message.
func NewRoomLeft() RoomLeft {
	return RoomLeft{Type: KindRoomLeft}
}

// NewRoomJoinDenied builds a room_join_denied message.
func NewRoomJoinDenied(reason string) RoomJoinDenied {
	return RoomJoinDenied{Type: KindRoomJoinDenied, Reason: reason}
}

// Encode serializes a server message.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
