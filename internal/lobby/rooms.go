package lobby

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// roomSuffix turns an owner name into a room id.
const roomSuffix = "'s room"

var (
	// ErrRoomNotFound is returned when joining a room that does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotInvited is returned when a join is refused by the room's invite list.
	ErrNotInvited = errors.New("not invited")
)

// RoomID derives the id of the room owned by owner.
func RoomID(owner string) string {
	return owner + roomSuffix
}

// OwnerOf recovers the owner name from a room id.
//
// Postcondition: Returns ("", false) if roomID was not derived by RoomID.
func OwnerOf(roomID string) (string, bool) {
	owner, ok := strings.CutSuffix(roomID, roomSuffix)
	if !ok {
		return "", false
	}
	return strings.TrimRight(owner, " "), true
}

// InviteeMemory is the per-room record of every name ever invited. Rooms
// consult it to authorize joins and clear it when a room goes away.
type InviteeMemory interface {
	// Invited reports whether name was ever invited to roomID.
	Invited(roomID, name string) bool
	// HasInvitees reports whether anyone was ever invited to roomID.
	HasInvitees(roomID string) bool
	// Forget discards the memory for roomID.
	Forget(roomID string)
}

// Room is a named group of members in join order.
type Room struct {
	ID        string
	Owner     string
	Members   []string
	CreatedAt time.Time
}

// Departure describes the effect of a member leaving one room.
type Departure struct {
	RoomID string
	// Remaining is the member list after the departure; empty when Closed.
	Remaining []string
	// Closed is true when the departure emptied and destroyed the room.
	Closed bool
}

// Rooms owns room existence and membership. It is not safe for concurrent
// use; the Coordinator serializes access.
type Rooms struct {
	rooms    map[string]*Room
	order    []string                       // room ids, creation order
	memberOf map[string]map[string]struct{} // name → ids of rooms it is in
	memory   InviteeMemory
}

// NewRooms creates an empty room registry backed by the given invitee memory.
//
// Precondition: memory must be non-nil.
func NewRooms(memory InviteeMemory) *Rooms {
	return &Rooms{
		rooms:    make(map[string]*Room),
		memberOf: make(map[string]map[string]struct{}),
		memory:   memory,
	}
}

// Create opens owner's room with owner as its first member. If the room
// already exists it is kept as is and owner rejoins it; an existing room is
// never overwritten.
//
// Postcondition: Returns the member list and whether a new room was created.
func (r *Rooms) Create(owner string) ([]string, bool) {
	id := RoomID(owner)
	if room, ok := r.rooms[id]; ok {
		r.addMember(room, owner)
		return slices.Clone(room.Members), false
	}
	room := r.open(id, owner)
	r.addMember(room, owner)
	return slices.Clone(room.Members), true
}

// Join adds name to roomID after checking, in order: name owns the room;
// the room has no invitee memory (open room); name is in the invitee memory.
//
// Postcondition: Returns the member list and whether name was newly added,
// or ErrRoomNotFound / ErrNotInvited with no state change.
func (r *Rooms) Join(name, roomID string) ([]string, bool, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}
	if !r.authorized(name, roomID) {
		return nil, false, ErrNotInvited
	}
	added := r.addMember(room, name)
	return slices.Clone(room.Members), added, nil
}

func (r *Rooms) authorized(name, roomID string) bool {
	if owner, ok := OwnerOf(roomID); ok && owner == name {
		return true
	}
	if !r.memory.HasInvitees(roomID) {
		return true
	}
	return r.memory.Invited(roomID, name)
}

// Admit creates roomID if needed and adds every name to it, skipping names
// that are already members. The invitee memory is left untouched.
//
// Postcondition: Returns the resulting member list.
func (r *Rooms) Admit(roomID string, names ...string) []string {
	room, ok := r.rooms[roomID]
	if !ok {
		owner, _ := OwnerOf(roomID)
		room = &Room{ID: roomID, Owner: owner, CreatedAt: time.Now()}
		r.rooms[roomID] = room
		r.order = append(r.order, roomID)
	}
	for _, name := range names {
		r.addMember(room, name)
	}
	return slices.Clone(room.Members)
}

// Leave removes name from every room it belongs to. Rooms left empty are
// destroyed and their invitee memory is forgotten.
//
// Postcondition: Returns one Departure per affected room in creation order;
// empty if name was in no room.
func (r *Rooms) Leave(name string) []Departure {
	ids := r.memberOf[name]
	if len(ids) == 0 {
		return nil
	}
	delete(r.memberOf, name)

	var departures []Departure
	for _, id := range slices.Clone(r.order) {
		if _, ok := ids[id]; !ok {
			continue
		}
		room := r.rooms[id]
		room.Members = lo.Without(room.Members, name)
		if len(room.Members) == 0 {
			r.destroy(id)
			departures = append(departures, Departure{RoomID: id, Closed: true})
			continue
		}
		departures = append(departures, Departure{RoomID: id, Remaining: slices.Clone(room.Members)})
	}
	return departures
}

// InRoom reports whether name is a member of any room.
func (r *Rooms) InRoom(name string) bool {
	return len(r.memberOf[name]) > 0
}

// Members returns the member list of roomID.
func (r *Rooms) Members(roomID string) ([]string, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return slices.Clone(room.Members), true
}

// Exists reports whether roomID is open.
func (r *Rooms) Exists(roomID string) bool {
	_, ok := r.rooms[roomID]
	return ok
}

// OpenRooms returns the ids of all existing rooms in creation order.
func (r *Rooms) OpenRooms() []string {
	return slices.Clone(r.order)
}

// Count returns the number of existing rooms.
func (r *Rooms) Count() int {
	return len(r.rooms)
}

// open creates an empty open room. Any invitee memory left for the id from
// invites sent before the room existed is cleared.
func (r *Rooms) open(id, owner string) *Room {
	room := &Room{ID: id, Owner: owner, CreatedAt: time.Now()}
	r.rooms[id] = room
	r.order = append(r.order, id)
	r.memory.Forget(id)
	return room
}

func (r *Rooms) destroy(id string) {
	delete(r.rooms, id)
	r.order = lo.Without(r.order, id)
	r.memory.Forget(id)
}

// addMember appends name unless already present and updates the in-room index
// in the same step. Returns true if name was added.
func (r *Rooms) addMember(room *Room, name string) bool {
	if slices.Contains(room.Members, name) {
		return false
	}
	room.Members = append(room.Members, name)
	ids, ok := r.memberOf[name]
	if !ok {
		ids = make(map[string]struct{})
		r.memberOf[name] = ids
	}
	ids[room.ID] = struct{}{}
	return true
}
