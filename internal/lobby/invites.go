package lobby

import (
	"slices"

	"github.com/samber/lo"
)

// Invites tracks outstanding invitations and the per-room invitee memory.
// Pending invites are keyed by session; the memory is keyed by room id and
// name and outlives the invites that populated it. Invites is not safe for
// concurrent use; the Coordinator serializes access.
type Invites struct {
	pending map[*Session][]*Session        // inviter → invitees, invite order
	memory  map[string]map[string]struct{} // room id → names ever invited
}

// NewInvites creates an empty broker.
func NewInvites() *Invites {
	return &Invites{
		pending: make(map[*Session][]*Session),
		memory:  make(map[string]map[string]struct{}),
	}
}

// Invite records invites from inviter to each target, skipping the inviter
// itself and targets already pending from this inviter. Each recorded
// target's name is remembered for the inviter's room.
//
// Postcondition: Returns the targets that were newly invited, in order.
func (iv *Invites) Invite(inviter *Session, targets []*Session) []*Session {
	roomID := RoomID(inviter.name)
	var invited []*Session
	for _, target := range targets {
		if target == inviter || slices.Contains(iv.pending[inviter], target) {
			continue
		}
		iv.pending[inviter] = append(iv.pending[inviter], target)
		iv.remember(roomID, target.name)
		invited = append(invited, target)
	}
	return invited
}

// Resolve finds the inviter named fromName with a pending invite for invitee
// and removes that invite. If several connected inviters share fromName, the
// most recently connected one is chosen.
//
// Postcondition: Returns (inviter, true) with the invite removed, or (nil, false).
func (iv *Invites) Resolve(invitee *Session, fromName string) (*Session, bool) {
	candidates := lo.Filter(lo.Keys(iv.pending), func(inviter *Session, _ int) bool {
		return inviter.name == fromName && slices.Contains(iv.pending[inviter], invitee)
	})
	if len(candidates) == 0 {
		return nil, false
	}
	inviter := lo.MaxBy(candidates, func(a, b *Session) bool { return a.seq > b.seq })
	iv.removePending(inviter, invitee)
	return inviter, true
}

// Drop discards every pending invite s sent or received.
func (iv *Invites) Drop(s *Session) {
	delete(iv.pending, s)
	for inviter := range iv.pending {
		iv.removePending(inviter, s)
	}
}

// HasPending reports whether inviter has invites awaiting an answer.
func (iv *Invites) HasPending(inviter *Session) bool {
	return len(iv.pending[inviter]) > 0
}

// PendingFor returns the invitees still awaiting an answer from inviter.
func (iv *Invites) PendingFor(inviter *Session) []*Session {
	return slices.Clone(iv.pending[inviter])
}

// Invited implements InviteeMemory.
func (iv *Invites) Invited(roomID, name string) bool {
	_, ok := iv.memory[roomID][name]
	return ok
}

// HasInvitees implements InviteeMemory.
func (iv *Invites) HasInvitees(roomID string) bool {
	return len(iv.memory[roomID]) > 0
}

// Forget implements InviteeMemory.
func (iv *Invites) Forget(roomID string) {
	delete(iv.memory, roomID)
}

func (iv *Invites) remember(roomID, name string) {
	names, ok := iv.memory[roomID]
	if !ok {
		names = make(map[string]struct{})
		iv.memory[roomID] = names
	}
	names[name] = struct{}{}
}

func (iv *Invites) removePending(inviter, invitee *Session) {
	remaining := lo.Without(iv.pending[inviter], invitee)
	if len(remaining) == 0 {
		delete(iv.pending, inviter)
		return
	}
	iv.pending[inviter] = remaining
}
