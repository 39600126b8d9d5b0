package lobby

import (
	"slices"

	"github.com/samber/lo"
)

// Connections is the registry of live sessions and the only source of truth
// for who is connected. It is not safe for concurrent use; the Coordinator
// serializes access.
type Connections struct {
	nextSeq uint64
	order   []*Session            // connection order
	byName  map[string][]*Session // name → sessions, oldest first
}

// NewConnections creates an empty registry.
func NewConnections() *Connections {
	return &Connections{
		byName: make(map[string][]*Session),
	}
}

// Register creates a session for name and adds it to the registry.
// Names are not required to be unique.
//
// Precondition: outbox must be non-nil.
// Postcondition: The returned session is the most recently connected holder of name.
func (c *Connections) Register(name string, outbox *Outbox) *Session {
	c.nextSeq++
	s := newSession(name, c.nextSeq, outbox)
	c.order = append(c.order, s)
	c.byName[name] = append(c.byName[name], s)
	return s
}

// Unregister removes the session. It is a no-op for unknown sessions.
//
// Postcondition: Returns true if the session was registered.
func (c *Connections) Unregister(s *Session) bool {
	idx := slices.Index(c.order, s)
	if idx < 0 {
		return false
	}
	c.order = slices.Delete(c.order, idx, idx+1)

	holders := lo.Without(c.byName[s.name], s)
	if len(holders) == 0 {
		delete(c.byName, s.name)
	} else {
		c.byName[s.name] = holders
	}
	return true
}

// Contains reports whether s is registered.
func (c *Connections) Contains(s *Session) bool {
	return slices.Contains(c.order, s)
}

// FindByName returns the session holding name. When several sessions share
// the name, the most recently connected one is returned.
func (c *Connections) FindByName(name string) (*Session, bool) {
	holders := c.byName[name]
	if len(holders) == 0 {
		return nil, false
	}
	return holders[len(holders)-1], true
}

// SessionsNamed returns every session whose name is in names, in connection order.
func (c *Connections) SessionsNamed(names []string) []*Session {
	return lo.Filter(c.order, func(s *Session, _ int) bool {
		return slices.Contains(names, s.name)
	})
}

// All returns every session in connection order.
func (c *Connections) All() []*Session {
	return slices.Clone(c.order)
}

// Count returns the number of live sessions.
func (c *Connections) Count() int {
	return len(c.order)
}
