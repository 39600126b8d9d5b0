package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnections_RegisterAndAll(t *testing.T) {
	c := NewConnections()
	alice := c.Register("alice", NewOutbox(1))
	bob := c.Register("bob", NewOutbox(1))

	assert.Equal(t, 2, c.Count())
	assert.Equal(t, []*Session{alice, bob}, c.All())
	assert.True(t, c.Contains(alice))
}

func TestConnections_UnregisterIdempotent(t *testing.T) {
	c := NewConnections()
	alice := c.Register("alice", NewOutbox(1))

	assert.True(t, c.Unregister(alice))
	assert.False(t, c.Unregister(alice))
	assert.Equal(t, 0, c.Count())
	_, ok := c.FindByName("alice")
	assert.False(t, ok)
}

func TestConnections_FindByNameMostRecent(t *testing.T) {
	c := NewConnections()
	first := c.Register("bob", NewOutbox(1))
	second := c.Register("bob", NewOutbox(1))

	found, ok := c.FindByName("bob")
	require.True(t, ok)
	assert.Same(t, second, found)

	c.Unregister(second)
	found, ok = c.FindByName("bob")
	require.True(t, ok)
	assert.Same(t, first, found)
}

func TestConnections_FindByNameMissing(t *testing.T) {
	c := NewConnections()
	_, ok := c.FindByName("ghost")
	assert.False(t, ok)
}

func TestConnections_SessionsNamed(t *testing.T) {
	c := NewConnections()
	alice := c.Register("alice", NewOutbox(1))
	_ = c.Register("bob", NewOutbox(1))
	carol := c.Register("carol", NewOutbox(1))
	alice2 := c.Register("alice", NewOutbox(1))

	got := c.SessionsNamed([]string{"carol", "alice"})
	assert.Equal(t, []*Session{alice, carol, alice2}, got)
	assert.Empty(t, c.SessionsNamed(nil))
}

func TestConnections_AllIsACopy(t *testing.T) {
	c := NewConnections()
	c.Register("alice", NewOutbox(1))
	all := c.All()
	all[0] = nil
	assert.NotNil(t, c.All()[0])
}
