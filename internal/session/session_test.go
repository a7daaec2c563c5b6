package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_NotifiedOnProUpgrade(t *testing.T) {
	s := New(Identity{UserID: 1, Email: "a@b.c"})

	var got []Identity
	id := s.Subscribe(func(i Identity) { got = append(got, i) })

	s.MarkPro()
	require.Len(t, got, 1)
	assert.True(t, got[0].IsPro)
	assert.True(t, s.Identity().IsPro)

	s.Unsubscribe(id)
	s.Update(func(i *Identity) { i.Nickname = "x" })
	assert.Len(t, got, 1)
	assert.Equal(t, "x", s.Identity().Nickname)
}

func TestClose_IgnoresLaterUpdates(t *testing.T) {
	s := New(Identity{UserID: 1})
	calls := 0
	s.Subscribe(func(Identity) { calls++ })

	s.Close()
	s.MarkPro()

	assert.True(t, s.IsClosed())
	assert.Zero(t, calls)
	assert.False(t, s.Identity().IsPro)
}

func TestIdentity_HasProAccess(t *testing.T) {
	now := time.Now()
	future, past := now.Add(time.Hour), now.Add(-time.Hour)

	assert.True(t, Identity{IsPro: true}.HasProAccess(now))
	assert.True(t, Identity{TrialEndsAt: &future}.HasProAccess(now))
	assert.False(t, Identity{TrialEndsAt: &past}.HasProAccess(now))
	assert.False(t, Identity{}.HasProAccess(now))
}

func TestRegistry_AcquireReusesOpenSession(t *testing.T) {
	r := NewRegistry()

	a := r.Acquire(Identity{UserID: 7})
	b := r.Acquire(Identity{UserID: 7})
	assert.Same(t, a, b)

	r.Release(7)
	assert.True(t, a.IsClosed())
	_, ok := r.Get(7)
	assert.False(t, ok)

	c := r.Acquire(Identity{UserID: 7})
	assert.NotSame(t, a, c)
}
