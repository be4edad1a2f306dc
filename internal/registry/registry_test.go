package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	userID int
	name   string
}

func (f *fakeSession) UserID() int                       { return f.userID }
func (f *fakeSession) DisplayName() string               { return f.name }
func (f *fakeSession) Send(event string, data any) error { return nil }

func TestRegisterReplacesPriorSession(t *testing.T) {
	r := New()
	first := &fakeSession{userID: 1}
	second := &fakeSession{userID: 1}

	r.Register(1, first)
	r.Register(1, second)

	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Count())
}

func TestUnregisterStaleSessionKeepsSuccessor(t *testing.T) {
	r := New()
	first := &fakeSession{userID: 1}
	second := &fakeSession{userID: 1}

	r.Register(1, first)
	r.Register(1, second)
	r.Unregister(first)

	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestUnregisterCurrentSession(t *testing.T) {
	r := New()
	s := &fakeSession{userID: 2}
	r.Register(2, s)
	r.Unregister(s)

	_, ok := r.Lookup(2)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestUnregisterByHandleScan(t *testing.T) {
	r := New()
	anon := &fakeSession{}
	// A session whose identity decode failed never registers, but a
	// map entry may still exist for it if registration happened before
	// the identity was cleared; the scan path must find it by handle.
	r.sessions[7] = anon
	r.Unregister(anon)

	_, ok := r.Lookup(7)
	assert.False(t, ok)
}

func TestRegisterIgnoresZeroUser(t *testing.T) {
	r := New()
	r.Register(0, &fakeSession{})
	assert.Equal(t, 0, r.Count())
}
