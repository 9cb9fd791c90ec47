package session_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hubProvider only implements the event side of provider.Provider.
type hubProvider struct {
	provider.Provider
	hub *provider.Hub
}

func newHubProvider() *hubProvider { return &hubProvider{hub: provider.NewHub()} }

func (p *hubProvider) OnAuthStateChange(fn func(provider.Event)) func() {
	return p.hub.Subscribe(fn)
}

func TestState_Lifecycle(t *testing.T) {
	s := session.NewState("u-1")
	assert.False(t, s.Initialized())
	s.Init()
	s.Init()
	assert.True(t, s.Initialized())
	assert.Equal(t, session.LocaleFR, s.Locale())

	sess := &provider.Session{AccessToken: "tok"}
	s.SetSession(sess)
	assert.Same(t, sess, s.Session())

	require.NoError(t, s.SetLocale(session.LocaleAR))
	assert.ErrorIs(t, s.SetLocale("de"), session.ErrUnsupportedLocale)
	assert.Equal(t, session.LocaleAR, s.Locale())

	s.RecordError("boom", "/api/v1/me")
	s.Clear()
	assert.Nil(t, s.Session())
	assert.Empty(t, s.Errors())
	assert.Equal(t, session.LocaleAR, s.Locale(), "clear keeps the language")
}

func TestState_ErrorLogIsBounded(t *testing.T) {
	s := session.NewState("u-1")
	for i := 0; i < session.MaxErrors+7; i++ {
		s.RecordError(fmt.Sprintf("err-%d", i), "")
	}
	errs := s.Errors()
	require.Len(t, errs, session.MaxErrors)
	assert.Equal(t, "err-7", errs[0].Message)
	assert.Equal(t, fmt.Sprintf("err-%d", session.MaxErrors+6), errs[len(errs)-1].Message)
}

func TestState_Subscribe(t *testing.T) {
	s := session.NewState("u-1")
	var snaps []session.Snapshot
	unsubscribe := s.Subscribe(func(snap session.Snapshot) { snaps = append(snaps, snap) })

	s.Init()
	s.SetSession(&provider.Session{AccessToken: "tok"})
	require.Len(t, snaps, 2)
	assert.True(t, snaps[1].Authenticated)
	assert.Equal(t, "u-1", snaps[1].UserID)

	unsubscribe()
	s.Clear()
	assert.Len(t, snaps, 2)
}

func TestRegistry(t *testing.T) {
	p := newHubProvider()
	r := session.NewRegistry(10, time.Hour)
	unbind := r.Bind(p)
	defer unbind()

	a := r.Get("u-1")
	assert.Same(t, a, r.Get("u-1"))
	assert.True(t, a.Initialized())
	assert.NotSame(t, a, r.Get("u-2"))

	_, ok := r.Peek("u-3")
	assert.False(t, ok)
	p.hub.Emit(provider.Event{Type: provider.EventSignedOut, UserID: "u-3"})
	_, ok = r.Peek("u-3")
	assert.False(t, ok, "sign-out does not create state")

	sess := &provider.Session{AccessToken: "tok"}
	p.hub.Emit(provider.Event{Type: provider.EventSignedIn, UserID: "u-3", Session: sess})
	s, ok := r.Peek("u-3")
	require.True(t, ok)
	assert.Same(t, sess, s.Session())
	assert.Nil(t, a.Session(), "other users' events are ignored")

	s.RecordError("boom", "")
	p.hub.Emit(provider.Event{Type: provider.EventSignedOut, UserID: "u-3"})
	assert.Nil(t, s.Session())
	assert.Empty(t, s.Errors())
}
