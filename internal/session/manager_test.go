package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/session"
	"supportchat/backend/internal/storage"
	"supportchat/backend/internal/storage/storagetest"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*session.Manager, *storage.Service) {
	t.Helper()
	s, _ := storagetest.NewService(t)
	m := session.NewManager(s, presence.NewRegistry(s.Users))
	m.Now = func() time.Time { return now }
	return m, s
}

func assertPresence(t *testing.T, s *storage.Service) {
	t.Helper()
	for _, u := range s.Users.Snapshot() {
		assert.Equal(t, u.Online, u.ConnectionRef != "", "presence of %s", u.Username)
	}
}

func TestLoginScenario(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()

	u1, err := m.Register(ctx, "conn-1", session.RegisterInput{Username: "u1", Credential: "abcdef"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u1.Role)
	assert.Equal(t, "u1", u1.DisplayName)
	assertPresence(t, s)

	_, _, err = m.Presence.Unbind(ctx, "conn-1")
	require.NoError(t, err)

	got, err := m.Login(ctx, "conn-2", "u1", "abcdef")
	require.NoError(t, err)
	assert.True(t, got.Online)
	assertPresence(t, s)

	_, err = m.Login(ctx, "conn-3", "u1", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, ok, err := m.Presence.Unbind(ctx, "conn-2")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := m.User(u1.ID)
	require.NoError(t, err)
	assert.False(t, stored.Online)
	assertPresence(t, s)
}

func TestLogin_UnknownUser(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Login(context.Background(), "c", "ghost", "abcdef")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_BlockedRegardlessOfCredential(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	u2, err := m.Register(ctx, "c1", session.RegisterInput{Username: "u2", Credential: "abcdef"})
	require.NoError(t, err)

	until := now.Add(72 * time.Hour)
	require.NoError(t, s.Users.Update(ctx, func(us []models.User) ([]models.User, error) {
		for i := range us {
			if us[i].ID == u2.ID {
				us[i].IsBlocked = true
				us[i].BlockedUntil = &until
			}
		}
		return us, nil
	}))

	_, err = m.Login(ctx, "c2", "u2", "abcdef")
	assert.ErrorIs(t, err, models.ErrAccountBlocked)
	_, err = m.Login(ctx, "c2", "u2", "wrong")
	assert.ErrorIs(t, err, models.ErrAccountBlocked)
}

func TestLogin_ExpiredBlockIsLifted(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	u, err := m.Register(ctx, "c1", session.RegisterInput{Username: "u3", Credential: "abcdef"})
	require.NoError(t, err)

	until := now.Add(-time.Hour)
	require.NoError(t, s.Users.Update(ctx, func(us []models.User) ([]models.User, error) {
		us[0].IsBlocked = true
		us[0].BlockedUntil = &until
		return us, nil
	}))

	got, err := m.Login(ctx, "c2", "u3", "abcdef")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.False(t, got.IsBlocked)
	assert.Nil(t, got.BlockedUntil)
}

func TestRegister_Validation(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   session.RegisterInput
		want error
	}{
		{"short username", session.RegisterInput{Username: "ab", Credential: "abcdef"}, models.ErrUsernameTooShort},
		{"short password", session.RegisterInput{Username: "abc", Credential: "abc"}, models.ErrPasswordTooShort},
		{"two cyrillic letters", session.RegisterInput{Username: "ёж", Credential: "abcdef"}, models.ErrUsernameTooShort},
		{"five cyrillic letters", session.RegisterInput{Username: "abc", Credential: "парол"}, models.ErrPasswordTooShort},
		{"admin role", session.RegisterInput{Username: "abc", Credential: "abcdef", Role: models.RoleAdmin}, models.ErrInvalidRole},
		{"unknown role", session.RegisterInput{Username: "abc", Credential: "abcdef", Role: "root"}, models.ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Register(ctx, "c", tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
	assert.Zero(t, s.Users.Len())

	u, err := m.Register(ctx, "c", session.RegisterInput{Username: "ёжик", Credential: "пароль"})
	require.NoError(t, err)
	assert.Equal(t, "ёжик", u.Username)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()

	first, err := m.Register(ctx, "c1", session.RegisterInput{Username: "dup", Credential: "abcdef", DisplayName: "First"})
	require.NoError(t, err)

	_, err = m.Register(ctx, "c2", session.RegisterInput{Username: "dup", Credential: "other1", DisplayName: "Second"})
	assert.ErrorIs(t, err, models.ErrUsernameTaken)
	assert.ErrorIs(t, err, models.ErrConflict)

	require.Equal(t, 1, s.Users.Len())
	stored, err := m.User(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestRegister_Listener(t *testing.T) {
	m, _ := newManager(t)
	u, err := m.Register(context.Background(), "c", session.RegisterInput{Username: "lis", Credential: "abcdef", Role: models.RoleListener})
	require.NoError(t, err)
	assert.Equal(t, models.RoleListener, u.Role)
	assert.Equal(t, "🎧", u.Avatar)
}

func TestRestore(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	u, err := m.Register(ctx, "c1", session.RegisterInput{Username: "u1", Credential: "abcdef"})
	require.NoError(t, err)
	_, _, err = m.Presence.Unbind(ctx, "c1")
	require.NoError(t, err)

	got, err := m.Restore(ctx, "c2", u.ID)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ConnectionRef)
	assertPresence(t, s)

	_, err = m.Restore(ctx, "c3", "missing")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	u, err := m.Register(ctx, "c1", session.RegisterInput{Username: "u1", Credential: "abcdef"})
	require.NoError(t, err)

	name := "  New Name "
	avatar := "🦊"
	got, err := m.UpdateProfile(ctx, u.ID, session.ProfileUpdate{DisplayName: &name, Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.DisplayName)
	assert.Equal(t, "🦊", got.Avatar)
	assert.Equal(t, "abcdef", got.Credential)

	short := "123"
	_, err = m.UpdateProfile(ctx, u.ID, session.ProfileUpdate{Credential: &short})
	assert.ErrorIs(t, err, models.ErrPasswordTooShort)

	blank := "   "
	_, err = m.UpdateProfile(ctx, u.ID, session.ProfileUpdate{DisplayName: &blank})
	assert.ErrorIs(t, err, models.ErrDisplayNameEmpty)

	_, err = m.UpdateProfile(ctx, "missing", session.ProfileUpdate{Avatar: &avatar})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestSnapshot_Visibility(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	alice, err := m.Register(ctx, "c1", session.RegisterInput{Username: "alice", Credential: "abcdef"})
	require.NoError(t, err)
	bob, err := m.Register(ctx, "c2", session.RegisterInput{Username: "bob", Credential: "abcdef", Role: models.RoleListener})
	require.NoError(t, err)
	created, err := m.SeedOwner(ctx, "boss", "abcdef")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.Chats.Update(ctx, func(cs []models.Chat) ([]models.Chat, error) {
		return append(cs,
			models.Chat{ID: "ab", User1: alice.ID, User2: bob.ID, IsActive: true},
			models.Chat{ID: "other", User1: "x", User2: "y", IsActive: true},
		), nil
	}))
	require.NoError(t, s.Notifications.Update(ctx, func(ns []models.Notification) ([]models.Notification, error) {
		return append(ns,
			models.Notification{ID: "n-all", Title: "all", Type: models.NotificationInfo, Recipients: models.RecipientsAll},
			models.Notification{ID: "n-listeners", Title: "l", Type: models.NotificationInfo, Recipients: models.RecipientsListeners},
		), nil
	}))

	snap, err := m.Snapshot(alice.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Users, 2)
	for _, v := range snap.Users {
		assert.NotEqual(t, alice.ID, v.ID)
	}
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, "ab", snap.Chats[0].ID)
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "n-all", snap.Notifications[0].ID)

	owner, ok := s.Users.Find(func(u models.User) bool { return u.Role == models.RoleOwner })
	require.True(t, ok)
	staffSnap, err := m.Snapshot(owner.ID)
	require.NoError(t, err)
	assert.Len(t, staffSnap.Chats, 2)
	assert.Len(t, staffSnap.Notifications, 2)

	_, err = m.Snapshot("missing")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
