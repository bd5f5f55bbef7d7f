package models_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/models"
)

func TestNewUser(t *testing.T) {
	now := time.Now()
	u := models.NewUser("alice", "secret1", "", models.RoleListener, now)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.DisplayName)
	assert.Equal(t, "🎧", u.Avatar)
	assert.False(t, u.Online)
	assert.Equal(t, now, u.CreatedAt)
}

func TestUserView_HidesCredential(t *testing.T) {
	u := models.NewUser("alice", "secret1", "", models.RoleUser, time.Now())
	u.ConnectionRef = "conn-1"
	data, err := json.Marshal(u.View())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret1")
	assert.NotContains(t, string(data), "conn-1")
}

func TestBlockActive(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	assert.False(t, models.User{}.BlockActive(now))
	assert.True(t, models.User{IsBlocked: true}.BlockActive(now))
	assert.True(t, models.User{IsBlocked: true, BlockedUntil: &future}.BlockActive(now))
	assert.False(t, models.User{IsBlocked: true, BlockedUntil: &past}.BlockActive(now))
	assert.False(t, models.User{IsOnVacation: true, VacationUntil: &past}.VacationActive(now))
}

func TestRoles(t *testing.T) {
	assert.True(t, models.RoleOwner.IsStaff())
	assert.True(t, models.RoleAdmin.IsStaff())
	assert.False(t, models.RoleListener.IsStaff())
	assert.False(t, models.Role("root").Valid())
	assert.True(t, models.RecipientsAdmins.Includes(models.RoleOwner))
	assert.False(t, models.RecipientsUsers.Includes(models.RoleListener))
}

func TestAverageFor(t *testing.T) {
	ratings := []models.Rating{
		{ListenerID: "L", Rating: 4},
		{ListenerID: "other", Rating: 1},
		{ListenerID: "L", Rating: 2},
	}
	avg, n := models.AverageFor(ratings, "L")
	assert.Equal(t, 3.0, avg)
	assert.Equal(t, 2, n)

	avg, n = models.AverageFor(nil, "L")
	assert.Zero(t, avg)
	assert.Zero(t, n)
}

func TestChatPair(t *testing.T) {
	c := models.Chat{User1: "a", User2: "b"}
	assert.True(t, c.SamePair("b", "a"))
	assert.False(t, c.SamePair("a", "c"))
	assert.Equal(t, "b", c.Partner("a"))
	assert.True(t, c.Involves("b"))
}

func TestErrorCodes(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", models.ErrAccountBlocked)
	assert.True(t, errors.Is(wrapped, models.ErrPermission))
	assert.Equal(t, "account_blocked", models.Code(wrapped))

	persist := fmt.Errorf("%w: save users: disk full", models.ErrPersistence)
	assert.Equal(t, "persistence_failed", models.Code(persist))
	assert.NotContains(t, models.PublicMessage(persist), "disk full")

	assert.Equal(t, "internal_error", models.Code(errors.New("boom")))
}
