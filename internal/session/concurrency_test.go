package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/session"
)

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	const n = 20

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Register(ctx, fmt.Sprintf("conn-%d", i), session.RegisterInput{
				Username:   "racer",
				Credential: "abcdef",
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, models.ErrUsernameTaken)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, s.Users.Len())
	assertPresence(t, s)
}

func TestRegister_ConcurrentDistinctUsernames(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Register(ctx, fmt.Sprintf("conn-%d", i), session.RegisterInput{
				Username:   fmt.Sprintf("user%02d", i),
				Credential: "abcdef",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, n, s.Users.Len())
	for _, u := range s.Users.Snapshot() {
		assert.True(t, u.Online, u.Username)
	}
	assertPresence(t, s)
}
