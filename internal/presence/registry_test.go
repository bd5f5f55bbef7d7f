package presence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/storage"
	"supportchat/backend/internal/storage/storagetest"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []protocol.Event
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev protocol.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func setup(t *testing.T) (*storage.Service, *presence.Registry, models.User, models.User) {
	t.Helper()
	s, _ := storagetest.NewService(t)
	a := models.NewUser("alice", "secret1", "", models.RoleUser, time.Now())
	b := models.NewUser("bob", "secret1", "", models.RoleListener, time.Now())
	require.NoError(t, s.Users.Update(context.Background(), func(us []models.User) ([]models.User, error) {
		return append(us, a, b), nil
	}))
	return s, presence.NewRegistry(s.Users), a, b
}

func userByID(s *storage.Service, id string) models.User {
	u, _ := s.Users.Find(func(u models.User) bool { return u.ID == id })
	return u
}

func TestRegistry_BindAndUnbind(t *testing.T) {
	s, r, alice, _ := setup(t)
	ctx := context.Background()
	conn := &fakeConn{id: "conn-1"}
	r.Attach(conn)

	bound, err := r.Bind(ctx, alice.ID, conn.ID())
	require.NoError(t, err)
	assert.True(t, bound.Online)
	assert.Equal(t, "conn-1", bound.ConnectionRef)

	connID, ok := r.Resolve(alice.ID)
	assert.True(t, ok)
	assert.Equal(t, "conn-1", connID)

	userID, ok, err := r.Unbind(ctx, conn.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice.ID, userID)

	stored := userByID(s, alice.ID)
	assert.False(t, stored.Online)
	assert.Empty(t, stored.ConnectionRef)

	// Unbinding twice is a no-op.
	_, ok, err = r.Unbind(ctx, conn.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_BindUnknownUser(t *testing.T) {
	_, r, _, _ := setup(t)
	_, err := r.Bind(context.Background(), "nope", "conn-1")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestRegistry_ConnectionHasOneOwner(t *testing.T) {
	s, r, alice, bob := setup(t)
	ctx := context.Background()
	r.Attach(&fakeConn{id: "conn-1"})

	_, err := r.Bind(ctx, alice.ID, "conn-1")
	require.NoError(t, err)
	_, err = r.Bind(ctx, bob.ID, "conn-1")
	require.NoError(t, err)

	assert.False(t, userByID(s, alice.ID).Online)
	assert.True(t, userByID(s, bob.ID).Online)
}

func TestRegistry_RebindSurvivesLateDisconnect(t *testing.T) {
	s, r, alice, _ := setup(t)
	ctx := context.Background()
	r.Attach(&fakeConn{id: "old"})
	r.Attach(&fakeConn{id: "new"})

	_, err := r.Bind(ctx, alice.ID, "old")
	require.NoError(t, err)
	_, err = r.Bind(ctx, alice.ID, "new")
	require.NoError(t, err)

	_, ok, err := r.Unbind(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "new", userByID(s, alice.ID).ConnectionRef)
}

func TestRegistry_StaleReferenceIsOffline(t *testing.T) {
	_, r, alice, _ := setup(t)
	ctx := context.Background()
	conn := &fakeConn{id: "conn-1"}
	r.Attach(conn)
	_, err := r.Bind(ctx, alice.ID, conn.ID())
	require.NoError(t, err)

	r.Detach(conn.ID())

	assert.False(t, r.IsOnline(alice.ID))
	assert.False(t, r.Deliver(alice.ID, protocol.NewEvent(protocol.TypePong, nil)))
	assert.Empty(t, conn.types())
}

func TestRegistry_DeliverAndBroadcast(t *testing.T) {
	_, r, alice, _ := setup(t)
	ctx := context.Background()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	r.Attach(c1)
	r.Attach(c2)
	_, err := r.Bind(ctx, alice.ID, c1.ID())
	require.NoError(t, err)

	assert.True(t, r.Deliver(alice.ID, protocol.NewEvent(protocol.TypeChatsUpdated, nil)))
	r.Broadcast(protocol.NewEvent(protocol.TypeUserConnected, nil), "c1")

	assert.Equal(t, []string{protocol.TypeChatsUpdated}, c1.types())
	assert.Equal(t, []string{protocol.TypeUserConnected}, c2.types())
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_Reset(t *testing.T) {
	s, r, alice, bob := setup(t)
	ctx := context.Background()
	_, err := r.Bind(ctx, alice.ID, "c1")
	require.NoError(t, err)
	_, err = r.Bind(ctx, bob.ID, "c2")
	require.NoError(t, err)

	require.NoError(t, r.Reset(ctx))
	for _, u := range s.Users.Snapshot() {
		assert.False(t, u.Online)
		assert.Empty(t, u.ConnectionRef)
	}
}
