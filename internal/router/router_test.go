package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/router"
	"supportchat/backend/internal/storage"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type delivery struct {
	UserID string
	Type   string
}

// recorder is a Notifier that treats every user as online.
type recorder struct {
	mu         sync.Mutex
	delivered  []delivery
	broadcasts []string
	offline    map[string]bool
}

func (r *recorder) Deliver(userID string, ev protocol.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline[userID] {
		return false
	}
	r.delivered = append(r.delivered, delivery{userID, ev.Type})
	return true
}

func (r *recorder) Broadcast(ev protocol.Event, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, ev.Type)
}

func (r *recorder) typesFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.delivered {
		if d.UserID == userID {
			out = append(out, d.Type)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = nil
	r.broadcasts = nil
}

// flakyBackend fails saves of the collections listed in fail.
type flakyBackend struct {
	storage.Backend
	mu   sync.Mutex
	fail map[string]bool
}

func (b *flakyBackend) Save(ctx context.Context, collection string, data []byte) error {
	b.mu.Lock()
	failing := b.fail[collection]
	b.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return b.Backend.Save(ctx, collection, data)
}

func (b *flakyBackend) failSaves(collection string) {
	b.mu.Lock()
	b.fail[collection] = true
	b.mu.Unlock()
}

type fixture struct {
	router   *router.Router
	store    *storage.Service
	backend  *flakyBackend
	notes    *recorder
	user     models.User
	listener models.User
	admin    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fb, err := storage.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	b := &flakyBackend{Backend: fb, fail: map[string]bool{}}
	s, err := storage.NewStorageService(context.Background(), b)
	require.NoError(t, err)

	f := &fixture{
		store:    s,
		backend:  b,
		notes:    &recorder{offline: map[string]bool{}},
		user:     models.NewUser("u1", "abcdef", "User", models.RoleUser, now),
		listener: models.NewUser("l1", "abcdef", "Listener", models.RoleListener, now),
		admin:    models.NewUser("a1", "abcdef", "Admin", models.RoleAdmin, now),
	}
	require.NoError(t, s.Users.Update(context.Background(), func(us []models.User) ([]models.User, error) {
		return append(us, f.user, f.listener, f.admin), nil
	}))
	f.router = router.NewRouter(s, f.notes)
	f.router.Now = func() time.Time { return now }
	return f
}

func (f *fixture) userByID(id string) models.User {
	u, _ := f.store.Users.Find(func(u models.User) bool { return u.ID == id })
	return u
}
