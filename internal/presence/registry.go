// Package presence tracks which user owns which live connection. The owning
// side of the relation is the User record (Online + ConnectionRef); the
// registry is the only place that turns a ConnectionRef into a live handle.
package presence

import (
	"context"
	"log"
	"sync"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/storage"
)

// Conn is a live connection able to receive outbound events.
type Conn interface {
	ID() string
	// Send queues ev without blocking. It returns false if the event was
	// dropped.
	Send(ev protocol.Event) bool
}

// Selector picks the user to bind inside a users update. It may modify the
// slice (for example append a new user) and returns the updated slice and the
// index of the user to bind.
type Selector func(users []models.User) ([]models.User, int, error)

// Registry is the presence façade over the users collection.
type Registry struct {
	users *storage.Collection[models.User]

	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry(users *storage.Collection[models.User]) *Registry {
	return &Registry{
		users: users,
		conns: make(map[string]Conn),
	}
}

// Attach makes a connection deliverable.
func (r *Registry) Attach(c Conn) {
	r.mu.Lock()
	r.conns[c.ID()] = c
	r.mu.Unlock()
}

// Detach forgets a connection handle. It does not touch user records.
func (r *Registry) Detach(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

// Bind marks userID online on connID.
func (r *Registry) Bind(ctx context.Context, userID, connID string) (models.User, error) {
	return r.BindWith(ctx, connID, func(users []models.User) ([]models.User, int, error) {
		for i := range users {
			if users[i].ID == userID {
				return users, i, nil
			}
		}
		return users, -1, models.ErrUserNotFound
	})
}

// BindWith runs sel and binds the selected user to connID in the same update.
// Any other user claiming connID is unbound, and a previous connection of the
// selected user is replaced.
func (r *Registry) BindWith(ctx context.Context, connID string, sel Selector) (models.User, error) {
	var bound models.User
	err := r.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		users, idx, err := sel(users)
		if err != nil {
			return nil, err
		}
		for i := range users {
			if i != idx && users[i].ConnectionRef == connID {
				users[i].Online = false
				users[i].ConnectionRef = ""
			}
		}
		users[idx].Online = true
		users[idx].ConnectionRef = connID
		bound = users[idx]
		return users, nil
	})
	return bound, err
}

// Unbind marks the user holding connID offline. It returns the user id, or
// ok=false if no user holds the connection.
func (r *Registry) Unbind(ctx context.Context, connID string) (userID string, ok bool, err error) {
	if _, held := r.users.Find(func(u models.User) bool { return u.ConnectionRef == connID }); !held {
		return "", false, nil
	}
	err = r.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ConnectionRef == connID {
				users[i].Online = false
				users[i].ConnectionRef = ""
				userID, ok = users[i].ID, true
			}
		}
		return users, nil
	})
	if err != nil {
		return "", false, err
	}
	return userID, ok, nil
}

// Reset marks every user offline. Used at startup, when no connection can
// have survived.
func (r *Registry) Reset(ctx context.Context) error {
	return r.users.Update(ctx, func(users []models.User) ([]models.User, error) {
		for i := range users {
			users[i].Online = false
			users[i].ConnectionRef = ""
		}
		return users, nil
	})
}

// Resolve returns the connection serving userID. A reference to a connection
// that is no longer attached resolves to offline.
func (r *Registry) Resolve(userID string) (string, bool) {
	u, found := r.users.Find(func(u models.User) bool { return u.ID == userID })
	if !found || !u.Online || u.ConnectionRef == "" {
		return "", false
	}
	r.mu.RLock()
	_, live := r.conns[u.ConnectionRef]
	r.mu.RUnlock()
	if !live {
		return "", false
	}
	return u.ConnectionRef, true
}

// IsOnline reports whether userID has a live bound connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Resolve(userID)
	return ok
}

// Deliver sends ev to userID's connection if the user is online.
func (r *Registry) Deliver(userID string, ev protocol.Event) bool {
	connID, ok := r.Resolve(userID)
	if !ok {
		return false
	}
	return r.DeliverConn(connID, ev)
}

// DeliverConn sends ev to a connection by id.
func (r *Registry) DeliverConn(connID string, ev protocol.Event) bool {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !c.Send(ev) {
		log.Printf("WARNING: [presence] dropped %s for connection %s", ev.Type, connID)
		return false
	}
	return true
}

// Broadcast sends ev to every attached connection except exceptConnID.
func (r *Registry) Broadcast(ev protocol.Event, exceptConnID string) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()
	for _, c := range targets {
		c.Send(ev)
	}
}

// Count returns the number of attached connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
