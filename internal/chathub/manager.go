package chathub

import (
	"context"
	"log"
	"sync"

	"supportchat/backend/internal/metrics"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/ratelimit"
	"supportchat/backend/internal/rating"
	"supportchat/backend/internal/router"
	"supportchat/backend/internal/session"
)

// TokenService issues and checks the tokens that prove a session on
// restore_session.
type TokenService interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// ManagerService is the connection hub. Connections join and leave through
// RegisterCh and UnregisterCh, which only the Run loop reads; inbound events
// are handled by Dispatch on the connection's own read goroutine.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client

	Sessions *session.Manager
	Router   *router.Router
	Ratings  *rating.Aggregator
	Presence *presence.Registry
	Tokens   TokenService
	Limiter  *ratelimit.Limiter

	mu      sync.RWMutex
	clients map[string]Client
	done    chan struct{}
}

func NewManagerService(
	sessions *session.Manager,
	r *router.Router,
	ratings *rating.Aggregator,
	p *presence.Registry,
	tokens TokenService,
	limiter *ratelimit.Limiter,
) *ManagerService {
	return &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Sessions:     sessions,
		Router:       r,
		Ratings:      ratings,
		Presence:     p,
		Tokens:       tokens,
		Limiter:      limiter,
		clients:      make(map[string]Client),
		done:         make(chan struct{}),
	}
}

// Run serves registrations and disconnects until ctx is cancelled, then
// closes every connection.
func (m *ManagerService) Run(ctx context.Context) {
	log.Println("INFO: [chathub] hub started")
	defer close(m.done)
	for {
		select {
		case c := <-m.RegisterCh:
			m.register(c)
			c.Run()

		case c := <-m.UnregisterCh:
			m.disconnect(ctx, c)

		case <-ctx.Done():
			m.mu.Lock()
			for id, c := range m.clients {
				c.Close()
				delete(m.clients, id)
			}
			m.mu.Unlock()
			log.Println("INFO: [chathub] hub stopped")
			return
		}
	}
}

// Register hands a new connection to the Run loop. It returns false, leaving
// c to the caller, once the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Done is closed when Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// Unregister hands c to the Run loop. It does not block once the hub has
// stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

func (m *ManagerService) register(c Client) {
	m.mu.Lock()
	m.clients[c.ID()] = c
	m.mu.Unlock()
	m.Presence.Attach(c)
	metrics.ConnectionsTotal.Inc()
	log.Printf("INFO: [chathub] connection %s registered (%d live)", c.ID(), m.Presence.Count())
}

// disconnect unbinds the connection's user and tells everyone else. Nothing
// the connection did is rolled back.
func (m *ManagerService) disconnect(ctx context.Context, c Client) {
	m.mu.Lock()
	_, known := m.clients[c.ID()]
	delete(m.clients, c.ID())
	m.mu.Unlock()
	if !known {
		return
	}

	m.Presence.Detach(c.ID())
	c.Close()
	metrics.ConnectionsTotal.Dec()

	userID, ok, err := m.Presence.Unbind(ctx, c.ID())
	if err != nil {
		log.Printf("ERROR: [chathub] unbinding %s: %v", c.ID(), err)
		return
	}
	if ok {
		log.Printf("INFO: [chathub] user %s disconnected", userID)
		m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserDisconnected, protocol.UserIDMsg{UserID: userID}), c.ID())
	}
}

// detachUser clears the session of every connection other than keepConnID
// that is authenticated as userID. Used when an account signs in elsewhere.
func (m *ManagerService) detachUser(userID, keepConnID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, c := range m.clients {
		if id != keepConnID && c.UserID() == userID {
			c.SetUserID("")
		}
	}
}

// closeUser closes every connection authenticated as userID.
func (m *ManagerService) closeUser(userID string) int {
	m.mu.RLock()
	var targets []Client
	for _, c := range m.clients {
		if c.UserID() == userID {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	for _, c := range targets {
		c.SetUserID("")
		c.Close()
	}
	return len(targets)
}

// Count returns the number of registered connections.
func (m *ManagerService) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
