package chathub_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/auth"
	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/rating"
	"supportchat/backend/internal/router"
	"supportchat/backend/internal/session"
	"supportchat/backend/internal/storage"
	"supportchat/backend/internal/storage/storagetest"
)

// MockClient records what the hub sends it.
type MockClient struct {
	id string

	mu     sync.Mutex
	userID string
	events []protocol.Event
	closed bool
}

func newMockClient() *MockClient {
	return &MockClient{id: uuid.New().String()}
}

func (c *MockClient) ID() string { return c.id }

func (c *MockClient) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *MockClient) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *MockClient) Send(ev protocol.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

// last returns the most recent event of the given type.
func (c *MockClient) last(t *testing.T, eventType string) protocol.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == eventType {
			return c.events[i]
		}
	}
	require.Failf(t, "event not received", "no %s event", eventType)
	return protocol.Event{}
}

func (c *MockClient) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

type testHub struct {
	*chathub.ManagerService
	store  *storage.Service
	cancel context.CancelFunc
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	s, _ := storagetest.NewService(t)
	p := presence.NewRegistry(s.Users)
	hub := chathub.NewManagerService(
		session.NewManager(s, p),
		router.NewRouter(s, p),
		rating.NewAggregator(s, p),
		p,
		auth.NewTokens("test-secret", time.Hour),
		nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return &testHub{ManagerService: hub, store: s, cancel: cancel}
}

// sync returns once the Run loop has finished the previous request. The
// hub ignores disconnects of clients it never registered.
func (h *testHub) sync() {
	h.UnregisterCh <- newMockClient()
}

// connect registers a new client and waits until it is deliverable.
func (h *testHub) connect(t *testing.T) *MockClient {
	t.Helper()
	c := newMockClient()
	h.RegisterCh <- c
	h.sync()
	return c
}

func (h *testHub) disconnect(c *MockClient) {
	h.UnregisterCh <- c
	h.sync()
}

func (h *testHub) send(t *testing.T, c *MockClient, eventType string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	require.NoError(t, err)
	h.Dispatch(context.Background(), c, raw)
}

// register creates an account on c through the public register event.
func (h *testHub) register(t *testing.T, c *MockClient, username, role string) protocol.SessionMsg {
	t.Helper()
	h.send(t, c, protocol.TypeRegister, map[string]string{"username": username, "credential": "abcdef", "role": role})
	return c.last(t, protocol.TypeRegistrationSuccess).Data.(protocol.SessionMsg)
}

// owner seeds the owner account and logs it in on c.
func (h *testHub) owner(t *testing.T, c *MockClient) protocol.SessionMsg {
	t.Helper()
	_, err := h.Sessions.SeedOwner(context.Background(), "boss", "abcdef")
	require.NoError(t, err)
	h.send(t, c, protocol.TypeLogin, map[string]string{"username": "boss", "credential": "abcdef"})
	return c.last(t, protocol.TypeLoginSuccess).Data.(protocol.SessionMsg)
}

func errorCode(t *testing.T, ev protocol.Event) string {
	t.Helper()
	msg, ok := ev.Data.(protocol.ErrorMsg)
	require.True(t, ok, "%s carries %T", ev.Type, ev.Data)
	return msg.Code
}
