// Package router pairs participants into chats, routes their messages and
// carries the admin-side moderation and notification flows.
package router

import (
	"errors"
	"time"

	"supportchat/backend/internal/metrics"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/storage"
)

// Notifier delivers events to live connections. It is implemented by
// presence.Registry.
type Notifier interface {
	Deliver(userID string, ev protocol.Event) bool
	Broadcast(ev protocol.Event, exceptConnID string)
}

// Sentinels used inside collection updates to abort without saving.
var (
	errExisting  = errors.New("router: active chat exists")
	errUnchanged = errors.New("router: nothing to change")
)

// Router is the central dispatch logic for chats.
type Router struct {
	Storage  *storage.Service
	Notifier Notifier
	Now      func() time.Time
}

func NewRouter(s *storage.Service, n Notifier) *Router {
	r := &Router{Storage: s, Notifier: n, Now: time.Now}
	metrics.ActiveChats.Set(float64(r.countActive()))
	return r
}

func (r *Router) countActive() int {
	n := 0
	for _, c := range r.Storage.Chats.Snapshot() {
		if c.IsActive {
			n++
		}
	}
	return n
}

// notifyPair delivers ev and a chats_updated signal to both participants.
func (r *Router) notifyPair(a, b string, ev protocol.Event) {
	updated := protocol.NewEvent(protocol.TypeChatsUpdated, protocol.ChatsUpdatedMsg{})
	for _, id := range []string{a, b} {
		r.Notifier.Deliver(id, ev)
		r.Notifier.Deliver(id, updated)
	}
}
