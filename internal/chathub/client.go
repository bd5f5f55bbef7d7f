package chathub

import "supportchat/backend/internal/presence"

// Client is one live connection. It abstracts the transport so the hub can
// manage WebSocket connections and test doubles uniformly.
type Client interface {
	presence.Conn

	// UserID returns the account the connection is authenticated as, or ""
	// before login.
	UserID() string
	// SetUserID records the authenticated account; "" drops the session.
	// Only the hub calls it.
	SetUserID(string)

	// Run starts the read and write pumps.
	Run()
	// Close shuts the connection down. It is safe to call more than once.
	Close()
}
