// Package storage is the durable record store. Each collection is one JSON
// document saved atomically through a Backend and cached in memory by a
// Collection that serializes read-modify-write sequences.
package storage

import (
	"context"
	"errors"
	"fmt"

	"supportchat/backend/internal/models"
)

// Collection names as they appear in the backend.
const (
	CollectionUsers         = "users"
	CollectionChats         = "chats"
	CollectionRatings       = "ratings"
	CollectionNotifications = "notifications"
	CollectionModeration    = "moderation"
)

// ErrNotFound is returned by Backend.Load for a collection that was never saved.
var ErrNotFound = errors.New("storage: collection not found")

// Backend persists whole collections. Save must be atomic: a concurrent or
// later Load observes either the previous document or the new one.
type Backend interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, data []byte) error
	// Quarantine moves the stored version aside so it can be inspected later
	// and the collection starts empty.
	Quarantine(ctx context.Context, collection string) error
	// Version identifies the stored version of a collection. It changes on
	// every Save, including saves made by another process on the same store.
	// ErrNotFound for a collection that was never saved.
	Version(ctx context.Context, collection string) (string, error)
}

// Service bundles the five collections of the broker.
type Service struct {
	Users         *Collection[models.User]
	Chats         *Collection[models.Chat]
	Ratings       *Collection[models.Rating]
	Notifications *Collection[models.Notification]
	Moderation    *Collection[models.ModerationRecord]
}

// NewStorageService creates the collections on top of b and loads them.
func NewStorageService(ctx context.Context, b Backend) (*Service, error) {
	s := &Service{
		Users:         NewCollection[models.User](CollectionUsers, b),
		Chats:         NewCollection[models.Chat](CollectionChats, b),
		Ratings:       NewCollection[models.Rating](CollectionRatings, b),
		Notifications: NewCollection[models.Notification](CollectionNotifications, b),
		Moderation:    NewCollection[models.ModerationRecord](CollectionModeration, b),
	}
	loaders := []interface{ Load(context.Context) error }{
		s.Users, s.Chats, s.Ratings, s.Notifications, s.Moderation,
	}
	for _, l := range loaders {
		if err := l.Load(ctx); err != nil {
			return nil, fmt.Errorf("storage: initial load: %w", err)
		}
	}
	return s, nil
}
