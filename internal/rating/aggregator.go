// Package rating keeps the per-listener average rating.
package rating

import (
	"context"
	"time"

	"github.com/google/uuid"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/storage"
)

// Notifier delivers events to live connections.
type Notifier interface {
	Deliver(userID string, ev protocol.Event) bool
	Broadcast(ev protocol.Event, exceptConnID string)
}

// Result is the listener's rating after a submission.
type Result struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type Aggregator struct {
	Storage  *storage.Service
	Notifier Notifier
	Now      func() time.Time
}

func NewAggregator(s *storage.Service, n Notifier) *Aggregator {
	return &Aggregator{Storage: s, Notifier: n, Now: time.Now}
}

// Submit appends a rating and recomputes the listener's average over every
// rating it has received. The rating is saved before the listener record; if
// the second save fails the cached average is stale until the next
// submission or Recompute.
func (a *Aggregator) Submit(ctx context.Context, listenerID, userID string, score int, comment string) (Result, error) {
	if score < config.MinScore || score > config.MaxScore {
		return Result{}, models.ErrInvalidScore
	}
	if _, ok := a.Storage.Users.Find(func(u models.User) bool {
		return u.ID == listenerID && u.Role == models.RoleListener
	}); !ok {
		return Result{}, models.ErrListenerNotFound
	}

	rating := models.Rating{
		ID:         uuid.New().String(),
		ListenerID: listenerID,
		UserID:     userID,
		Rating:     score,
		Comment:    comment,
		Timestamp:  a.Now(),
	}
	err := a.Storage.Ratings.Update(ctx, func(rs []models.Rating) ([]models.Rating, error) {
		return append(rs, rating), nil
	})
	if err != nil {
		return Result{}, err
	}

	listener, res, err := a.Recompute(ctx, listenerID)
	if err != nil {
		return Result{}, err
	}

	a.Notifier.Deliver(listenerID, protocol.NewEvent(protocol.TypeRatingReceived, protocol.RatingReceivedMsg{
		Rating:  rating,
		Average: res.Average,
		Count:   res.Count,
	}))
	a.Notifier.Broadcast(protocol.NewEvent(protocol.TypeUserUpdated, protocol.UserMsg{User: listener.View()}), "")
	return res, nil
}

// Recompute derives the listener's rating and count from the full rating set
// and stores them on the listener record.
func (a *Aggregator) Recompute(ctx context.Context, listenerID string) (models.User, Result, error) {
	var (
		listener models.User
		res      Result
	)
	err := a.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID != listenerID {
				continue
			}
			res.Average, res.Count = models.AverageFor(a.Storage.Ratings.Snapshot(), listenerID)
			users[i].Rating = res.Average
			users[i].RatingCount = res.Count
			listener = users[i]
			return users, nil
		}
		return nil, models.ErrListenerNotFound
	})
	return listener, res, err
}

// Ratings returns every rating in submission order.
func (a *Aggregator) Ratings() []models.Rating {
	return a.Storage.Ratings.Snapshot()
}
