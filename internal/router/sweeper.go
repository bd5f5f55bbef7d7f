package router

import (
	"context"
	"errors"
	"log"
	"time"

	"supportchat/backend/internal/metrics"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
)

// ExpireIdle closes every active chat whose last activity is older than
// idle. It returns the number of chats closed.
func (r *Router) ExpireIdle(ctx context.Context, idle time.Duration) (int, error) {
	if idle <= 0 {
		return 0, nil
	}
	now := r.Now()
	var closed []models.Chat
	err := r.Storage.Chats.Update(ctx, func(chats []models.Chat) ([]models.Chat, error) {
		for i := range chats {
			c := &chats[i]
			if c.IsActive && now.Sub(c.LastActivity) > idle {
				c.IsActive = false
				c.EndTime = &now
				closed = append(closed, *c)
			}
		}
		if len(closed) == 0 {
			return nil, errUnchanged
		}
		return chats, nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	metrics.ActiveChats.Sub(float64(len(closed)))
	for _, c := range closed {
		r.notifyPair(c.User1, c.User2, protocol.NewEvent(protocol.TypeChatEnded, protocol.ChatEndedMsg{
			ChatID:  c.ID,
			EndTime: c.EndTime,
		}))
	}
	return len(closed), nil
}

// RunSweeper calls ExpireIdle every interval until ctx is cancelled.
func (r *Router) RunSweeper(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 || interval <= 0 {
		return
	}
	log.Printf("INFO: [router] idle chat sweeper started (idle=%s, every %s)", idle, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ExpireIdle(ctx, idle)
			if err != nil {
				log.Printf("ERROR: [router] idle sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("INFO: [router] closed %d idle chats", n)
			}
		}
	}
}
