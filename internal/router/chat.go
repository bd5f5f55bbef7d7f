package router

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"

	"github.com/google/uuid"

	"supportchat/backend/internal/metrics"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/session"
)

// CreateChat pairs user1 (end user) with user2 (listener). If the pair already
// has an active chat, that chat is returned with created=false.
func (r *Router) CreateChat(ctx context.Context, user1, user2 string) (models.Chat, bool, error) {
	if user1 == user2 {
		return models.Chat{}, false, models.ErrSameParticipant
	}
	now := r.Now()
	for _, id := range []string{user1, user2} {
		u, ok := r.Storage.Users.Find(func(u models.User) bool { return u.ID == id })
		if !ok {
			return models.Chat{}, false, models.ErrParticipantNotFound
		}
		if u.BlockActive(now) {
			return models.Chat{}, false, models.ErrParticipantBlocked
		}
	}

	var chat models.Chat
	err := r.Storage.Chats.Update(ctx, func(chats []models.Chat) ([]models.Chat, error) {
		for _, c := range chats {
			if c.IsActive && c.SamePair(user1, user2) {
				chat = c
				return nil, errExisting
			}
		}
		chat = models.Chat{
			ID:           uuid.New().String(),
			User1:        user1,
			User2:        user2,
			Messages:     []models.Message{},
			StartTime:    now,
			LastActivity: now,
			IsActive:     true,
		}
		return append(chats, chat), nil
	})
	if errors.Is(err, errExisting) {
		r.notifyPair(chat.User1, chat.User2, protocol.NewEvent(protocol.TypeChatExists, protocol.ChatMsg{Chat: chat}))
		return chat, false, nil
	}
	if err != nil {
		return models.Chat{}, false, err
	}

	metrics.ActiveChats.Inc()
	log.Printf("INFO: [router] chat %s created between %s and %s", chat.ID, user1, user2)
	r.notifyPair(user1, user2, protocol.NewEvent(protocol.TypeChatCreated, protocol.ChatMsg{Chat: chat}))
	return chat, true, nil
}

// SendMessage appends a message to an active chat and delivers it to both
// participants.
func (r *Router) SendMessage(ctx context.Context, chatID, senderID string, body protocol.MessageBody) (models.Message, error) {
	msg, err := newMessage(senderID, body)
	if err != nil {
		return models.Message{}, err
	}
	msg.Timestamp = r.Now()

	var chat models.Chat
	err = r.Storage.Chats.Update(ctx, func(chats []models.Chat) ([]models.Chat, error) {
		idx := slices.IndexFunc(chats, func(c models.Chat) bool { return c.ID == chatID })
		if idx < 0 {
			return nil, models.ErrChatNotFound
		}
		c := &chats[idx]
		if !c.IsActive {
			return nil, models.ErrChatInactive
		}
		if !c.Involves(senderID) {
			return nil, models.ErrNotParticipant
		}
		c.Messages = append(slices.Clip(c.Messages), msg)
		c.LastActivity = msg.Timestamp
		chat = *c
		return chats, nil
	})
	if err != nil {
		return models.Message{}, err
	}

	metrics.MessagesTotal.Inc()
	ev := protocol.NewEvent(protocol.TypeNewMessage, protocol.NewMessageMsg{ChatID: chat.ID, Message: msg})
	r.notifyPair(chat.User1, chat.User2, ev)
	return msg, nil
}

func newMessage(senderID string, body protocol.MessageBody) (models.Message, error) {
	msg := models.Message{
		ID:       uuid.New().String(),
		Text:     body.Text,
		SenderID: senderID,
		Type:     body.Type,
		File:     body.File,
		Sticker:  body.Sticker,
	}
	if msg.Type == "" {
		switch {
		case body.File != nil:
			msg.Type = models.MessageFile
		case body.Sticker != "":
			msg.Type = models.MessageSticker
		default:
			msg.Type = models.MessageText
		}
	}
	switch msg.Type {
	case models.MessageText:
		if strings.TrimSpace(msg.Text) == "" {
			return msg, models.ErrEmptyMessage
		}
	case models.MessageFile:
		if msg.File == nil {
			return msg, models.ErrEmptyMessage
		}
	case models.MessageSticker:
		if msg.Sticker == "" {
			return msg, models.ErrEmptyMessage
		}
	default:
		return msg, models.ErrEmptyMessage
	}
	return msg, nil
}

// EndChat closes a chat. Ending a closed chat changes nothing.
func (r *Router) EndChat(ctx context.Context, chatID string) error {
	var chat models.Chat
	err := r.Storage.Chats.Update(ctx, func(chats []models.Chat) ([]models.Chat, error) {
		idx := slices.IndexFunc(chats, func(c models.Chat) bool { return c.ID == chatID })
		if idx < 0 {
			return nil, models.ErrChatNotFound
		}
		c := &chats[idx]
		if !c.IsActive {
			return nil, errUnchanged
		}
		now := r.Now()
		c.IsActive = false
		c.EndTime = &now
		chat = *c
		return chats, nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	metrics.ActiveChats.Dec()
	r.notifyPair(chat.User1, chat.User2, protocol.NewEvent(protocol.TypeChatEnded, protocol.ChatEndedMsg{
		ChatID:  chat.ID,
		EndTime: chat.EndTime,
	}))
	return nil
}

// Chat returns a chat by id.
func (r *Router) Chat(chatID string) (models.Chat, error) {
	c, ok := r.Storage.Chats.Find(func(c models.Chat) bool { return c.ID == chatID })
	if !ok {
		return models.Chat{}, models.ErrChatNotFound
	}
	return c, nil
}

// VisibleChats returns the chats viewer may list.
func (r *Router) VisibleChats(viewer models.User) []models.Chat {
	return session.VisibleChats(r.Storage.Chats.Snapshot(), viewer)
}
