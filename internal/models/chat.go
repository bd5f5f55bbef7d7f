package models

import "time"

// MessageType distinguishes the payload carried by a Message.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageFile    MessageType = "file"
	MessageSticker MessageType = "sticker"
)

// FileRef is the descriptor returned by the blob service. The broker stores and
// forwards it, never the bytes.
type FileRef struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Mimetype   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Message is an immutable entry of a chat's history.
type Message struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	SenderID  string      `json:"senderId"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
	File      *FileRef    `json:"file,omitempty"`
	Sticker   string      `json:"sticker,omitempty"`
}

// Chat pairs an end user (User1) with a listener (User2).
type Chat struct {
	ID           string     `json:"id"`
	User1        string     `json:"user1"`
	User2        string     `json:"user2"`
	Messages     []Message  `json:"messages"`
	StartTime    time.Time  `json:"startTime"`
	LastActivity time.Time  `json:"lastActivity"`
	IsActive     bool       `json:"isActive"`
	EndTime      *time.Time `json:"endTime,omitempty"`
}

// Involves reports whether userID is one of the participants.
func (c Chat) Involves(userID string) bool {
	return c.User1 == userID || c.User2 == userID
}

// Partner returns the other participant, or "" if userID is not in the chat.
func (c Chat) Partner(userID string) string {
	switch userID {
	case c.User1:
		return c.User2
	case c.User2:
		return c.User1
	}
	return ""
}

// SamePair reports whether the chat joins a and b, in either order.
func (c Chat) SamePair(a, b string) bool {
	return (c.User1 == a && c.User2 == b) || (c.User1 == b && c.User2 == a)
}
