// Package protocol defines the events exchanged over a connection. Every frame
// is one JSON object {"type": ..., "data": {...}}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"supportchat/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Client -> Server event types
// ---------------------------------------------------------------------------

const (
	TypeLogin                = "login"
	TypeRegister             = "register"
	TypeRestoreSession       = "restore_session"
	TypeUpdateProfile        = "update_profile"
	TypeCreateChat           = "create_chat"
	TypeSendMessage          = "send_message"
	TypeEndChat              = "end_chat"
	TypeSubmitRating         = "submit_rating"
	TypeApplyModeration      = "apply_moderation_action"
	TypeSendNotification     = "send_technical_notification"
	TypeGetUsers             = "get_users"
	TypeGetChats             = "get_chats"
	TypeGetRatings           = "get_ratings"
	TypeGetNotifications     = "get_notifications"
	TypeGetModerationHistory = "get_moderation_history"
	TypeRegisterStaff        = "register_staff"
	TypeChangeRole           = "change_role"
	TypeDeleteStaff          = "delete_staff"
	TypeMarkNotificationRead = "mark_notification_read"
	TypePing                 = "ping"
)

// ---------------------------------------------------------------------------
// Server -> Client event types
// ---------------------------------------------------------------------------

const (
	TypeLoginSuccess        = "login_success"
	TypeLoginError          = "login_error"
	TypeRegistrationSuccess = "registration_success"
	TypeRegistrationError   = "registration_error"
	TypeSessionRestored     = "session_restored"
	TypeUsersList           = "users_list"
	TypeChatsList           = "chats_list"
	TypeRatingsList         = "ratings_list"
	TypeNotificationsList   = "notifications_list"
	TypeModerationHistory   = "moderation_history"
	TypeChatCreated         = "chat_created"
	TypeChatExists          = "chat_exists"
	TypeChatError           = "chat_error"
	TypeNewMessage          = "new_message"
	TypeMessageError        = "message_error"
	TypeChatsUpdated        = "chats_updated"
	TypeChatEnded           = "chat_ended"
	TypeRatingSubmitted     = "rating_submitted"
	TypeRatingReceived      = "rating_received"
	TypeRatingError         = "rating_error"
	TypeModerationApplied   = "moderation_action_applied"
	TypeModerationReceived  = "moderation_action_received"
	TypeModerationError     = "moderation_error"
	TypeNotificationSent    = "notification_sent"
	TypeNewNotification     = "new_notification"
	TypeNotificationError   = "notification_error"
	TypeProfileUpdated      = "profile_updated"
	TypeProfileUpdateError  = "profile_update_error"
	TypeStaffAdded          = "staff_added"
	TypeStaffAddError       = "staff_add_error"
	TypeRoleChanged         = "role_changed"
	TypeRoleChangeError     = "role_change_error"
	TypeStaffDeleted        = "staff_deleted"
	TypeStaffDeleteError    = "staff_delete_error"
	TypeUserConnected       = "user_connected"
	TypeUserDisconnected    = "user_disconnected"
	TypeUserUpdated         = "user_updated"
	TypeError               = "error"
	TypePong                = "pong"
)

// Event is an outbound frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewEvent builds an outbound event.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data}
}

// Envelope is the inbound frame before its payload is decoded.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

type LoginMsg struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

type RegisterMsg struct {
	Username    string      `json:"username"`
	Credential  string      `json:"credential"`
	Role        models.Role `json:"role,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
}

type RestoreSessionMsg struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type UpdateProfileMsg struct {
	UserID      string  `json:"userId"`
	DisplayName *string `json:"displayName,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	Credential  *string `json:"credential,omitempty"`
}

type CreateChatMsg struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
}

// MessageBody is the content of a chat message.
type MessageBody struct {
	Text    string             `json:"text"`
	Type    models.MessageType `json:"type,omitempty"`
	File    *models.FileRef    `json:"file,omitempty"`
	Sticker string             `json:"sticker,omitempty"`
}

type SendMessageMsg struct {
	ChatID   string      `json:"chatId"`
	SenderID string      `json:"senderId"`
	Body     MessageBody `json:"body"`
}

type EndChatMsg struct {
	ChatID string `json:"chatId"`
}

type SubmitRatingMsg struct {
	ListenerID string `json:"listenerId"`
	UserID     string `json:"userId"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
}

type ApplyModerationMsg struct {
	UserID      string                  `json:"userId"`
	Action      models.ModerationAction `json:"action"`
	Reason      string                  `json:"reason"`
	ModeratorID string                  `json:"moderatorId"`
	Duration    *int                    `json:"duration,omitempty"`
}

type SendNotificationMsg struct {
	Title      string                  `json:"title"`
	Text       string                  `json:"text"`
	Type       models.NotificationType `json:"type"`
	Recipients models.Recipients       `json:"recipients"`
}

type RegisterStaffMsg struct {
	Username    string      `json:"username"`
	Credential  string      `json:"credential"`
	Role        models.Role `json:"role"`
	DisplayName string      `json:"displayName,omitempty"`
}

type ChangeRoleMsg struct {
	UserID  string      `json:"userId"`
	NewRole models.Role `json:"newRole"`
}

type DeleteStaffMsg struct {
	UserID string `json:"userId"`
}

type MarkNotificationReadMsg struct {
	NotificationID string `json:"notificationId"`
}

// QueryMsg is the empty payload of the get_* events.
type QueryMsg struct{}

type PingMsg struct{}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// Snapshot is the state handed to a freshly authenticated connection.
type Snapshot struct {
	Users             []models.UserView         `json:"users"`
	Chats             []models.Chat             `json:"chats"`
	Ratings           []models.Rating           `json:"ratings"`
	Notifications     []models.Notification     `json:"notifications"`
	ModerationHistory []models.ModerationRecord `json:"moderationHistory"`
}

type SessionMsg struct {
	Success bool            `json:"success"`
	User    models.UserView `json:"user"`
	Token   string          `json:"token,omitempty"`
	Snapshot
}

type ErrorMsg struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type UsersListMsg struct {
	Users []models.UserView `json:"users"`
}

type ChatsListMsg struct {
	Chats []models.Chat `json:"chats"`
}

type RatingsListMsg struct {
	Ratings []models.Rating `json:"ratings"`
}

type NotificationsListMsg struct {
	Notifications []models.Notification `json:"notifications"`
}

type ModerationHistoryMsg struct {
	History []models.ModerationRecord `json:"history"`
}

type ChatMsg struct {
	Chat models.Chat `json:"chat"`
}

type NewMessageMsg struct {
	ChatID  string         `json:"chatId"`
	Message models.Message `json:"message"`
}

type ChatEndedMsg struct {
	ChatID  string     `json:"chatId"`
	EndTime *time.Time `json:"endTime,omitempty"`
}

type ChatsUpdatedMsg struct{}

type RatingSubmittedMsg struct {
	ListenerID string  `json:"listenerId"`
	Average    float64 `json:"average"`
	Count      int     `json:"count"`
}

type RatingReceivedMsg struct {
	Rating  models.Rating `json:"rating"`
	Average float64       `json:"average"`
	Count   int           `json:"count"`
}

type ModerationAppliedMsg struct {
	Success bool                    `json:"success"`
	Record  models.ModerationRecord `json:"record"`
	User    models.UserView         `json:"user"`
}

type ModerationReceivedMsg struct {
	Action    models.ModerationAction `json:"action"`
	Reason    string                  `json:"reason"`
	Duration  *int                    `json:"duration,omitempty"`
	Moderator string                  `json:"moderator"`
}

type NotificationSentMsg struct {
	Success      bool                `json:"success"`
	Notification models.Notification `json:"notification"`
	Delivered    int                 `json:"delivered"`
}

type NotificationMsg struct {
	Notification models.Notification `json:"notification"`
}

type UserMsg struct {
	Success bool            `json:"success,omitempty"`
	User    models.UserView `json:"user"`
}

type UserIDMsg struct {
	Success bool   `json:"success,omitempty"`
	UserID  string `json:"userId"`
}

type PongMsg struct{}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ErrUnknownType is returned by ParseClientMessage for an unsupported type.
var ErrUnknownType = errors.New("protocol: unknown message type")

var payloadFactories = map[string]func() any{
	TypeLogin:                func() any { return &LoginMsg{} },
	TypeRegister:             func() any { return &RegisterMsg{} },
	TypeRestoreSession:       func() any { return &RestoreSessionMsg{} },
	TypeUpdateProfile:        func() any { return &UpdateProfileMsg{} },
	TypeCreateChat:           func() any { return &CreateChatMsg{} },
	TypeSendMessage:          func() any { return &SendMessageMsg{} },
	TypeEndChat:              func() any { return &EndChatMsg{} },
	TypeSubmitRating:         func() any { return &SubmitRatingMsg{} },
	TypeApplyModeration:      func() any { return &ApplyModerationMsg{} },
	TypeSendNotification:     func() any { return &SendNotificationMsg{} },
	TypeGetUsers:             func() any { return &QueryMsg{} },
	TypeGetChats:             func() any { return &QueryMsg{} },
	TypeGetRatings:           func() any { return &QueryMsg{} },
	TypeGetNotifications:     func() any { return &QueryMsg{} },
	TypeGetModerationHistory: func() any { return &QueryMsg{} },
	TypeRegisterStaff:        func() any { return &RegisterStaffMsg{} },
	TypeChangeRole:           func() any { return &ChangeRoleMsg{} },
	TypeDeleteStaff:          func() any { return &DeleteStaffMsg{} },
	TypeMarkNotificationRead: func() any { return &MarkNotificationReadMsg{} },
	TypePing:                 func() any { return &PingMsg{} },
}

// ParseClientMessage decodes an inbound frame. It returns the event type and a
// pointer to the typed payload (for example *LoginMsg).
func ParseClientMessage(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: invalid envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("protocol: missing or empty \"type\" field")
	}

	factory, ok := payloadFactories[env.Type]
	if !ok {
		return env.Type, nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
	payload := factory()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return env.Type, nil, fmt.Errorf("protocol: invalid %s payload: %w", env.Type, err)
		}
	}
	return env.Type, payload, nil
}

// ErrorEvent builds the <op>_error style event for err.
func ErrorEvent(eventType string, err error) Event {
	return NewEvent(eventType, ErrorMsg{
		Success: false,
		Code:    models.Code(err),
		Message: models.PublicMessage(err),
	})
}
