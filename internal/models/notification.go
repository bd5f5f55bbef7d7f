package models

import (
	"slices"
	"time"
)

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	return t == NotificationInfo || t == NotificationWarning || t == NotificationError
}

// Recipients selects which roles a notification is addressed to.
type Recipients string

const (
	RecipientsAll       Recipients = "all"
	RecipientsUsers     Recipients = "users"
	RecipientsListeners Recipients = "listeners"
	RecipientsAdmins    Recipients = "admins"
)

// Valid reports whether r is a known recipient group.
func (r Recipients) Valid() bool {
	switch r {
	case RecipientsAll, RecipientsUsers, RecipientsListeners, RecipientsAdmins:
		return true
	}
	return false
}

// Includes reports whether an account with the given role belongs to the group.
func (r Recipients) Includes(role Role) bool {
	switch r {
	case RecipientsAll:
		return true
	case RecipientsUsers:
		return role == RoleUser
	case RecipientsListeners:
		return role == RoleListener
	case RecipientsAdmins:
		return role.IsStaff()
	}
	return false
}

// Notification is a technical announcement. ReadBy holds the ids of users who
// acknowledged it.
type Notification struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Text       string           `json:"text"`
	Type       NotificationType `json:"type"`
	Recipients Recipients       `json:"recipients"`
	Timestamp  time.Time        `json:"timestamp"`
	ReadBy     []string         `json:"readBy"`
}

// IsReadBy reports whether userID acknowledged the notification.
func (n Notification) IsReadBy(userID string) bool {
	return slices.Contains(n.ReadBy, userID)
}
