package models

import "errors"

// Error kinds. Every error returned by the services wraps exactly one of them.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPermission  = errors.New("permission denied")
	ErrPersistence = errors.New("persistence failure")
)

// Error is a domain error with a stable code for the wire.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Session errors.
var (
	ErrInvalidCredentials = newError(ErrPermission, "invalid_credentials", "invalid username or password")
	ErrAccountBlocked     = newError(ErrPermission, "account_blocked", "account is blocked")
	ErrUsernameTaken      = newError(ErrConflict, "username_taken", "username is already taken")
	ErrUsernameTooShort   = newError(ErrValidation, "username_too_short", "username must be at least 3 characters")
	ErrPasswordTooShort   = newError(ErrValidation, "password_too_short", "password must be at least 6 characters")
	ErrInvalidRole        = newError(ErrValidation, "invalid_role", "role is not allowed here")
	ErrDisplayNameEmpty   = newError(ErrValidation, "display_name_empty", "display name cannot be empty")
	ErrUserNotFound       = newError(ErrNotFound, "user_not_found", "user not found")
	ErrOwnerProtected     = newError(ErrPermission, "owner_protected", "the owner account cannot be changed")
)

// Chat errors.
var (
	ErrParticipantNotFound = newError(ErrNotFound, "participant_not_found", "chat participant not found")
	ErrParticipantBlocked  = newError(ErrPermission, "participant_blocked", "chat participant is blocked")
	ErrSameParticipant     = newError(ErrValidation, "same_participant", "a chat needs two different participants")
	ErrChatNotFound        = newError(ErrNotFound, "chat_not_found", "chat not found")
	ErrChatInactive        = newError(ErrValidation, "chat_inactive", "chat has ended")
	ErrNotParticipant      = newError(ErrPermission, "not_participant", "sender is not a participant of the chat")
	ErrEmptyMessage        = newError(ErrValidation, "empty_message", "message has no content")
)

// Moderation, notification and rating errors.
var (
	ErrUnknownAction        = newError(ErrValidation, "unknown_action", "unknown moderation action")
	ErrAlreadyBlocked       = newError(ErrPermission, "already_blocked", "user is already blocked")
	ErrAlreadyOnVacation    = newError(ErrPermission, "already_on_vacation", "user is already on vacation")
	ErrInvalidNotification  = newError(ErrValidation, "invalid_notification", "notification type or recipients are invalid")
	ErrNotificationNotFound = newError(ErrNotFound, "notification_not_found", "notification not found")
	ErrInvalidScore         = newError(ErrValidation, "invalid_score", "rating must be between 1 and 5")
	ErrListenerNotFound     = newError(ErrNotFound, "listener_not_found", "listener not found")
	ErrStaffOnly            = newError(ErrPermission, "staff_only", "only admins can do this")
	ErrNotAuthenticated     = newError(ErrPermission, "not_authenticated", "log in first")
	ErrInvalidSession       = newError(ErrPermission, "invalid_session", "session token is invalid or expired")
	ErrRateLimited          = newError(ErrPermission, "rate_limited", "too many messages, slow down")
)

// Protocol errors.
var (
	ErrMalformedEvent   = newError(ErrValidation, "malformed_event", "event could not be decoded")
	ErrUnsupportedEvent = newError(ErrValidation, "unsupported_event", "unsupported event type")
)

// Code returns the wire code for err. Persistence failures are reported
// generically.
func Code(err error) string {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, ErrPersistence):
		return "persistence_failed"
	default:
		return "internal_error"
	}
}

// PublicMessage returns the message safe to send to a client.
func PublicMessage(err error) string {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Message
	case errors.Is(err, ErrPersistence):
		return "the change could not be saved, try again"
	default:
		return "internal error"
	}
}
