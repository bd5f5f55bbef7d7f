package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access level of an account.
type Role string

const (
	RoleUser     Role = "user"
	RoleListener Role = "listener"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleListener, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// IsStaff reports whether the role may moderate and see every chat.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleOwner
}

// DefaultAvatar returns the avatar assigned to a fresh account of the role.
func (r Role) DefaultAvatar() string {
	switch r {
	case RoleListener:
		return "🎧"
	case RoleAdmin:
		return "🛡️"
	case RoleOwner:
		return "👑"
	default:
		return "👤"
	}
}

// User is a registered account. It is the only record presence state lives on:
// ConnectionRef is a weak reference to a live connection that only the
// presence registry dereferences.
type User struct {
	// ID is the opaque unique identifier (UUID).
	ID string `json:"id"`
	// Username is unique and compared case-sensitively.
	Username string `json:"username"`
	// Credential is compared by equality; it never leaves the process.
	Credential  string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	Avatar      string `json:"avatar"`

	// Rating and RatingCount are a cached projection of the Rating collection.
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"ratingCount"`

	// Online is true exactly when ConnectionRef is set.
	Online        bool      `json:"online"`
	ConnectionRef string    `json:"connectionRef,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`

	IsBlocked     bool       `json:"isBlocked"`
	BlockedUntil  *time.Time `json:"blockedUntil,omitempty"`
	IsOnVacation  bool       `json:"isOnVacation"`
	VacationUntil *time.Time `json:"vacationUntil,omitempty"`
	Warnings      int        `json:"warnings"`
}

// NewUser builds an offline account with a fresh ID and the role's default avatar.
func NewUser(username, credential, displayName string, role Role, now time.Time) User {
	if displayName == "" {
		displayName = username
	}
	return User{
		ID:          uuid.New().String(),
		Username:    username,
		Credential:  credential,
		DisplayName: displayName,
		Role:        role,
		Avatar:      role.DefaultAvatar(),
		CreatedAt:   now,
	}
}

// BlockActive reports whether the block still applies at now. A block without
// an end date never expires.
func (u User) BlockActive(now time.Time) bool {
	if !u.IsBlocked {
		return false
	}
	return u.BlockedUntil == nil || now.Before(*u.BlockedUntil)
}

// VacationActive reports whether the vacation still applies at now.
func (u User) VacationActive(now time.Time) bool {
	if !u.IsOnVacation {
		return false
	}
	return u.VacationUntil == nil || now.Before(*u.VacationUntil)
}

// UserView is the outbound projection of a User.
type UserView struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	DisplayName   string     `json:"displayName"`
	Role          Role       `json:"role"`
	Avatar        string     `json:"avatar"`
	Rating        float64    `json:"rating"`
	RatingCount   int        `json:"ratingCount"`
	Online        bool       `json:"online"`
	CreatedAt     time.Time  `json:"createdAt"`
	IsBlocked     bool       `json:"isBlocked"`
	BlockedUntil  *time.Time `json:"blockedUntil,omitempty"`
	IsOnVacation  bool       `json:"isOnVacation"`
	VacationUntil *time.Time `json:"vacationUntil,omitempty"`
	Warnings      int        `json:"warnings"`
}

// View strips the credential and the connection reference.
func (u User) View() UserView {
	return UserView{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		Avatar:        u.Avatar,
		Rating:        u.Rating,
		RatingCount:   u.RatingCount,
		Online:        u.Online,
		CreatedAt:     u.CreatedAt,
		IsBlocked:     u.IsBlocked,
		BlockedUntil:  u.BlockedUntil,
		IsOnVacation:  u.IsOnVacation,
		VacationUntil: u.VacationUntil,
		Warnings:      u.Warnings,
	}
}

// Views projects a slice of users.
func Views(users []User) []UserView {
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, u.View())
	}
	return out
}
