// Package session implements login, registration, session restore, profile
// updates and staff account management.
package session

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/storage"
)

// Manager issues sessions bound to connections.
type Manager struct {
	Storage  *storage.Service
	Presence *presence.Registry
	Now      func() time.Time
}

func NewManager(s *storage.Service, p *presence.Registry) *Manager {
	return &Manager{Storage: s, Presence: p, Now: time.Now}
}

// RegisterInput is the data of a new account.
type RegisterInput struct {
	Username    string
	Credential  string
	Role        models.Role
	DisplayName string
}

// ProfileUpdate carries the fields to change; nil fields are kept.
type ProfileUpdate struct {
	DisplayName *string
	Avatar      *string
	Credential  *string
}

// Login authenticates username/credential and binds the account to connID.
// A blocked account is refused whatever the credential; a block that has run
// out is lifted.
func (m *Manager) Login(ctx context.Context, connID, username, credential string) (models.User, error) {
	now := m.Now()
	return m.Presence.BindWith(ctx, connID, func(users []models.User) ([]models.User, int, error) {
		idx := slices.IndexFunc(users, func(u models.User) bool { return u.Username == username })
		if idx < 0 {
			return nil, -1, models.ErrInvalidCredentials
		}
		u := &users[idx]
		if u.BlockActive(now) {
			return nil, -1, models.ErrAccountBlocked
		}
		if u.Credential != credential {
			return nil, -1, models.ErrInvalidCredentials
		}
		if u.IsBlocked {
			u.IsBlocked = false
			u.BlockedUntil = nil
		}
		return users, idx, nil
	})
}

// Register creates an account bound to connID. Public registration may pick
// the user or listener role only.
func (m *Manager) Register(ctx context.Context, connID string, in RegisterInput) (models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if err := validateAccount(in); err != nil {
		return models.User{}, err
	}
	if in.Role != models.RoleUser && in.Role != models.RoleListener {
		return models.User{}, models.ErrInvalidRole
	}

	now := m.Now()
	return m.Presence.BindWith(ctx, connID, func(users []models.User) ([]models.User, int, error) {
		if usernameTaken(users, in.Username) {
			return nil, -1, models.ErrUsernameTaken
		}
		users = append(users, models.NewUser(in.Username, in.Credential, in.DisplayName, in.Role, now))
		return users, len(users) - 1, nil
	})
}

// Restore rebinds userID to connID without checking credentials; the caller
// proved possession of a session token beforehand.
func (m *Manager) Restore(ctx context.Context, connID, userID string) (models.User, error) {
	return m.Presence.Bind(ctx, userID, connID)
}

// UpdateProfile applies a partial profile update.
func (m *Manager) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error) {
	if upd.Credential != nil && utf8.RuneCountInString(*upd.Credential) < config.MinPasswordLength {
		return models.User{}, models.ErrPasswordTooShort
	}
	if upd.DisplayName != nil && strings.TrimSpace(*upd.DisplayName) == "" {
		return models.User{}, models.ErrDisplayNameEmpty
	}

	var updated models.User
	err := m.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		idx := indexByID(users, userID)
		if idx < 0 {
			return nil, models.ErrUserNotFound
		}
		u := &users[idx]
		if upd.DisplayName != nil {
			u.DisplayName = strings.TrimSpace(*upd.DisplayName)
		}
		if upd.Avatar != nil {
			u.Avatar = *upd.Avatar
		}
		if upd.Credential != nil {
			u.Credential = *upd.Credential
		}
		updated = *u
		return users, nil
	})
	return updated, err
}

// User returns the account with the given id.
func (m *Manager) User(userID string) (models.User, error) {
	u, ok := m.Storage.Users.Find(func(u models.User) bool { return u.ID == userID })
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

// Snapshot assembles the state sent to a freshly authenticated connection.
func (m *Manager) Snapshot(userID string) (protocol.Snapshot, error) {
	viewer, err := m.User(userID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return protocol.Snapshot{
		Users:             m.UsersFor(viewer),
		Chats:             VisibleChats(m.Storage.Chats.Snapshot(), viewer),
		Ratings:           m.Storage.Ratings.Snapshot(),
		Notifications:     VisibleNotifications(m.Storage.Notifications.Snapshot(), viewer),
		ModerationHistory: VisibleModeration(m.Storage.Moderation.Snapshot(), viewer),
	}, nil
}

// UsersFor lists every account except the viewer.
func (m *Manager) UsersFor(viewer models.User) []models.UserView {
	users := m.Storage.Users.Snapshot()
	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		if u.ID != viewer.ID {
			views = append(views, u.View())
		}
	}
	return views
}

// VisibleChats applies the visibility rule: staff see every chat, everyone
// else only the chats they take part in.
func VisibleChats(chats []models.Chat, viewer models.User) []models.Chat {
	if viewer.Role.IsStaff() {
		return chats
	}
	return slices.DeleteFunc(chats, func(c models.Chat) bool { return !c.Involves(viewer.ID) })
}

// VisibleNotifications keeps the notifications addressed to the viewer's role.
func VisibleNotifications(ns []models.Notification, viewer models.User) []models.Notification {
	if viewer.Role.IsStaff() {
		return ns
	}
	return slices.DeleteFunc(ns, func(n models.Notification) bool { return !n.Recipients.Includes(viewer.Role) })
}

// VisibleModeration keeps the records a viewer may read: staff see the whole
// trail, others the sanctions applied to themselves.
func VisibleModeration(records []models.ModerationRecord, viewer models.User) []models.ModerationRecord {
	if viewer.Role.IsStaff() {
		return records
	}
	return slices.DeleteFunc(records, func(r models.ModerationRecord) bool { return r.UserID != viewer.ID })
}

func validateAccount(in RegisterInput) error {
	if utf8.RuneCountInString(in.Username) < config.MinUsernameLength {
		return models.ErrUsernameTooShort
	}
	if utf8.RuneCountInString(in.Credential) < config.MinPasswordLength {
		return models.ErrPasswordTooShort
	}
	return nil
}

func usernameTaken(users []models.User, username string) bool {
	return slices.ContainsFunc(users, func(u models.User) bool { return u.Username == username })
}

func indexByID(users []models.User, id string) int {
	return slices.IndexFunc(users, func(u models.User) bool { return u.ID == id })
}
