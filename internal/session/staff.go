package session

import (
	"context"
	"log"

	"supportchat/backend/internal/models"
)

// RegisterStaff creates an offline listener or admin account on behalf of an
// admin.
func (m *Manager) RegisterStaff(ctx context.Context, in RegisterInput) (models.User, error) {
	if err := validateAccount(in); err != nil {
		return models.User{}, err
	}
	if in.Role != models.RoleListener && in.Role != models.RoleAdmin {
		return models.User{}, models.ErrInvalidRole
	}

	var created models.User
	err := m.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		if usernameTaken(users, in.Username) {
			return nil, models.ErrUsernameTaken
		}
		created = models.NewUser(in.Username, in.Credential, in.DisplayName, in.Role, m.Now())
		return append(users, created), nil
	})
	return created, err
}

// ChangeRole moves an account to newRole. The owner cannot be changed and
// nobody can be promoted to owner. A custom avatar survives the change; the
// default avatar follows the role.
func (m *Manager) ChangeRole(ctx context.Context, userID string, newRole models.Role) (models.User, error) {
	if !newRole.Valid() || newRole == models.RoleOwner {
		return models.User{}, models.ErrInvalidRole
	}

	var updated models.User
	err := m.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		idx := indexByID(users, userID)
		if idx < 0 {
			return nil, models.ErrUserNotFound
		}
		u := &users[idx]
		if u.Role == models.RoleOwner {
			return nil, models.ErrOwnerProtected
		}
		if u.Avatar == "" || u.Avatar == u.Role.DefaultAvatar() {
			u.Avatar = newRole.DefaultAvatar()
		}
		u.Role = newRole
		updated = *u
		return users, nil
	})
	return updated, err
}

// DeleteStaff removes an account. It returns the removed record so the caller
// can drop its connection.
func (m *Manager) DeleteStaff(ctx context.Context, userID string) (models.User, error) {
	var removed models.User
	err := m.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		idx := indexByID(users, userID)
		if idx < 0 {
			return nil, models.ErrUserNotFound
		}
		if users[idx].Role == models.RoleOwner {
			return nil, models.ErrOwnerProtected
		}
		removed = users[idx]
		return append(users[:idx], users[idx+1:]...), nil
	})
	return removed, err
}

// SeedOwner creates the owner account unless one exists. It returns true if
// an account was created.
func (m *Manager) SeedOwner(ctx context.Context, username, credential string) (bool, error) {
	if err := validateAccount(RegisterInput{Username: username, Credential: credential}); err != nil {
		return false, err
	}
	created := false
	err := m.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		for _, u := range users {
			if u.Role == models.RoleOwner {
				return users, nil
			}
		}
		if usernameTaken(users, username) {
			return nil, models.ErrUsernameTaken
		}
		created = true
		return append(users, models.NewUser(username, credential, "Owner", models.RoleOwner, m.Now())), nil
	})
	if created {
		log.Printf("INFO: [session] owner account %q created", username)
	}
	return created, err
}
