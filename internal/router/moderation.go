package router

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
)

// ModerationInput describes a sanction. Duration is in days and defaults to
// config.DefaultSanctionDays for blocks and vacations.
type ModerationInput struct {
	UserID      string
	Action      models.ModerationAction
	Reason      string
	ModeratorID string
	Duration    *int
}

// ApplyModeration applies a sanction to the target account and appends it to
// the audit trail. The user record is saved before the trail.
func (r *Router) ApplyModeration(ctx context.Context, in ModerationInput) (models.ModerationRecord, models.User, error) {
	switch in.Action {
	case models.ActionWarning, models.ActionBlock, models.ActionVacation:
	default:
		return models.ModerationRecord{}, models.User{}, models.ErrUnknownAction
	}

	now := r.Now()
	var days *int
	if in.Action != models.ActionWarning {
		d := config.DefaultSanctionDays
		if in.Duration != nil && *in.Duration > 0 {
			d = *in.Duration
		}
		days = &d
	}

	var target models.User
	err := r.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		idx := slices.IndexFunc(users, func(u models.User) bool { return u.ID == in.UserID })
		if idx < 0 {
			return nil, models.ErrUserNotFound
		}
		u := &users[idx]
		if u.Role == models.RoleOwner {
			return nil, models.ErrOwnerProtected
		}
		switch in.Action {
		case models.ActionWarning:
			u.Warnings++
		case models.ActionBlock:
			if u.BlockActive(now) {
				return nil, models.ErrAlreadyBlocked
			}
			until := now.Add(time.Duration(*days) * 24 * time.Hour)
			u.IsBlocked = true
			u.BlockedUntil = &until
		case models.ActionVacation:
			if u.VacationActive(now) {
				return nil, models.ErrAlreadyOnVacation
			}
			until := now.Add(time.Duration(*days) * 24 * time.Hour)
			u.IsOnVacation = true
			u.VacationUntil = &until
		}
		target = *u
		return users, nil
	})
	if err != nil {
		return models.ModerationRecord{}, models.User{}, err
	}

	record := models.ModerationRecord{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		ModeratorID: in.ModeratorID,
		Action:      in.Action,
		Reason:      in.Reason,
		Duration:    days,
		Timestamp:   now,
	}
	err = r.Storage.Moderation.Update(ctx, func(records []models.ModerationRecord) ([]models.ModerationRecord, error) {
		return append(records, record), nil
	})
	if err != nil {
		return models.ModerationRecord{}, models.User{}, err
	}

	log.Printf("INFO: [router] %s applied %s to %s", in.ModeratorID, in.Action, in.UserID)
	r.Notifier.Deliver(target.ID, protocol.NewEvent(protocol.TypeModerationReceived, protocol.ModerationReceivedMsg{
		Action:    record.Action,
		Reason:    record.Reason,
		Duration:  record.Duration,
		Moderator: r.moderatorName(in.ModeratorID),
	}))
	r.Notifier.Broadcast(protocol.NewEvent(protocol.TypeUserUpdated, protocol.UserMsg{User: target.View()}), "")
	return record, target, nil
}

// LiftBlock removes a block before it runs out.
func (r *Router) LiftBlock(ctx context.Context, userID string) (models.User, error) {
	var target models.User
	err := r.Storage.Users.Update(ctx, func(users []models.User) ([]models.User, error) {
		idx := slices.IndexFunc(users, func(u models.User) bool { return u.ID == userID })
		if idx < 0 {
			return nil, models.ErrUserNotFound
		}
		users[idx].IsBlocked = false
		users[idx].BlockedUntil = nil
		target = users[idx]
		return users, nil
	})
	if err != nil {
		return models.User{}, err
	}
	r.Notifier.Broadcast(protocol.NewEvent(protocol.TypeUserUpdated, protocol.UserMsg{User: target.View()}), "")
	return target, nil
}

// ModerationHistory returns the audit trail in the order it was written.
func (r *Router) ModerationHistory() []models.ModerationRecord {
	return r.Storage.Moderation.Snapshot()
}

func (r *Router) moderatorName(id string) string {
	if u, ok := r.Storage.Users.Find(func(u models.User) bool { return u.ID == id }); ok {
		return u.DisplayName
	}
	return id
}
