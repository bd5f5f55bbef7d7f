package router

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/session"
)

// NotificationInput is a technical announcement to broadcast.
type NotificationInput struct {
	Title      string
	Text       string
	Type       models.NotificationType
	Recipients models.Recipients
}

// SendNotification stores the notification and pushes it to every online
// member of the recipient group. Offline members see it in their next
// notification list; nothing is queued for them.
func (r *Router) SendNotification(ctx context.Context, in NotificationInput) (models.Notification, int, error) {
	if in.Type == "" {
		in.Type = models.NotificationInfo
	}
	if in.Recipients == "" {
		in.Recipients = models.RecipientsAll
	}
	if !in.Type.Valid() || !in.Recipients.Valid() || in.Title == "" {
		return models.Notification{}, 0, models.ErrInvalidNotification
	}

	n := models.Notification{
		ID:         uuid.New().String(),
		Title:      in.Title,
		Text:       in.Text,
		Type:       in.Type,
		Recipients: in.Recipients,
		Timestamp:  r.Now(),
		ReadBy:     []string{},
	}
	err := r.Storage.Notifications.Update(ctx, func(ns []models.Notification) ([]models.Notification, error) {
		return append(ns, n), nil
	})
	if err != nil {
		return models.Notification{}, 0, err
	}

	ev := protocol.NewEvent(protocol.TypeNewNotification, protocol.NotificationMsg{Notification: n})
	delivered := 0
	for _, u := range r.Storage.Users.Snapshot() {
		if in.Recipients.Includes(u.Role) && r.Notifier.Deliver(u.ID, ev) {
			delivered++
		}
	}
	return n, delivered, nil
}

// VisibleNotifications returns the notifications addressed to viewer.
func (r *Router) VisibleNotifications(viewer models.User) []models.Notification {
	return session.VisibleNotifications(r.Storage.Notifications.Snapshot(), viewer)
}

// MarkNotificationRead records that userID has read the notification.
func (r *Router) MarkNotificationRead(ctx context.Context, notificationID, userID string) (models.Notification, error) {
	var n models.Notification
	err := r.Storage.Notifications.Update(ctx, func(ns []models.Notification) ([]models.Notification, error) {
		idx := slices.IndexFunc(ns, func(n models.Notification) bool { return n.ID == notificationID })
		if idx < 0 {
			return nil, models.ErrNotificationNotFound
		}
		if ns[idx].IsReadBy(userID) {
			n = ns[idx]
			return nil, errUnchanged
		}
		ns[idx].ReadBy = append(slices.Clip(ns[idx].ReadBy), userID)
		n = ns[idx]
		return ns, nil
	})
	if errors.Is(err, errUnchanged) {
		return n, nil
	}
	return n, err
}
