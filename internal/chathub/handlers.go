package chathub

import (
	"context"
	"errors"
	"log"
	"time"

	"supportchat/backend/internal/metrics"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/ratelimit"
	"supportchat/backend/internal/router"
	"supportchat/backend/internal/session"
)

type handlerFunc func(m *ManagerService, ctx context.Context, c Client, user models.User, payload any) error

type handler struct {
	// open handlers run before authentication.
	open  bool
	staff bool
	// errType is the event failures are reported as; TypeError when empty.
	errType string
	fn      handlerFunc
}

var handlers = map[string]handler{
	protocol.TypeLogin:                {open: true, errType: protocol.TypeLoginError, fn: (*ManagerService).handleLogin},
	protocol.TypeRegister:             {open: true, errType: protocol.TypeRegistrationError, fn: (*ManagerService).handleRegister},
	protocol.TypeRestoreSession:       {open: true, errType: protocol.TypeSessionRestored, fn: (*ManagerService).handleRestore},
	protocol.TypePing:                 {open: true, fn: (*ManagerService).handlePing},
	protocol.TypeUpdateProfile:        {errType: protocol.TypeProfileUpdateError, fn: (*ManagerService).handleUpdateProfile},
	protocol.TypeCreateChat:           {errType: protocol.TypeChatError, fn: (*ManagerService).handleCreateChat},
	protocol.TypeSendMessage:          {errType: protocol.TypeMessageError, fn: (*ManagerService).handleSendMessage},
	protocol.TypeEndChat:              {errType: protocol.TypeChatError, fn: (*ManagerService).handleEndChat},
	protocol.TypeSubmitRating:         {errType: protocol.TypeRatingError, fn: (*ManagerService).handleSubmitRating},
	protocol.TypeGetUsers:             {fn: (*ManagerService).handleGetUsers},
	protocol.TypeGetChats:             {fn: (*ManagerService).handleGetChats},
	protocol.TypeGetRatings:           {fn: (*ManagerService).handleGetRatings},
	protocol.TypeGetNotifications:     {fn: (*ManagerService).handleGetNotifications},
	protocol.TypeGetModerationHistory: {fn: (*ManagerService).handleGetModerationHistory},
	protocol.TypeMarkNotificationRead: {errType: protocol.TypeNotificationError, fn: (*ManagerService).handleMarkNotificationRead},
	protocol.TypeApplyModeration:      {staff: true, errType: protocol.TypeModerationError, fn: (*ManagerService).handleApplyModeration},
	protocol.TypeSendNotification:     {staff: true, errType: protocol.TypeNotificationError, fn: (*ManagerService).handleSendNotification},
	protocol.TypeRegisterStaff:        {staff: true, errType: protocol.TypeStaffAddError, fn: (*ManagerService).handleRegisterStaff},
	protocol.TypeChangeRole:           {staff: true, errType: protocol.TypeRoleChangeError, fn: (*ManagerService).handleChangeRole},
	protocol.TypeDeleteStaff:          {staff: true, errType: protocol.TypeStaffDeleteError, fn: (*ManagerService).handleDeleteStaff},
}

// Dispatch decodes and handles one inbound frame of c. Failures are reported
// to c only.
func (m *ManagerService) Dispatch(ctx context.Context, c Client, raw []byte) {
	start := time.Now()
	eventType, payload, err := protocol.ParseClientMessage(raw)
	if err != nil {
		log.Printf("WARNING: [chathub] %s sent a bad frame: %v", c.ID(), err)
		reason := models.ErrMalformedEvent
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = models.ErrUnsupportedEvent
		}
		metrics.EventsTotal.WithLabelValues("invalid", "error").Inc()
		c.Send(protocol.ErrorEvent(protocol.TypeError, reason))
		return
	}

	h, ok := handlers[eventType]
	if !ok {
		c.Send(protocol.ErrorEvent(protocol.TypeError, models.ErrUnsupportedEvent))
		return
	}

	outcome := "ok"
	if err := m.handle(ctx, c, h, payload); err != nil {
		outcome = "error"
		if errors.Is(err, models.ErrPersistence) {
			log.Printf("ERROR: [chathub] %s from %s: %v", eventType, c.ID(), err)
		}
		errType := h.errType
		if errType == "" {
			errType = protocol.TypeError
		}
		c.Send(protocol.ErrorEvent(errType, err))
	}
	metrics.EventsTotal.WithLabelValues(eventType, outcome).Inc()
	metrics.EventLatency.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
}

func (m *ManagerService) handle(ctx context.Context, c Client, h handler, payload any) error {
	var user models.User
	if !h.open {
		id := c.UserID()
		if id == "" {
			return models.ErrNotAuthenticated
		}
		u, err := m.Sessions.User(id)
		if err != nil {
			c.SetUserID("")
			return models.ErrNotAuthenticated
		}
		if h.staff && !u.Role.IsStaff() {
			return models.ErrStaffOnly
		}
		user = u
	}
	return h.fn(m, ctx, c, user, payload)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (m *ManagerService) handleLogin(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.LoginMsg)
	user, err := m.Sessions.Login(ctx, c.ID(), msg.Username, msg.Credential)
	if err != nil {
		return err
	}
	return m.startSession(c, protocol.TypeLoginSuccess, user)
}

func (m *ManagerService) handleRegister(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.RegisterMsg)
	user, err := m.Sessions.Register(ctx, c.ID(), session.RegisterInput{
		Username:    msg.Username,
		Credential:  msg.Credential,
		Role:        msg.Role,
		DisplayName: msg.DisplayName,
	})
	if err != nil {
		return err
	}
	log.Printf("INFO: [chathub] registered %s as %s", user.Username, user.Role)
	return m.startSession(c, protocol.TypeRegistrationSuccess, user)
}

// handleRestore rebinds the account named by a valid session token.
func (m *ManagerService) handleRestore(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.RestoreSessionMsg)
	if m.Tokens == nil || msg.Token == "" {
		return models.ErrInvalidSession
	}
	subject, err := m.Tokens.Verify(msg.Token)
	if err != nil || (msg.UserID != "" && msg.UserID != subject) {
		return models.ErrInvalidSession
	}
	user, err := m.Sessions.Restore(ctx, c.ID(), subject)
	if err != nil {
		return err
	}
	return m.startSession(c, protocol.TypeSessionRestored, user)
}

// startSession marks c as authenticated, sends it the snapshot and announces
// the user to everyone else.
func (m *ManagerService) startSession(c Client, eventType string, user models.User) error {
	previous := c.UserID()
	m.detachUser(user.ID, c.ID())
	c.SetUserID(user.ID)
	// Binding c to user released the account c was signed in as.
	if previous != "" && previous != user.ID && !m.Presence.IsOnline(previous) {
		m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserDisconnected, protocol.UserIDMsg{UserID: previous}), c.ID())
		log.Printf("INFO: [chathub] %s released by connection %s", previous, c.ID())
	}

	var token string
	if m.Tokens != nil {
		t, err := m.Tokens.Issue(user.ID)
		if err != nil {
			log.Printf("WARNING: [chathub] issuing token for %s: %v", user.ID, err)
		}
		token = t
	}
	snap, err := m.Sessions.Snapshot(user.ID)
	if err != nil {
		return err
	}

	c.Send(protocol.NewEvent(eventType, protocol.SessionMsg{
		Success:  true,
		User:     user.View(),
		Token:    token,
		Snapshot: snap,
	}))
	m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserConnected, protocol.UserMsg{User: user.View()}), c.ID())
	log.Printf("INFO: [chathub] %s (%s) online on %s", user.Username, user.ID, c.ID())
	return nil
}

func (m *ManagerService) handlePing(_ context.Context, c Client, _ models.User, _ any) error {
	c.Send(protocol.NewEvent(protocol.TypePong, protocol.PongMsg{}))
	return nil
}

func (m *ManagerService) handleUpdateProfile(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.UpdateProfileMsg)
	target := user.ID
	if msg.UserID != "" && msg.UserID != user.ID {
		if !user.Role.IsStaff() {
			return models.ErrStaffOnly
		}
		target = msg.UserID
	}
	updated, err := m.Sessions.UpdateProfile(ctx, target, session.ProfileUpdate{
		DisplayName: msg.DisplayName,
		Avatar:      msg.Avatar,
		Credential:  msg.Credential,
	})
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeProfileUpdated, protocol.UserMsg{Success: true, User: updated.View()}))
	m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserUpdated, protocol.UserMsg{User: updated.View()}), c.ID())
	return nil
}

// ---------------------------------------------------------------------------
// Chats and ratings
// ---------------------------------------------------------------------------

func (m *ManagerService) handleCreateChat(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.CreateChatMsg)
	if !user.Role.IsStaff() && user.ID != msg.User1 && user.ID != msg.User2 {
		return models.ErrNotParticipant
	}
	chat, created, err := m.Router.CreateChat(ctx, msg.User1, msg.User2)
	if err != nil {
		return err
	}
	// Participants are told by the router; a staff member opening a chat for
	// others gets the result directly.
	if !chat.Involves(user.ID) {
		eventType := protocol.TypeChatExists
		if created {
			eventType = protocol.TypeChatCreated
		}
		c.Send(protocol.NewEvent(eventType, protocol.ChatMsg{Chat: chat}))
	}
	return nil
}

func (m *ManagerService) handleSendMessage(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.SendMessageMsg)
	if msg.SenderID != "" && msg.SenderID != user.ID {
		return models.ErrNotParticipant
	}
	if user.BlockActive(m.Router.Now()) {
		return models.ErrAccountBlocked
	}
	if !m.Limiter.Allow(ctx, user.ID, ratelimit.RuleMessage) {
		return models.ErrRateLimited
	}
	_, err := m.Router.SendMessage(ctx, msg.ChatID, user.ID, msg.Body)
	return err
}

func (m *ManagerService) handleEndChat(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.EndChatMsg)
	chat, err := m.Router.Chat(msg.ChatID)
	if err != nil {
		return err
	}
	if !user.Role.IsStaff() && !chat.Involves(user.ID) {
		return models.ErrNotParticipant
	}
	return m.Router.EndChat(ctx, msg.ChatID)
}

func (m *ManagerService) handleSubmitRating(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.SubmitRatingMsg)
	res, err := m.Ratings.Submit(ctx, msg.ListenerID, user.ID, msg.Score, msg.Comment)
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeRatingSubmitted, protocol.RatingSubmittedMsg{
		ListenerID: msg.ListenerID,
		Average:    res.Average,
		Count:      res.Count,
	}))
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (m *ManagerService) handleGetUsers(_ context.Context, c Client, user models.User, _ any) error {
	c.Send(protocol.NewEvent(protocol.TypeUsersList, protocol.UsersListMsg{Users: m.Sessions.UsersFor(user)}))
	return nil
}

func (m *ManagerService) handleGetChats(_ context.Context, c Client, user models.User, _ any) error {
	c.Send(protocol.NewEvent(protocol.TypeChatsList, protocol.ChatsListMsg{Chats: m.Router.VisibleChats(user)}))
	return nil
}

func (m *ManagerService) handleGetRatings(_ context.Context, c Client, _ models.User, _ any) error {
	c.Send(protocol.NewEvent(protocol.TypeRatingsList, protocol.RatingsListMsg{Ratings: m.Ratings.Ratings()}))
	return nil
}

func (m *ManagerService) handleGetNotifications(_ context.Context, c Client, user models.User, _ any) error {
	c.Send(protocol.NewEvent(protocol.TypeNotificationsList, protocol.NotificationsListMsg{
		Notifications: m.Router.VisibleNotifications(user),
	}))
	return nil
}

func (m *ManagerService) handleGetModerationHistory(_ context.Context, c Client, user models.User, _ any) error {
	c.Send(protocol.NewEvent(protocol.TypeModerationHistory, protocol.ModerationHistoryMsg{
		History: session.VisibleModeration(m.Router.ModerationHistory(), user),
	}))
	return nil
}

func (m *ManagerService) handleMarkNotificationRead(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.MarkNotificationReadMsg)
	if _, err := m.Router.MarkNotificationRead(ctx, msg.NotificationID, user.ID); err != nil {
		return err
	}
	return m.handleGetNotifications(ctx, c, user, nil)
}

// ---------------------------------------------------------------------------
// Staff
// ---------------------------------------------------------------------------

func (m *ManagerService) handleApplyModeration(ctx context.Context, c Client, user models.User, payload any) error {
	msg := payload.(*protocol.ApplyModerationMsg)
	record, target, err := m.Router.ApplyModeration(ctx, router.ModerationInput{
		UserID:      msg.UserID,
		Action:      msg.Action,
		Reason:      msg.Reason,
		ModeratorID: user.ID,
		Duration:    msg.Duration,
	})
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeModerationApplied, protocol.ModerationAppliedMsg{
		Success: true,
		Record:  record,
		User:    target.View(),
	}))
	return nil
}

func (m *ManagerService) handleSendNotification(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.SendNotificationMsg)
	n, delivered, err := m.Router.SendNotification(ctx, router.NotificationInput{
		Title:      msg.Title,
		Text:       msg.Text,
		Type:       msg.Type,
		Recipients: msg.Recipients,
	})
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeNotificationSent, protocol.NotificationSentMsg{
		Success:      true,
		Notification: n,
		Delivered:    delivered,
	}))
	return nil
}

func (m *ManagerService) handleRegisterStaff(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.RegisterStaffMsg)
	created, err := m.Sessions.RegisterStaff(ctx, session.RegisterInput{
		Username:    msg.Username,
		Credential:  msg.Credential,
		Role:        msg.Role,
		DisplayName: msg.DisplayName,
	})
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeStaffAdded, protocol.UserMsg{Success: true, User: created.View()}))
	m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserUpdated, protocol.UserMsg{User: created.View()}), c.ID())
	return nil
}

func (m *ManagerService) handleChangeRole(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.ChangeRoleMsg)
	updated, err := m.Sessions.ChangeRole(ctx, msg.UserID, msg.NewRole)
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeRoleChanged, protocol.UserMsg{Success: true, User: updated.View()}))
	m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserUpdated, protocol.UserMsg{User: updated.View()}), c.ID())
	return nil
}

// handleDeleteStaff removes the account and drops its live connections.
func (m *ManagerService) handleDeleteStaff(ctx context.Context, c Client, _ models.User, payload any) error {
	msg := payload.(*protocol.DeleteStaffMsg)
	removed, err := m.Sessions.DeleteStaff(ctx, msg.UserID)
	if err != nil {
		return err
	}
	c.Send(protocol.NewEvent(protocol.TypeStaffDeleted, protocol.UserIDMsg{Success: true, UserID: removed.ID}))
	if m.closeUser(removed.ID) > 0 {
		m.Presence.Broadcast(protocol.NewEvent(protocol.TypeUserDisconnected, protocol.UserIDMsg{UserID: removed.ID}), c.ID())
	}
	log.Printf("INFO: [chathub] account %s (%s) deleted", removed.Username, removed.ID)
	return nil
}
