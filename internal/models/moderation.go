package models

import "time"

// ModerationAction is a sanction an admin can apply to an account.
type ModerationAction string

const (
	ActionWarning  ModerationAction = "warning"
	ActionBlock    ModerationAction = "block"
	ActionVacation ModerationAction = "vacation"
)

// ModerationRecord is one entry of the moderation audit trail.
type ModerationRecord struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	ModeratorID string           `json:"moderatorId"`
	Action      ModerationAction `json:"action"`
	Reason      string           `json:"reason"`
	// Duration is in days; nil for warnings.
	Duration  *int      `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
