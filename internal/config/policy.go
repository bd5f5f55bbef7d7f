package config

import "time"

const (
	// Accounts
	MinUsernameLength = 3
	MinPasswordLength = 6

	// Moderation
	DefaultSanctionDays = 7
	CLIModeratorID      = "cli"

	// Ratings
	MinScore = 1
	MaxScore = 5

	// Messages per window accepted from one user before send_message is refused.
	MessageRateLimit  = 20
	MessageRateWindow = 10 * time.Second

	// Attachments
	MaxUploadBytes = 10 << 20
)
