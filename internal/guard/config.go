package guard

import (
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

var (
	ErrInvalidBanLimit  = errors.New("ban limit must be positive")
	ErrInvalidWarnLimit = errors.New("warn limit must be below the ban limit")
	ErrInvalidRetention = errors.New("retention window must be positive")
	ErrInvalidMaxGroups = errors.New("max groups must be positive")
)

// Config holds the thresholds and targets used by the enforcer.
type Config struct {
	// MinLength is the rune count at which a message is tracked without a link.
	MinLength int
	// WarnLimit is the score at which the author is warned. Zero disables warnings.
	WarnLimit int
	// BanLimit is the score at which the author is banned.
	BanLimit int
	// Retention is how long a bucket is kept after its first message.
	Retention time.Duration
	// MaxGroups is how many distinct contents are tracked per user.
	MaxGroups int
	// TrackLinks enables the separate invite-link counter.
	TrackLinks bool
	// ModerationChannelID receives ban audit logs. Zero disables audit logs.
	ModerationChannelID snowflake.ID
	// DeleteMessageWindow is passed to the platform ban call.
	DeleteMessageWindow time.Duration
	// BanReason is written to the guild audit log.
	BanReason string
	// CleanupConcurrency limits how many channels are cleaned at once.
	CleanupConcurrency int
}

// DefaultConfig returns the settings the bot ships with.
func DefaultConfig() *Config {
	return &Config{
		MinLength:          24,
		WarnLimit:          3,
		BanLimit:           5,
		Retention:          10 * time.Minute,
		MaxGroups:          3,
		TrackLinks:         true,
		BanReason:          "Spamming",
		CleanupConcurrency: 4,
	}
}

// Validate checks that the thresholds describe a usable state machine.
func (c *Config) Validate() error {
	if c.BanLimit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBanLimit, c.BanLimit)
	}

	if c.WarnLimit < 0 || (c.WarnLimit > 0 && c.WarnLimit >= c.BanLimit) {
		return fmt.Errorf("%w: warn=%d ban=%d", ErrInvalidWarnLimit, c.WarnLimit, c.BanLimit)
	}

	if c.Retention <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRetention, c.Retention)
	}

	if c.MaxGroups <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxGroups, c.MaxGroups)
	}

	return nil
}
