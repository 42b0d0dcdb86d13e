package models

import (
	"time"
)

// ChallengePurpose tags what a one-time code authorizes.
type ChallengePurpose string

const (
	PurposePasswordReset ChallengePurpose = "password_reset"
)

// ResetChallenge is one issued one-time code and its verification state.
// At most one row per (email, purpose) has Consumed=false.
type ResetChallenge struct {
	ID            uint             `gorm:"primaryKey" json:"-"`
	Ref           string           `gorm:"column:ref;size:36;uniqueIndex;not null" json:"ref"`
	Email         string           `gorm:"column:email;not null;index:idx_reset_challenges_lookup,priority:1" json:"email"`
	Code          string           `gorm:"column:code;size:6;not null" json:"-"`
	Purpose       ChallengePurpose `gorm:"column:purpose;not null;index:idx_reset_challenges_lookup,priority:2" json:"purpose"`
	ExpiresAt     time.Time        `gorm:"column:expires_at;not null;index" json:"expiresAt"`
	Attempts      int              `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Consumed      bool             `gorm:"column:consumed;not null;default:false;index:idx_reset_challenges_lookup,priority:3" json:"consumed"`
	ConsumedAt    *time.Time       `gorm:"column:consumed_at" json:"consumedAt,omitempty"`
	CommittedAt   *time.Time       `gorm:"column:committed_at" json:"committedAt,omitempty"`
	CooldownUntil *time.Time       `gorm:"column:cooldown_until" json:"cooldownUntil,omitempty"`
	CooldownLevel int              `gorm:"column:cooldown_level;not null;default:0" json:"cooldownLevel"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for ResetChallenge
func (ResetChallenge) TableName() string {
	return "reset_challenges"
}

// IsExpired reports whether the code's validity window has passed.
func (c *ResetChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// InCooldown reports whether requests for this email are currently blocked.
func (c *ResetChallenge) InCooldown(now time.Time) bool {
	return c.CooldownUntil != nil && now.Before(*c.CooldownUntil)
}

// CommitWindowOpen reports whether a consumed challenge may still authorize a
// password change. The window is anchored on ConsumedAt, never on ExpiresAt.
func (c *ResetChallenge) CommitWindowOpen(now time.Time, window time.Duration) bool {
	if !c.Consumed || c.ConsumedAt == nil || c.CommittedAt != nil {
		return false
	}
	return now.Sub(*c.ConsumedAt) <= window
}
