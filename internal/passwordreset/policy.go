package passwordreset

import (
	"time"
)

const (
	// CodeTTL is how long an issued code can be verified.
	CodeTTL = 5 * time.Minute
	// CommitWindow is how long after a successful verification the new
	// password may be submitted.
	CommitWindow = 5 * time.Minute
	// MaxAttempts is the number of wrong codes tolerated per challenge.
	MaxAttempts = 3
	// MaxCooldownLevel caps the escalation table.
	MaxCooldownLevel = 4
	// MinPasswordLength applies to the new password.
	MinPasswordLength = 6
)

var cooldownDurations = map[int]time.Duration{
	0: 0,
	1: time.Minute,
	2: 5 * time.Minute,
	3: 10 * time.Minute,
	4: 24 * time.Hour,
}

// CooldownDuration maps a cooldown level to its lockout length.
func CooldownDuration(level int) time.Duration {
	return cooldownDurations[level]
}

// escalate returns the next cooldown level and the instant it ends.
func escalate(level int, now time.Time) (int, time.Time) {
	next := level + 1
	if next > MaxCooldownLevel {
		next = MaxCooldownLevel
	}
	return next, now.Add(CooldownDuration(next))
}
