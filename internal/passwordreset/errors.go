package passwordreset

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the machine-readable outcome reported to clients.
type Kind string

const (
	KindExternalAuthOnly     Kind = "ExternalAuthOnly"
	KindThrottled            Kind = "Throttled"
	KindChallengeStillActive Kind = "ChallengeStillActive"
	KindNotFound             Kind = "NotFound"
	KindExpired              Kind = "Expired"
	KindInvalidCode          Kind = "InvalidCode"
	KindMismatch             Kind = "Mismatch"
	KindWeakPassword         Kind = "WeakPassword"
	KindAccountNotFound      Kind = "AccountNotFound"
	KindDeliveryFailed       Kind = "DeliveryFailed"
)

var (
	// ErrChallengeNotFound is returned by a Store when no row matches.
	ErrChallengeNotFound = errors.New("reset challenge not found")
	// ErrConflict is returned by a Store when a conditional write lost a race.
	ErrConflict = errors.New("reset challenge changed concurrently")
	// ErrAccountNotFound is returned by a Directory when no account matches.
	ErrAccountNotFound = errors.New("account not found")
)

// Error is a user-recoverable failure of a reset step. Only the fields that
// belong to Kind are populated.
type Error struct {
	Kind    Kind
	Message string

	Email             string
	CooldownUntil     *time.Time
	RemainingSeconds  int
	CooldownLevel     int
	RemainingAttempts int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}
