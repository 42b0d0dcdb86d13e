package passwordreset

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lkmo/lkmo-backend/internal/models"
	"go.uber.org/zap"
)

// maxConflictRetries bounds how often a step re-reads a challenge after
// losing a conditional write.
const maxConflictRetries = 3

// Directory is the account store the manager reads and mutates.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// SetPassword replaces the account's password credential; the directory
	// owns hashing.
	SetPassword(ctx context.Context, email, password string) (*models.User, error)
	AdminEmails(ctx context.Context) ([]string, error)
}

// Notifier delivers codes and alerts out of band.
type Notifier interface {
	SendResetCode(ctx context.Context, email, code string, ttl time.Duration) error
	SendPasswordResetAlert(ctx context.Context, adminEmail string, user *models.User) error
}

// Manager runs the password reset flow: issue a code, verify it, then accept
// a new password within the commit window.
type Manager struct {
	store     Store
	directory Directory
	notifier  Notifier
	logger    *zap.Logger

	now            func() time.Time
	newCode        func() (string, error)
	strictDelivery bool
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCodeGenerator replaces the code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(m *Manager) { m.newCode = gen }
}

// WithStrictDelivery makes RequestChallenge fail with DeliveryFailed when the
// code could not be sent.
func WithStrictDelivery(strict bool) Option {
	return func(m *Manager) { m.strictDelivery = strict }
}

func NewManager(store Store, directory Directory, notifier Notifier, codeGen func() (string, error), logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		newCode:   codeGen,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestChallenge issues a code for email. A nil error is the generic
// success outcome, returned for unknown addresses as well.
func (m *Manager) RequestChallenge(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)

	user, err := m.directory.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		m.logger.Debug("reset requested for unknown email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if !user.HasLocalPassword() {
		return &Error{
			Kind:    KindExternalAuthOnly,
			Message: "this account signs in with an external provider",
			Email:   email,
		}
	}

	now := m.now()
	existing, err := m.store.LatestActive(ctx, email, models.PurposePasswordReset)
	if err != nil && !errors.Is(err, ErrChallengeNotFound) {
		return err
	}
	if existing != nil {
		if existing.InCooldown(now) {
			return &Error{
				Kind:             KindThrottled,
				Message:          "too many requests, try again later",
				CooldownUntil:    existing.CooldownUntil,
				RemainingSeconds: int(math.Ceil(existing.CooldownUntil.Sub(now).Seconds())),
				CooldownLevel:    existing.CooldownLevel,
			}
		}
		if !existing.IsExpired(now) && existing.Attempts < MaxAttempts {
			return newError(KindChallengeStillActive, "a code is still active, check your email")
		}
	}

	code, err := m.newCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	ch := &models.ResetChallenge{
		Ref:       uuid.NewString(),
		Email:     email,
		Code:      code,
		Purpose:   models.PurposePasswordReset,
		ExpiresAt: now.Add(CodeTTL),
	}
	if err := m.issue(ctx, ch); err != nil {
		return err
	}
	m.logger.Info("reset code issued", zap.String("email", email), zap.Time("expires_at", ch.ExpiresAt))

	if err := m.notifier.SendResetCode(ctx, email, code, CodeTTL); err != nil {
		m.logger.Warn("reset code delivery failed", zap.String("email", email), zap.Error(err))
		if m.strictDelivery {
			return &Error{Kind: KindDeliveryFailed, Message: "failed to send the code, try again later", Err: err}
		}
	}
	return nil
}

// issue retries the conditional write; concurrent issuers resolve as last
// write wins.
func (m *Manager) issue(ctx context.Context, ch *models.ResetChallenge) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = m.store.Issue(ctx, ch)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		m.logger.Debug("issue lost a race, retrying", zap.String("email", ch.Email))
	}
	return fmt.Errorf("issue challenge: %w", err)
}

// VerifyChallenge checks code against the active challenge for email and,
// on a match, consumes it and returns its reference.
func (m *Manager) VerifyChallenge(ctx context.Context, email, code string) (string, error) {
	email = models.NormalizeEmail(email)
	for i := 0; i < maxConflictRetries; i++ {
		ref, err := m.verifyOnce(ctx, email, code)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return ref, err
	}
	return "", newError(KindNotFound, "code not found or already used")
}

func (m *Manager) verifyOnce(ctx context.Context, email, code string) (string, error) {
	ch, err := m.store.LatestActive(ctx, email, models.PurposePasswordReset)
	if errors.Is(err, ErrChallengeNotFound) {
		return "", newError(KindNotFound, "code not found or already used")
	}
	if err != nil {
		return "", err
	}

	now := m.now()
	if ch.IsExpired(now) {
		return "", newError(KindExpired, "code has expired")
	}

	if ch.Attempts >= MaxAttempts {
		level, until := escalate(ch.CooldownLevel, now)
		err := m.store.SaveAttempts(ctx, ch.ID, ch.Attempts, AttemptUpdate{
			Attempts:      ch.Attempts,
			CooldownLevel: level,
			CooldownUntil: &until,
		})
		if err != nil {
			return "", err
		}
		m.logger.Warn("reset challenge locked out",
			zap.String("email", email), zap.Int("cooldown_level", level), zap.Time("cooldown_until", until))
		return "", &Error{
			Kind:          KindThrottled,
			Message:       "too many attempts, request a new code",
			CooldownUntil: &until,
			CooldownLevel: level,
		}
	}

	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		next := ch.Attempts + 1
		upd := AttemptUpdate{
			Attempts:      next,
			CooldownLevel: ch.CooldownLevel,
			CooldownUntil: ch.CooldownUntil,
		}
		if next >= MaxAttempts {
			level, until := escalate(ch.CooldownLevel, now)
			upd.CooldownLevel = level
			upd.CooldownUntil = &until
		}
		if err := m.store.SaveAttempts(ctx, ch.ID, ch.Attempts, upd); err != nil {
			return "", err
		}
		remaining := MaxAttempts - next
		return "", &Error{
			Kind:              KindInvalidCode,
			Message:           fmt.Sprintf("wrong code, %d attempts left", remaining),
			RemainingAttempts: remaining,
		}
	}

	if err := m.store.Consume(ctx, ch.ID, now); err != nil {
		return "", err
	}
	m.logger.Info("reset code verified", zap.String("email", email))
	return ch.Ref, nil
}

// CommitResult reports soft failures of a successful commit.
type CommitResult struct {
	Warnings []string
}

// CommitNewPassword sets the account password using a challenge consumed by
// VerifyChallenge within the last CommitWindow. No session is created.
func (m *Manager) CommitNewPassword(ctx context.Context, email, challengeRef, newPassword, confirmPassword string) (*CommitResult, error) {
	if newPassword != confirmPassword {
		return nil, newError(KindMismatch, "password and confirmation do not match")
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return nil, newError(KindWeakPassword, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	email = models.NormalizeEmail(email)
	ch, err := m.store.FindConsumed(ctx, challengeRef, email, models.PurposePasswordReset)
	if errors.Is(err, ErrChallengeNotFound) {
		return nil, newError(KindNotFound, "reset session not found or already used")
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	if !ch.CommitWindowOpen(now, CommitWindow) {
		return nil, newError(KindExpired, "reset session has expired, request a new code")
	}

	if err := m.store.MarkCommitted(ctx, ch.ID, now); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(KindNotFound, "reset session not found or already used")
		}
		return nil, err
	}

	user, err := m.directory.SetPassword(ctx, email, newPassword)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, newError(KindAccountNotFound, "account not found")
	}
	if err != nil {
		// the password was not written, so the same ref may be retried
		if rerr := m.store.ReleaseCommit(ctx, ch.ID); rerr != nil {
			m.logger.Error("could not release reset challenge", zap.Uint("challenge_id", ch.ID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("set password: %w", err)
	}
	m.logger.Info("password reset committed", zap.String("email", email), zap.Uint("user_id", user.ID))

	result := &CommitResult{}
	m.alertAdmins(ctx, user, result)
	return result, nil
}

func (m *Manager) alertAdmins(ctx context.Context, user *models.User, result *CommitResult) {
	admins, err := m.directory.AdminEmails(ctx)
	if err != nil {
		m.logger.Warn("could not load admin recipients", zap.Error(err))
		result.Warnings = append(result.Warnings, string(KindDeliveryFailed)+": admin lookup failed")
		return
	}
	for _, admin := range admins {
		if err := m.notifier.SendPasswordResetAlert(ctx, admin, user); err != nil {
			m.logger.Warn("admin alert failed", zap.String("admin", admin), zap.Error(err))
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", KindDeliveryFailed, admin))
		}
	}
}
