package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lkmo/lkmo-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists reset challenges. Every mutation is a conditional write so
// concurrent requests cannot produce two active challenges for one email or
// consume one challenge twice.
type Store interface {
	// LatestActive returns the newest unconsumed challenge, expired or not.
	LatestActive(ctx context.Context, email string, purpose models.ChallengePurpose) (*models.ResetChallenge, error)
	// Issue inserts ch, or overwrites the existing unconsumed challenge for
	// the same email and purpose in place. ch.ID is set on return.
	Issue(ctx context.Context, ch *models.ResetChallenge) error
	// SaveAttempts updates the attempt and cooldown fields if the row is
	// still unconsumed and still has fromAttempts attempts.
	SaveAttempts(ctx context.Context, id uint, fromAttempts int, upd AttemptUpdate) error
	// Consume flips consumed from false to true.
	Consume(ctx context.Context, id uint, at time.Time) error
	// MarkCommitted claims a consumed challenge for a password change. It
	// succeeds once per challenge.
	MarkCommitted(ctx context.Context, id uint, at time.Time) error
	// ReleaseCommit undoes a MarkCommitted whose password change did not
	// go through, reopening the challenge for the rest of its window.
	ReleaseCommit(ctx context.Context, id uint) error
	// FindConsumed looks up a verified, not yet committed challenge by its
	// public reference.
	FindConsumed(ctx context.Context, ref, email string, purpose models.ChallengePurpose) (*models.ResetChallenge, error)
	// PurgeExpired hard-deletes rows that can no longer take part in any
	// reset and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type AttemptUpdate struct {
	Attempts      int
	CooldownLevel int
	CooldownUntil *time.Time
}

// GormStore is the Store backed by the application database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) LatestActive(ctx context.Context, email string, purpose models.ChallengePurpose) (*models.ResetChallenge, error) {
	var ch models.ResetChallenge
	err := s.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND consumed = ?", email, purpose, false).
		Order("created_at DESC").Order("id DESC").
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load active challenge: %w", err)
	}
	return &ch, nil
}

func (s *GormStore) Issue(ctx context.Context, ch *models.ResetChallenge) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ResetChallenge
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ? AND purpose = ? AND consumed = ?", ch.Email, ch.Purpose, false).
			Order("created_at DESC").
			First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(ch).Error; err != nil {
				// the partial unique index rejects a concurrent insert
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: %v", ErrConflict, err)
				}
				return fmt.Errorf("create challenge: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("load challenge for issue: %w", err)
		}

		res := tx.Model(&models.ResetChallenge{}).
			Where("id = ? AND consumed = ?", existing.ID, false).
			Updates(map[string]interface{}{
				"ref":            ch.Ref,
				"code":           ch.Code,
				"expires_at":     ch.ExpiresAt,
				"attempts":       0,
				"cooldown_until": nil,
				"cooldown_level": 0,
				"consumed_at":    nil,
			})
		if res.Error != nil {
			return fmt.Errorf("overwrite challenge: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrConflict
		}
		ch.ID = existing.ID
		ch.CreatedAt = existing.CreatedAt
		return nil
	})
}

func (s *GormStore) SaveAttempts(ctx context.Context, id uint, fromAttempts int, upd AttemptUpdate) error {
	res := s.db.WithContext(ctx).Model(&models.ResetChallenge{}).
		Where("id = ? AND consumed = ? AND attempts = ?", id, false, fromAttempts).
		Updates(map[string]interface{}{
			"attempts":       upd.Attempts,
			"cooldown_level": upd.CooldownLevel,
			"cooldown_until": upd.CooldownUntil,
		})
	if res.Error != nil {
		return fmt.Errorf("save attempts: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) Consume(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.ResetChallenge{}).
		Where("id = ? AND consumed = ?", id, false).
		Updates(map[string]interface{}{
			"consumed":    true,
			"consumed_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("consume challenge: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) MarkCommitted(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.ResetChallenge{}).
		Where("id = ? AND consumed = ? AND committed_at IS NULL", id, true).
		Update("committed_at", at)
	if res.Error != nil {
		return fmt.Errorf("commit challenge: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) ReleaseCommit(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.ResetChallenge{}).
		Where("id = ? AND consumed = ? AND committed_at IS NOT NULL", id, true).
		Update("committed_at", nil)
	if res.Error != nil {
		return fmt.Errorf("release challenge: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) FindConsumed(ctx context.Context, ref, email string, purpose models.ChallengePurpose) (*models.ResetChallenge, error) {
	var ch models.ResetChallenge
	err := s.db.WithContext(ctx).
		Where("ref = ? AND email = ? AND purpose = ? AND consumed = ? AND committed_at IS NULL", ref, email, purpose, true).
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load consumed challenge: %w", err)
	}
	return &ch, nil
}

// PurgeExpired removes unconsumed rows past both their expiry and any
// cooldown, and consumed rows whose commit window has closed. Rows still
// carrying a cooldown are kept so the lockout keeps blocking new requests.
func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	unconsumed := s.db.WithContext(ctx).Unscoped().
		Where("consumed = ? AND expires_at < ? AND (cooldown_until IS NULL OR cooldown_until < ?)", false, now, now).
		Delete(&models.ResetChallenge{})
	if unconsumed.Error != nil {
		return 0, fmt.Errorf("purge expired challenges: %w", unconsumed.Error)
	}

	consumed := s.db.WithContext(ctx).Unscoped().
		Where("consumed = ? AND consumed_at < ?", true, now.Add(-CommitWindow)).
		Delete(&models.ResetChallenge{})
	if consumed.Error != nil {
		return unconsumed.RowsAffected, fmt.Errorf("purge consumed challenges: %w", consumed.Error)
	}

	return unconsumed.RowsAffected + consumed.RowsAffected, nil
}

var _ Store = (*GormStore)(nil)
