package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/internal/passwordreset"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = passwordreset.ErrAccountNotFound
	ErrEmailTaken   = errors.New("email already registered")
)

// UserPage is one page of a directory listing.
type UserPage struct {
	Users []models.User
	Total int64
}

// UserDirectory is the gorm-backed account store.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

func (d *UserDirectory) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create registers user with a local password.
func (d *UserDirectory) Create(ctx context.Context, user *models.User, password string) error {
	user.Email = models.NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if password != "" {
		if err := user.SetPassword(password); err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
	}

	var count int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (d *UserDirectory) Save(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// SetPassword hashes password and stores it on the account for email.
func (d *UserDirectory) SetPassword(ctx context.Context, email, password string) (*models.User, error) {
	user, err := d.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := user.SetPassword(password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := d.db.WithContext(ctx).Model(user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	return user, nil
}

func (d *UserDirectory) AdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := d.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("list admin emails: %w", err)
	}
	return emails, nil
}

// List returns accounts newest first. search matches name or email.
func (d *UserDirectory) List(ctx context.Context, search string, page, limit int) (*UserPage, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	matching := func(tx *gorm.DB) *gorm.DB {
		if search == "" {
			return tx
		}
		like := "%" + search + "%"
		return tx.Where("LOWER(name) LIKE ? OR email LIKE ?", like, like)
	}

	var out UserPage
	if err := d.db.WithContext(ctx).Model(&models.User{}).Scopes(matching).Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	err := d.db.WithContext(ctx).Scopes(matching).
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out.Users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &out, nil
}

// SetRole changes the role of account id.
func (d *UserDirectory) SetRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	user, err := d.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.db.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return user, nil
}

// Delete removes account id together with its reset challenges. The row is
// hard-deleted so the email can register again.
func (d *UserDirectory) Delete(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("find user by id: %w", err)
		}
		if err := tx.Where("email = ?", user.Email).Delete(&models.ResetChallenge{}).Error; err != nil {
			return fmt.Errorf("delete challenges: %w", err)
		}
		if err := tx.Unscoped().Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

var _ passwordreset.Directory = (*UserDirectory)(nil)
