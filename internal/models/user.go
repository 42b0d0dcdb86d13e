package models

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	gorm.Model   // This embeds ID, CreatedAt, UpdatedAt, and DeletedAt
	Name         string  `gorm:"column:name;not null" json:"name"`
	Email        string  `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash string  `gorm:"column:password_hash" json:"-"`
	GoogleID     *string `gorm:"column:google_id;uniqueIndex" json:"-"`
	Role         Role    `gorm:"column:role;not null;default:'user'" json:"role"`
	Image        string  `gorm:"column:image" json:"image"`
	Bio          string  `gorm:"column:bio;size:500" json:"bio"`
	Location     string  `gorm:"column:location" json:"location"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// NormalizeEmail lower-cases and trims an address. Every lookup by email goes
// through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	if !u.HasLocalPassword() {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// HasLocalPassword is false for accounts that only sign in through an
// external identity provider.
func (u *User) HasLocalPassword() bool {
	return u.PasswordHash != ""
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
