package models

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Supported user roles.
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// Well-known permission names checked by the admin routes.
const (
	PermissionUsersRead       = "users:read"
	PermissionUsersCreate     = "users:create"
	PermissionActivityCleanup = "activity:cleanup"
)

// ErrPasswordTooShort is returned when a plaintext password does not satisfy the minimum length.
var ErrPasswordTooShort = errors.New("password must be at least 6 characters")

// MinPasswordLength is the minimum accepted plaintext password length.
const MinPasswordLength = 6

// BcryptCost is the hashing cost applied when a password is (re)hashed.
var BcryptCost = bcrypt.DefaultCost

// User is an account that can authenticate against the API.
type User struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	Name         string                      `gorm:"size:255;not null" json:"name"`
	Email        string                      `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string                      `gorm:"size:255;not null" json:"-"`
	Age          int                         `json:"age"`
	Description  string                      `gorm:"type:text" json:"description"`
	Role         string                      `gorm:"size:32;not null;default:user" json:"role"`
	Permissions  datatypes.JSONSlice[string] `json:"permissions"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`

	plainPassword string
}

// IsValidRole reports whether role is one of the supported roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	default:
		return false
	}
}

// SetPassword stages a new plaintext password. It is hashed by the BeforeSave hook.
func (u *User) SetPassword(plain string) {
	u.plainPassword = plain
}

// CheckPassword compares plain against the stored hash.
func (u *User) CheckPassword(plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// HasPermission reports whether the user carries permission. Admins hold every permission.
func (u *User) HasPermission(permission string) bool {
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// BeforeSave normalises the record and hashes a staged password.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Permissions == nil {
		u.Permissions = datatypes.JSONSlice[string]{}
	}

	if u.plainPassword == "" {
		if u.PasswordHash == "" {
			return errors.New("password is required")
		}
		return nil
	}
	if len(u.plainPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(u.plainPassword), BcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	u.plainPassword = ""
	return nil
}
