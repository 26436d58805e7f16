// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles held by a User. Every login identity is exactly one of these.
const (
	RoleOrganization  = "organization"
	RoleAdministrator = "administrator"
)

// JSONMap is a map GORM serialises as JSON. Used for audit value snapshots
// and free-form event metadata.
type JSONMap map[string]any

// User is the GORM model for the users table.
type User struct {
	ID                     string  `gorm:"type:text;primaryKey"`
	Email                  string  `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash           string  `gorm:"type:text;not null;default:''"`
	Role                   string  `gorm:"type:text;not null"`
	EmailVerified          bool    `gorm:"not null;default:false"`
	EmailVerificationToken string  `gorm:"type:text;not null"`
	PasswordResetToken     *string `gorm:"type:text"`
	PasswordResetExpires   *time.Time
	LastLogin              *time.Time
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key and verification token if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.EmailVerificationToken == "" {
		u.EmailVerificationToken = uuid.New().String()
	}
	return nil
}

// IsOrganization reports whether the user holds the organization role.
func (u *User) IsOrganization() bool { return u.Role == RoleOrganization }

// IsAdministrator reports whether the user holds the administrator role.
func (u *User) IsAdministrator() bool { return u.Role == RoleAdministrator }

// Organization is the tenant that submits grant applications. Exactly one
// per User with role=organization.
type Organization struct {
	ID                 string    `gorm:"type:text;primaryKey"`
	UserID             string    `gorm:"type:text;not null;uniqueIndex"`
	User               User      `gorm:"foreignKey:UserID"`
	Name               string    `gorm:"type:text;not null"`
	ContactPerson      string    `gorm:"type:text;not null"`
	Phone              string    `gorm:"type:text;not null;default:''"`
	Address            string    `gorm:"type:text;not null;default:''"`
	RegistrationNumber *string   `gorm:"type:text;uniqueIndex"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (o *Organization) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return nil
}
