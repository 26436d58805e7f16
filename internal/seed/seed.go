// Package seed creates a default administrator on first boot when the
// users table is empty.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// AdminOptions configures the seed administrator.
type AdminOptions struct {
	Email    string
	Password string // if empty, a random password is generated
}

// EnsureAdmin creates a seed administrator if no users exist. A generated
// password is printed to stdout exactly once. The function is idempotent —
// it is safe to call on every startup.
func EnsureAdmin(_ context.Context, db *gorm.DB, opts AdminOptions, log *slog.Logger) error {
	var count int64
	if err := db.Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil
	}

	password := opts.Password
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		fmt.Printf("[granthub] seed admin password: %s\n", password)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	u := &model.User{
		Email:         opts.Email,
		PasswordHash:  hash,
		Role:          model.RoleAdministrator,
		EmailVerified: true,
	}
	if err := db.Create(u).Error; err != nil {
		return fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "email", opts.Email)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
