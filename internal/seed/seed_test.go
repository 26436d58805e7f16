package seed_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/seed"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newNullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))
	return db
}

func TestEnsureAdmin_CreatesVerifiedAdministrator(t *testing.T) {
	db := openTestDB(t)
	opts := seed.AdminOptions{Email: "admin@granthub.local", Password: "Seed!pass1"}

	require.NoError(t, seed.EnsureAdmin(context.Background(), db, opts, newNullLogger()))

	var u model.User
	require.NoError(t, db.First(&u, "email = ?", opts.Email).Error)
	assert.Equal(t, model.RoleAdministrator, u.Role)
	assert.True(t, u.EmailVerified)
	assert.True(t, auth.CheckPassword(u.PasswordHash, "Seed!pass1"))
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	db := openTestDB(t)
	opts := seed.AdminOptions{Email: "admin@granthub.local", Password: "Seed!pass1"}

	require.NoError(t, seed.EnsureAdmin(context.Background(), db, opts, newNullLogger()))
	require.NoError(t, seed.EnsureAdmin(context.Background(), db, opts, newNullLogger()))

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureAdmin_SkipsWhenUsersExist(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&model.User{Email: "someone@example.com", Role: model.RoleOrganization}).Error)

	require.NoError(t, seed.EnsureAdmin(context.Background(), db,
		seed.AdminOptions{Email: "admin@granthub.local", Password: "Seed!pass1"}, newNullLogger()))

	var count int64
	require.NoError(t, db.Model(&model.User{}).Where("role = ?", model.RoleAdministrator).Count(&count).Error)
	assert.Zero(t, count)
}
