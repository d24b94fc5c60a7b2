// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"helpmatch/internal/config"
	"helpmatch/internal/database"
	"helpmatch/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var userSeq atomic.Uint64

// NewSQLiteDB returns an in-memory sqlite database with the full schema. The
// pool holds a single connection, so transactions run one at a time.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(&config.Config{DBDriver: "sqlite", DBPath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// CreateUser inserts an active user with a unique name.
func CreateUser(t testing.TB, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()

	n := userSeq.Add(1)
	user := &models.User{
		Username: fmt.Sprintf("%s_%d", role, n),
		Email:    fmt.Sprintf("%s_%d@example.test", role, n),
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateRequest inserts an open request owned by requesterID.
func CreateRequest(t testing.TB, db *gorm.DB, requesterID uint) *models.Request {
	t.Helper()

	req := &models.Request{
		RequesterID:    requesterID,
		Status:         models.RequestStatusOpen,
		Title:          "Help moving boxes",
		Category:       "moving",
		Location:       "Springfield",
		Requirements:   "Bring gloves",
		ScheduledAt:    time.Now().Add(24 * time.Hour).UTC(),
		EstimatedHours: 2,
	}
	require.NoError(t, db.Create(req).Error)
	return req
}
