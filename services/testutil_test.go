package services

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dealrooms/config"
	"dealrooms/models"
	"dealrooms/realtime"
	"dealrooms/utils"
)

const (
	waitTimeout  = 2 * time.Second
	pollInterval = 10 * time.Millisecond
)

type testEnv struct {
	db         *gorm.DB
	hub        *realtime.Hub
	rooms      *RoomService
	messages   *MessageService
	notifier   *NotificationService
	moderation *ModerationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)

	// One connection: a pooled in-memory sqlite would hand each
	// connection its own empty database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.MigrateDB(db))

	// Package-level caches leak state between tests otherwise.
	utils.PreferenceCache.Flush()
	utils.MembershipCache.Flush()

	quiet := log.New(io.Discard, "", 0)
	hub := realtime.NewHub()
	notifier := NewNotificationService(db, hub, quiet)
	messages := NewMessageService(db, hub, notifier, nil, quiet)
	rooms := NewRoomService(db, hub, messages, quiet)
	moderation := NewModerationService(db, rooms, messages, quiet)

	return &testEnv{
		db:         db,
		hub:        hub,
		rooms:      rooms,
		messages:   messages,
		notifier:   notifier,
		moderation: moderation,
	}
}

func (e *testEnv) createDealRoom(t *testing.T, owner string, participants ...string) string {
	t.Helper()
	roomID, err := e.rooms.CreateRoom(context.Background(), models.RoomTypeDeal, participants, owner, models.RoomMetadata{
		Deal: &models.DealMetadata{
			CounterpartID:   "cp-1",
			CounterpartName: "Acme Capital",
			CounterpartRole: "vc",
			ProjectTitle:    "Series A",
		},
	})
	require.NoError(t, err)
	return roomID
}

func (e *testEnv) user(t *testing.T, publicID string, role models.Role) *models.User {
	t.Helper()
	user := models.User{
		PublicID: publicID,
		Email:    publicID + "@example.com",
		Name:     publicID,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, e.db.Create(&user).Error)
	return &user
}

// at builds a time on a fixed day for clock-window tests.
func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 15, hour, minute, 0, 0, time.UTC)
}
