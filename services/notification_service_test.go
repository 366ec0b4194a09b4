package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealrooms/models"
	"dealrooms/utils"
)

func TestNotifySkipsActorAndReservedIdentities(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)

	env.notifier.Notify(context.Background(), room, Event{
		Type:       models.NotificationTypeMessage,
		RoomID:     roomID,
		ActorID:    "alice",
		Recipients: []string{"alice", "bob", models.SenderSystem, models.SenderRaftAI},
		Title:      "New Message",
		Body:       "hello",
	})

	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "only bob is an eligible recipient")

	notifications, err := env.notifier.ListNotifications(context.Background(), "bob", 50)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "bob", notifications[0].UserID)

	aliceCount, err := env.notifier.GetUnreadCount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, aliceCount)
}

func TestQuietHoursSuppressMessagesButNotMentions(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)

	prefs, err := env.notifier.GetPreferences(context.Background(), "bob")
	require.NoError(t, err)
	update := *prefs
	update.Notifications.QuietHours = models.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}
	require.NoError(t, env.notifier.UpdatePreferences(context.Background(), "bob", update))

	// 23:00 falls inside the wrapped window.
	env.notifier.now = func() time.Time { return at(23, 0) }

	assert.False(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMessage))
	assert.True(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMention))

	// 07:30 is still inside, 09:00 is out.
	env.notifier.now = func() time.Time { return at(7, 30) }
	assert.False(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMessage))

	env.notifier.now = func() time.Time { return at(9, 0) }
	assert.True(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMessage))
}

func TestPerRoomOverrideMentionsOnly(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)

	prefs, err := env.notifier.GetPreferences(context.Background(), "bob")
	require.NoError(t, err)
	update := *prefs
	update.Notifications.PerRoom = map[string]models.RoomOverride{
		roomID: {Enabled: true, MentionsOnly: true},
	}
	require.NoError(t, env.notifier.UpdatePreferences(context.Background(), "bob", update))

	assert.False(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMessage))
	assert.True(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMention))
}

func TestMutedRoomSuppressesOnlyPlainMessages(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	require.NoError(t, env.rooms.MuteRoom(context.Background(), roomID, "bob"))
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)

	assert.False(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMessage))
	assert.True(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMention))
	assert.True(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeReaction))
}

func TestGloballyDisabledSuppressesEverything(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)

	prefs, err := env.notifier.GetPreferences(context.Background(), "bob")
	require.NoError(t, err)
	update := *prefs
	update.Notifications.Enabled = false
	require.NoError(t, env.notifier.UpdatePreferences(context.Background(), "bob", update))

	assert.False(t, env.notifier.ShouldNotify(context.Background(), "bob", room, models.NotificationTypeMention))
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")

	_, err := env.messages.SendMessage(context.Background(), roomID, "alice", "hello @bob", models.MessageTypeText, models.MessagePayload{})
	require.NoError(t, err)

	count, err := env.notifier.GetUnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	require.Positive(t, count)

	notifications, err := env.notifier.ListNotifications(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.NotEmpty(t, notifications)

	err = env.notifier.MarkRead(context.Background(), notifications[0].ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound, "cannot read someone else's notification")

	require.NoError(t, env.notifier.MarkRead(context.Background(), notifications[0].ID, "bob"))
	require.NoError(t, env.notifier.MarkAllRead(context.Background(), "bob"))

	count, err = env.notifier.GetUnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdatePreferencesValidatesEmail(t *testing.T) {
	env := newTestEnv(t)

	prefs, err := env.notifier.GetPreferences(context.Background(), "bob")
	require.NoError(t, err)

	update := *prefs
	update.Notifications.FallbackEmail = "not-an-email"
	err = env.notifier.UpdatePreferences(context.Background(), "bob", update)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	update.Notifications.FallbackEmail = "bob@example.com"
	require.NoError(t, env.notifier.UpdatePreferences(context.Background(), "bob", update))

	// The cache entry was invalidated, so the next read sees the new value.
	fresh, err := env.notifier.GetPreferences(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", fresh.Notifications.FallbackEmail)
}

func TestUpdatePreferencesValidatesQuietHoursClock(t *testing.T) {
	env := newTestEnv(t)

	prefs, err := env.notifier.GetPreferences(context.Background(), "bob")
	require.NoError(t, err)

	update := *prefs
	update.Notifications.QuietHours = models.QuietHours{Enabled: true, Start: "25:00", End: "08:00"}
	err = env.notifier.UpdatePreferences(context.Background(), "bob", update)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCleanupOldNotificationsKeepsUnread(t *testing.T) {
	env := newTestEnv(t)

	old := models.Notification{
		ID: "n-old", UserID: "bob", RoomID: "r", Type: models.NotificationTypeMessage,
		Title: "old", Read: true,
	}
	require.NoError(t, env.db.Create(&old).Error)
	require.NoError(t, env.db.Exec("UPDATE notifications SET created_at = datetime('now', '-60 days') WHERE id = ?", "n-old").Error)

	oldUnread := models.Notification{
		ID: "n-unread", UserID: "bob", RoomID: "r", Type: models.NotificationTypeMessage,
		Title: "unread", Read: false,
	}
	require.NoError(t, env.db.Create(&oldUnread).Error)
	require.NoError(t, env.db.Exec("UPDATE notifications SET created_at = datetime('now', '-60 days') WHERE id = ?", "n-unread").Error)

	deleted, err := env.notifier.CleanupOldNotifications(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestBodyTruncation(t *testing.T) {
	long := strings.Repeat("x", 150)
	truncated := truncateBody(long)
	assert.Len(t, []rune(truncated), 103)
	assert.True(t, strings.HasSuffix(truncated, "..."))

	assert.Equal(t, "short", truncateBody("short"))
}

func TestLazyPreferenceDefaults(t *testing.T) {
	env := newTestEnv(t)

	prefs, err := env.notifier.GetPreferences(context.Background(), "new-user")
	require.NoError(t, err)
	assert.True(t, prefs.Notifications.Enabled)
	assert.False(t, prefs.Notifications.QuietHours.Enabled)
	assert.Equal(t, "22:00", prefs.Notifications.QuietHours.Start)
	assert.Equal(t, 24, prefs.Notifications.EmailDelayHours)

	// Second read hits the cache.
	_, cached := utils.PreferenceCache.Get("new-user")
	assert.True(t, cached)
}

func TestEventReminderNotifiesMembersOnce(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")

	_, err := env.messages.SendMessage(context.Background(), roomID, "alice", "Kickoff call", models.MessageTypeEvent, models.MessagePayload{
		Event: &models.EventPayload{Title: "Kickoff call", StartsAt: time.Now().Add(10 * time.Minute)},
	})
	require.NoError(t, err)

	reminded, err := env.notifier.RemindUpcomingEvents(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reminded)

	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).
		Where("type = ?", models.NotificationTypeEventReminder).
		Count(&count).Error)
	assert.Equal(t, int64(2), count, "both members get the reminder")

	reminders, err := env.notifier.ListNotifications(context.Background(), "bob", 50)
	require.NoError(t, err)
	var found bool
	for _, n := range reminders {
		if n.Type == models.NotificationTypeEventReminder {
			found = true
			assert.Equal(t, "Event Reminder", n.Title)
			assert.Equal(t, "Kickoff call is starting soon", n.Body)
		}
	}
	assert.True(t, found)

	// The sweep is idempotent: a second pass finds nothing to remind.
	reminded, err = env.notifier.RemindUpcomingEvents(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, reminded)
}

func TestEventReminderSkipsDistantAndPastEvents(t *testing.T) {
	env := newTestEnv(t)
	roomID := env.createDealRoom(t, "alice", "bob")

	_, err := env.messages.SendMessage(context.Background(), roomID, "alice", "Board meeting", models.MessageTypeEvent, models.MessagePayload{
		Event: &models.EventPayload{Title: "Board meeting", StartsAt: time.Now().Add(2 * time.Hour)},
	})
	require.NoError(t, err)
	_, err = env.messages.SendMessage(context.Background(), roomID, "alice", "Missed sync", models.MessageTypeEvent, models.MessagePayload{
		Event: &models.EventPayload{Title: "Missed sync", StartsAt: time.Now().Add(-5 * time.Minute)},
	})
	require.NoError(t, err)

	reminded, err := env.notifier.RemindUpcomingEvents(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, reminded, "not yet due and already started both stay quiet")

	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).
		Where("type = ?", models.NotificationTypeEventReminder).
		Count(&count).Error)
	assert.Zero(t, count)

	// The distant event is still pending; the past one was claimed silently.
	reminded, err = env.notifier.RemindUpcomingEvents(context.Background(), 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reminded)
}
