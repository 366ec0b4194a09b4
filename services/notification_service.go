package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealrooms/models"
	"dealrooms/realtime"
	"dealrooms/utils"
)

// Event is one notifiable occurrence fanned out by the dispatcher.
type Event struct {
	Type       models.NotificationType
	RoomID     string
	MessageID  *string
	ActorID    string
	Recipients []string
	Title      string
	Body       string
}

// NotificationService fans events out to per-user notification records,
// honoring preferences, quiet hours and per-room overrides.
type NotificationService struct {
	db     *gorm.DB
	hub    *realtime.Hub
	logger *log.Logger

	// now is swappable so quiet-hours behavior is testable.
	now func() time.Time
}

func NewNotificationService(db *gorm.DB, hub *realtime.Hub, logger *log.Logger) *NotificationService {
	return &NotificationService{db: db, hub: hub, logger: logger, now: time.Now}
}

// Notify creates one notification per eligible recipient. The actor never
// receives a notification for their own action. Fan-out is parallel across
// recipients; per-recipient ordering is preserved because each recipient is
// written by exactly one goroutine per event.
func (s *NotificationService) Notify(ctx context.Context, room *models.Room, event Event) {
	var wg sync.WaitGroup
	for _, recipient := range event.Recipients {
		if recipient == event.ActorID || recipient == models.SenderSystem || recipient == models.SenderRaftAI {
			continue
		}
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if !s.ShouldNotify(ctx, userID, room, event.Type) {
				return
			}
			if err := s.create(ctx, userID, event); err != nil {
				s.logger.Printf("Failed to create notification for %s: %v", userID, err)
			}
		}(recipient)
	}
	wg.Wait()
}

// ShouldNotify applies the suppression chain:
// global off -> quiet hours (mentions bypass) -> per-room override -> muted room.
func (s *NotificationService) ShouldNotify(ctx context.Context, userID string, room *models.Room, t models.NotificationType) bool {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Printf("Preference lookup failed for %s, defaulting to notify: %v", userID, err)
		return true
	}

	if !prefs.Notifications.Enabled {
		return false
	}

	if prefs.Notifications.QuietHours.Enabled && t != models.NotificationTypeMention {
		if inQuietHours(s.now(), prefs.Notifications.QuietHours) {
			return false
		}
	}

	if override, ok := prefs.Notifications.PerRoom[room.ID]; ok {
		if !override.Enabled {
			return false
		}
		if override.MentionsOnly && t != models.NotificationTypeMention {
			return false
		}
	}

	if t == models.NotificationTypeMessage && room.MutedBy.Contains(userID) {
		return false
	}

	return true
}

// GetPreferences returns the user's record, creating it with defaults on
// first read. Reads go through the preference cache.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) (*models.Preference, error) {
	if cached, ok := utils.PreferenceCache.Get(userID); ok {
		return cached.(*models.Preference), nil
	}

	var prefs models.Preference
	err := s.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs = models.DefaultPreference(userID)
		if err := s.db.WithContext(ctx).Create(&prefs).Error; err != nil {
			return nil, fmt.Errorf("%w: create default preferences: %v", ErrUnavailable, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: get preferences: %v", ErrUnavailable, err)
	}

	utils.PreferenceCache.SetDefault(userID, &prefs)
	return &prefs, nil
}

// UpdatePreferences replaces the notification/privacy/UI settings. A
// configured fallback email must be deliverable-looking before we accept it.
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID string, update models.Preference) error {
	if update.Notifications.QuietHours.Enabled {
		if _, err := parseClock(update.Notifications.QuietHours.Start); err != nil {
			return fmt.Errorf("%w: quiet hours start: %v", ErrInvalidArgument, err)
		}
		if _, err := parseClock(update.Notifications.QuietHours.End); err != nil {
			return fmt.Errorf("%w: quiet hours end: %v", ErrInvalidArgument, err)
		}
	}
	if email := update.Notifications.FallbackEmail; email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			return fmt.Errorf("%w: fallback email: %v", ErrInvalidArgument, err)
		}
	}

	current, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	current.Notifications = update.Notifications
	current.Privacy = update.Privacy
	current.UI = update.UI

	if err := s.db.WithContext(ctx).Save(current).Error; err != nil {
		return fmt.Errorf("%w: update preferences: %v", ErrUnavailable, err)
	}
	utils.PreferenceCache.Delete(userID)
	return nil
}

func (s *NotificationService) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list notifications: %v", ErrUnavailable, err)
	}
	return notifications, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: unread count: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("%w: mark notification read: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.publishUnread(ctx, userID)
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
	if err != nil {
		return fmt.Errorf("%w: mark all read: %v", ErrUnavailable, err)
	}
	s.publishUnread(ctx, userID)
	return nil
}

// CleanupOldNotifications deletes read notifications older than the cutoff.
// Housekeeping path only, never called per-request.
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, daysOld int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -daysOld)
	res := s.db.WithContext(ctx).
		Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: cleanup notifications: %v", ErrUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

// StaleUnread returns unread, not-yet-emailed notifications older than the
// user's email fallback delay, grouped for the email worker.
func (s *NotificationService) StaleUnread(ctx context.Context, userID string, delay time.Duration) ([]models.Notification, error) {
	cutoff := s.now().Add(-delay)
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND read = ? AND emailed_at IS NULL AND created_at < ?", userID, false, cutoff).
		Order("created_at ASC").
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("%w: stale unread: %v", ErrUnavailable, err)
	}
	return notifications, nil
}

// MarkEmailed stamps notifications after a fallback digest was sent.
func (s *NotificationService) MarkEmailed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now()
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).
		Update("emailed_at", &now).Error
	if err != nil {
		return fmt.Errorf("%w: mark emailed: %v", ErrUnavailable, err)
	}
	return nil
}

// RemindUpcomingEvents notifies members of rooms with event messages whose
// start time falls inside the lead window. Each event reminds at most once;
// events whose start already passed are marked without notifying. Returns
// the number of events reminded.
func (s *NotificationService) RemindUpcomingEvents(ctx context.Context, lead time.Duration) (int, error) {
	var candidates []models.Message
	err := s.db.WithContext(ctx).
		Where("type = ? AND reminder_sent = ? AND deleted_at IS NULL", models.MessageTypeEvent, false).
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("%w: load event candidates: %v", ErrUnavailable, err)
	}

	now := s.now()
	reminded := 0
	for i := range candidates {
		event := candidates[i].Payload.Event
		if event == nil || event.StartsAt.After(now.Add(lead)) {
			continue
		}

		// Claim the event before notifying; a zero-row update means another
		// instance already has it.
		res := s.db.WithContext(ctx).Model(&models.Message{}).
			Where("id = ? AND reminder_sent = ?", candidates[i].ID, false).
			Update("reminder_sent", true)
		if res.Error != nil {
			return reminded, fmt.Errorf("%w: claim event reminder: %v", ErrUnavailable, res.Error)
		}
		if res.RowsAffected == 0 || event.StartsAt.Before(now) {
			continue
		}

		var room models.Room
		if err := s.db.WithContext(ctx).First(&room, "id = ?", candidates[i].RoomID).Error; err != nil {
			s.logger.Printf("Skipping event reminder, room %s: %v", candidates[i].RoomID, err)
			continue
		}
		s.Notify(ctx, &room, Event{
			Type:       models.NotificationTypeEventReminder,
			RoomID:     room.ID,
			MessageID:  &candidates[i].ID,
			ActorID:    models.SenderSystem,
			Recipients: []string(room.Members),
			Title:      "Event Reminder",
			Body:       fmt.Sprintf("%s is starting soon", event.Title),
		})
		reminded++
	}
	return reminded, nil
}

// NotifyUser creates a notification outside room fan-out. Used for engine
// completion events that address a user directly; only the global toggle is
// consulted since there is no room context to check.
func (s *NotificationService) NotifyUser(ctx context.Context, userID string, event Event) error {
	prefs, err := s.GetPreferences(ctx, userID)
	if err == nil && !prefs.Notifications.Enabled {
		return nil
	}
	return s.create(ctx, userID, event)
}

// UnreadSnapshot feeds the hub's first value for an unread-count stream.
func (s *NotificationService) UnreadSnapshot(userID string) realtime.SnapshotFunc {
	return func() (interface{}, error) {
		return s.GetUnreadCount(context.Background(), userID)
	}
}

// --- internals ---

func (s *NotificationService) create(ctx context.Context, userID string, event Event) error {
	notification := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoomID:    event.RoomID,
		MessageID: event.MessageID,
		Type:      event.Type,
		Title:     event.Title,
		Body:      truncateBody(event.Body),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return fmt.Errorf("%w: create notification: %v", ErrUnavailable, err)
	}
	s.publishUnread(ctx, userID)
	return nil
}

func (s *NotificationService) publishUnread(ctx context.Context, userID string) {
	count, err := s.GetUnreadCount(ctx, userID)
	if err != nil {
		s.logger.Printf("Failed to load unread count for %s: %v", userID, err)
		return
	}
	s.hub.Publish(realtime.NotificationsTopic(userID), count)
}

func truncateBody(body string) string {
	runes := []rune(body)
	if len(runes) <= 100 {
		return body
	}
	return string(runes[:100]) + "..."
}

// parseClock converts "HH:MM" to minute-of-day.
func parseClock(clock string) (int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", clock)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("bad hour in %q", clock)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("bad minute in %q", clock)
	}
	return hours*60 + minutes, nil
}

// inQuietHours compares minute-of-day against a window that may wrap
// midnight (22:00-08:00 suppresses both 23:00 and 07:00).
func inQuietHours(now time.Time, window models.QuietHours) bool {
	start, err := parseClock(window.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(window.End)
	if err != nil {
		return false
	}
	current := now.Hour()*60 + now.Minute()

	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}
