package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"dealrooms/models"
	"dealrooms/services"
	"dealrooms/utils"
)

// EmailFallbackWorker emails a digest of notifications that stayed unread
// past the user's fallback delay. Each notification is emailed at most once.
type EmailFallbackWorker struct {
	DB            *gorm.DB
	Notifications *services.NotificationService
	Mailer        *utils.Mailer
	Logger        *log.Logger
}

func NewEmailFallbackWorker(db *gorm.DB, notifications *services.NotificationService, mailer *utils.Mailer, logger *log.Logger) *EmailFallbackWorker {
	return &EmailFallbackWorker{
		DB:            db,
		Notifications: notifications,
		Mailer:        mailer,
		Logger:        logger,
	}
}

func (ew *EmailFallbackWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	ew.Logger.Println("Email fallback worker started")

	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ew.Logger.Println("Email fallback worker shutting down...")
			return
		case <-ticker.C:
			ew.processPendingDigests(ctx)
		}
	}
}

func (ew *EmailFallbackWorker) processPendingDigests(ctx context.Context) {
	var userIDs []string
	err := ew.DB.WithContext(ctx).Model(&models.Notification{}).
		Distinct("user_id").
		Where("read = ? AND emailed_at IS NULL", false).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		ew.Logger.Printf("Error fetching digest candidates: %v", err)
		return
	}

	for _, userID := range userIDs {
		if err := ew.processUser(ctx, userID); err != nil {
			ew.Logger.Printf("Error processing digest for %s: %v", userID, err)
		}
	}
}

func (ew *EmailFallbackWorker) processUser(ctx context.Context, userID string) error {
	prefs, err := ew.Notifications.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	if !prefs.Notifications.EmailFallback {
		return nil
	}

	delay := time.Duration(prefs.Notifications.EmailDelayHours) * time.Hour
	stale, err := ew.Notifications.StaleUnread(ctx, userID, delay)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	to := prefs.Notifications.FallbackEmail
	if to == "" {
		var user models.User
		if err := ew.DB.WithContext(ctx).First(&user, "public_id = ?", userID).Error; err != nil {
			return err
		}
		to = user.Email
	}
	if to == "" {
		return nil
	}

	if err := ew.Mailer.SendDigest(to, stale); err != nil {
		return err
	}

	ids := make([]string, len(stale))
	for i := range stale {
		ids[i] = stale[i].ID
	}
	if err := ew.Notifications.MarkEmailed(ctx, ids); err != nil {
		return err
	}

	ew.Logger.Printf("Sent digest of %d notifications to %s", len(stale), userID)
	return nil
}
