package worker

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"dealrooms/models"
	"dealrooms/services"
)

// eventReminderLead is how far ahead of an event's start the reminder
// notification goes out.
const eventReminderLead = 15 * time.Minute

// HousekeepingWorker runs the recurring maintenance jobs: pruning read
// notifications past retention, sweeping disappearing messages and sending
// upcoming-event reminders.
type HousekeepingWorker struct {
	DB            *gorm.DB
	Messages      *services.MessageService
	Notifications *services.NotificationService
	RetentionDays int
	Logger        *log.Logger

	scheduler *gocron.Scheduler
}

func NewHousekeepingWorker(db *gorm.DB, messages *services.MessageService, notifications *services.NotificationService, retentionDays int, logger *log.Logger) *HousekeepingWorker {
	return &HousekeepingWorker{
		DB:            db,
		Messages:      messages,
		Notifications: notifications,
		RetentionDays: retentionDays,
		Logger:        logger,
		scheduler:     gocron.NewScheduler(time.UTC),
	}
}

func (hw *HousekeepingWorker) Start(ctx context.Context) {
	hw.Logger.Println("Housekeeping worker started")

	if _, err := hw.scheduler.Every(1).Day().At("03:00").Do(func() { hw.runOnce(ctx) }); err != nil {
		hw.Logger.Printf("Failed to schedule notification cleanup: %v", err)
	}
	// Disappearing messages need a tighter cadence than retention cleanup.
	if _, err := hw.scheduler.Every(5).Minutes().Do(func() { hw.sweepRooms(ctx) }); err != nil {
		hw.Logger.Printf("Failed to schedule retention sweep: %v", err)
	}
	if _, err := hw.scheduler.Every(1).Minute().Do(func() { hw.remindEvents(ctx) }); err != nil {
		hw.Logger.Printf("Failed to schedule event reminders: %v", err)
	}

	hw.scheduler.StartAsync()

	<-ctx.Done()
	hw.Logger.Println("Housekeeping worker shutting down...")
	hw.scheduler.Stop()
}

func (hw *HousekeepingWorker) runOnce(ctx context.Context) {
	deleted, err := hw.Notifications.CleanupOldNotifications(ctx, hw.RetentionDays)
	if err != nil {
		hw.Logger.Printf("Notification cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		hw.Logger.Printf("Notification cleanup removed %d records", deleted)
	}
}

func (hw *HousekeepingWorker) remindEvents(ctx context.Context) {
	reminded, err := hw.Notifications.RemindUpcomingEvents(ctx, eventReminderLead)
	if err != nil {
		hw.Logger.Printf("Event reminder sweep failed: %v", err)
		return
	}
	if reminded > 0 {
		hw.Logger.Printf("Sent reminders for %d upcoming events", reminded)
	}
}

func (hw *HousekeepingWorker) sweepRooms(ctx context.Context) {
	var rooms []models.Room
	if err := hw.DB.WithContext(ctx).Find(&rooms).Error; err != nil {
		hw.Logger.Printf("Error fetching rooms for retention sweep: %v", err)
		return
	}

	for i := range rooms {
		if rooms[i].Privacy.DisappearingSeconds <= 0 {
			continue
		}
		swept, err := hw.Messages.SweepExpired(ctx, &rooms[i])
		if err != nil {
			hw.Logger.Printf("Error sweeping room %s: %v", rooms[i].ID, err)
			continue
		}
		if swept > 0 {
			hw.Logger.Printf("Swept %d expired messages from room %s", swept, rooms[i].ID)
		}
	}
}
