package models

import "time"

type NotificationType string

const (
	NotificationTypeMessage       NotificationType = "message"
	NotificationTypeMention       NotificationType = "mention"
	NotificationTypeReaction      NotificationType = "reaction"
	NotificationTypeTaskAssigned  NotificationType = "task_assigned"
	NotificationTypeEventReminder NotificationType = "event_reminder"
)

// Notification is a per-user fan-out record, created only by the dispatcher.
// It references its room weakly and must tolerate the room being archived.
type Notification struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	UserID    string           `gorm:"not null;index" json:"user_id"`
	RoomID    string           `gorm:"not null;index" json:"room_id"`
	MessageID *string          `json:"message_id,omitempty"`
	Type      NotificationType `gorm:"size:20;not null" json:"type"`
	Title     string           `gorm:"not null" json:"title"`
	Body      string           `gorm:"type:text" json:"body"`
	Read      bool             `gorm:"default:false;index" json:"read"`
	EmailedAt *time.Time       `json:"emailed_at,omitempty"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`
}
