package models

import "time"

type ModerationActionKind string

const (
	ModerationMute      ModerationActionKind = "mute"
	ModerationKick      ModerationActionKind = "kick"
	ModerationClose     ModerationActionKind = "close"
	ModerationSlowMode  ModerationActionKind = "slow_mode"
	ModerationRetention ModerationActionKind = "retention"
	ModerationRedact    ModerationActionKind = "redact"
)

var ModerationActionKinds = []ModerationActionKind{
	ModerationMute, ModerationKick, ModerationClose,
	ModerationSlowMode, ModerationRetention, ModerationRedact,
}

func (k ModerationActionKind) Valid() bool {
	for _, kind := range ModerationActionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ModerationAction is an append-only audit record. It is written before the
// action is applied to the room, so application can always be replayed from
// the log. References its room weakly.
type ModerationAction struct {
	ID              string               `gorm:"primaryKey;size:36" json:"id"`
	RoomID          string               `gorm:"not null;index" json:"room_id"`
	ModeratorID     string               `gorm:"not null" json:"moderator_id"`
	Action          ModerationActionKind `gorm:"size:16;not null" json:"action"`
	TargetUserID    *string              `json:"target_user_id,omitempty"`
	TargetMessageID *string              `json:"target_message_id,omitempty"`
	DurationSeconds *int                 `json:"duration_seconds,omitempty"`
	Metadata        map[string]string    `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt       time.Time            `gorm:"index" json:"created_at"`
}
