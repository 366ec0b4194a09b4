package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealrooms/models"
	"dealrooms/utils"
)

// ModerationService applies room-scoped moderation actions. Every action is
// logged before it is applied, so a crash between log and apply is recovered
// by Replay; application is idempotent.
type ModerationService struct {
	db       *gorm.DB
	rooms    *RoomService
	messages *MessageService
	logger   *log.Logger
}

func NewModerationService(db *gorm.DB, rooms *RoomService, messages *MessageService, logger *log.Logger) *ModerationService {
	return &ModerationService{db: db, rooms: rooms, messages: messages, logger: logger}
}

// Apply validates, logs and applies an action. The moderator must be the
// room owner or a platform admin.
func (s *ModerationService) Apply(ctx context.Context, action models.ModerationAction, moderator *models.User) (string, error) {
	if !action.Action.Valid() {
		return "", fmt.Errorf("%w: unknown moderation action %q", ErrInvalidArgument, action.Action)
	}

	room, err := s.rooms.GetRoom(ctx, action.RoomID)
	if err != nil {
		return "", err
	}
	if room.OwnerID != moderator.PublicID && moderator.Role != models.RoleAdmin {
		return "", ErrForbidden
	}

	if err := s.validate(room, &action); err != nil {
		return "", err
	}

	action.ID = uuid.NewString()
	action.ModeratorID = moderator.PublicID
	action.CreatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(&action).Error; err != nil {
		return "", fmt.Errorf("%w: log moderation action: %v", ErrUnavailable, err)
	}

	if err := s.applyLogged(ctx, room, &action); err != nil {
		// The log row stays: Replay picks the action up later.
		s.logger.Printf("Moderation action %s logged but not applied: %v", action.ID, err)
		return action.ID, err
	}
	return action.ID, nil
}

// Log returns the room's full moderation history, oldest first. The history
// names moderators and their targets, so it is restricted to room members
// and platform admins.
func (s *ModerationService) Log(ctx context.Context, roomID string, requester *models.User) ([]models.ModerationAction, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(requester.PublicID) && requester.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.loadLog(ctx, roomID)
}

func (s *ModerationService) loadLog(ctx context.Context, roomID string) ([]models.ModerationAction, error) {
	var actions []models.ModerationAction
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&actions).Error
	if err != nil {
		return nil, fmt.Errorf("%w: moderation log: %v", ErrUnavailable, err)
	}
	return actions, nil
}

// Replay re-applies the room's moderation log in order. Because every
// application is idempotent this is safe to run at any time.
func (s *ModerationService) Replay(ctx context.Context, roomID string) error {
	actions, err := s.loadLog(ctx, roomID)
	if err != nil {
		return err
	}
	for i := range actions {
		room, err := s.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if err := s.applyLogged(ctx, room, &actions[i]); err != nil {
			return fmt.Errorf("replay action %s: %w", actions[i].ID, err)
		}
	}
	return nil
}

// validate rejects actions that could never be applied, before logging.
func (s *ModerationService) validate(room *models.Room, action *models.ModerationAction) error {
	switch action.Action {
	case models.ModerationClose:
		// Closed and archived are terminal.
		if room.Status != models.RoomStatusActive {
			return fmt.Errorf("%w: room status is %q, only active rooms can be closed", ErrInvalidArgument, room.Status)
		}
	case models.ModerationSlowMode, models.ModerationRetention:
		if action.DurationSeconds == nil || *action.DurationSeconds < 0 {
			return fmt.Errorf("%w: %s requires a non-negative duration", ErrInvalidArgument, action.Action)
		}
	case models.ModerationMute:
		if action.TargetUserID == nil {
			return fmt.Errorf("%w: mute requires a target user", ErrInvalidArgument)
		}
	case models.ModerationKick:
		if action.TargetUserID == nil {
			return fmt.Errorf("%w: kick requires a target user", ErrInvalidArgument)
		}
		if *action.TargetUserID == room.OwnerID {
			return fmt.Errorf("%w: room owner cannot be kicked", ErrInvalidArgument)
		}
	case models.ModerationRedact:
		if action.TargetMessageID == nil {
			return fmt.Errorf("%w: redact requires a target message", ErrInvalidArgument)
		}
	}
	return nil
}

// applyLogged mutates the room per an already-logged action. Every branch
// is idempotent so the same log entry can be applied more than once. Room
// edits go through the registry's locked read-modify-write so an action
// never clobbers a concurrent membership or settings change.
func (s *ModerationService) applyLogged(ctx context.Context, room *models.Room, action *models.ModerationAction) error {
	var note string

	if action.Action == models.ModerationRedact {
		if err := s.messages.RedactMessage(ctx, room.ID, *action.TargetMessageID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		note = "A message was redacted by a moderator."
	} else {
		updated, err := s.rooms.mutate(ctx, room.ID, func(room *models.Room) error {
			switch action.Action {
			case models.ModerationClose:
				if room.Status == models.RoomStatusActive {
					room.Status = models.RoomStatusClosed
				}
				note = "This room has been closed by a moderator."

			case models.ModerationSlowMode:
				room.Settings.SlowModeSeconds = *action.DurationSeconds
				if *action.DurationSeconds > 0 {
					note = fmt.Sprintf("Slow mode enabled: one message every %d seconds.", *action.DurationSeconds)
				} else {
					note = "Slow mode disabled."
				}

			case models.ModerationRetention:
				room.Privacy.DisappearingSeconds = *action.DurationSeconds
				if *action.DurationSeconds > 0 {
					note = fmt.Sprintf("Disappearing messages enabled: %d second retention.", *action.DurationSeconds)
				} else {
					note = "Disappearing messages disabled."
				}

			case models.ModerationMute:
				room.MutedBy = room.MutedBy.Add(*action.TargetUserID)
				note = fmt.Sprintf("%s was muted by a moderator.", *action.TargetUserID)

			case models.ModerationKick:
				room.Members = room.Members.Remove(*action.TargetUserID)
				room.MutedBy = room.MutedBy.Remove(*action.TargetUserID)
				note = fmt.Sprintf("%s was removed by a moderator.", *action.TargetUserID)

			default:
				return fmt.Errorf("%w: unknown moderation action %q", ErrInvalidArgument, action.Action)
			}
			return nil
		})
		if err != nil {
			return err
		}
		room = updated

		if action.Action == models.ModerationKick {
			// Kicked users must not ride a cached membership onto streams.
			utils.MembershipCache.Delete(room.ID + ":" + *action.TargetUserID)
		}
	}

	if _, err := s.messages.SendSystemMessage(ctx, room.ID, note); err != nil {
		s.logger.Printf("Failed to add moderation message to room %s: %v", room.ID, err)
	}
	s.rooms.publish(room)
	return nil
}
