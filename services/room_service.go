package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dealrooms/models"
	"dealrooms/realtime"
	"dealrooms/utils"
)

// RoomService is the room registry: lifecycle, membership and role-based
// visibility filtering.
type RoomService struct {
	db       *gorm.DB
	hub      *realtime.Hub
	messages *MessageService
	logger   *log.Logger
}

func NewRoomService(db *gorm.DB, hub *realtime.Hub, messages *MessageService, logger *log.Logger) *RoomService {
	return &RoomService{db: db, hub: hub, messages: messages, logger: logger}
}

// CreateRoom creates a room of the given type. Participants plus the creator
// become the member set and the creator becomes owner. The display name is
// derived from the type, never supplied by the client.
func (s *RoomService) CreateRoom(ctx context.Context, roomType models.RoomType, participants []string, creatorID string, metadata models.RoomMetadata) (string, error) {
	if len(participants) == 0 {
		return "", ErrInvalidParticipants
	}
	if !roomType.Valid() {
		return "", fmt.Errorf("%w: unknown room type %q", ErrInvalidArgument, roomType)
	}
	if err := metadata.Validate(roomType); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	members := models.StringSet{creatorID}
	members = members.Union(models.StringSet(participants))

	now := time.Now()
	room := models.Room{
		ID:               uuid.NewString(),
		Name:             models.RoomName(roomType),
		Type:             roomType,
		Members:          members,
		OwnerID:          creatorID,
		Privacy:          models.RoomPrivacy{InviteOnly: true},
		Settings:         models.DefaultRoomSettings(roomType),
		Status:           models.RoomStatusActive,
		PinnedMessageIDs: models.StringSet{},
		MutedBy:          models.StringSet{},
		Metadata:         metadata,
		CreatedAt:        now,
		LastActivityAt:   now,
	}

	if err := s.db.WithContext(ctx).Create(&room).Error; err != nil {
		return "", fmt.Errorf("%w: create room: %v", ErrUnavailable, err)
	}

	if _, err := s.messages.SendSystemMessage(ctx, room.ID, fmt.Sprintf("RaftAI created this %s.", room.Name)); err != nil {
		s.logger.Printf("Failed to add creation message to room %s: %v", room.ID, err)
	}

	s.logger.Printf("Created %s room %s (owner %s, %d members)", roomType, room.ID, creatorID, len(members))
	s.publish(&room)
	return room.ID, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get room: %v", ErrUnavailable, err)
	}
	return &room, nil
}

// ListRoomsForUser returns the user's rooms, last activity first, filtered
// through the role-isolation table. The role comes from the authenticated
// user record; client-supplied roles are never trusted here.
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID string, role models.Role) ([]models.Room, error) {
	var candidates []models.Room
	err := s.db.WithContext(ctx).
		Order("last_activity_at DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list rooms: %v", ErrUnavailable, err)
	}

	rooms := make([]models.Room, 0, len(candidates))
	for _, room := range candidates {
		if !room.IsMember(userID) {
			continue
		}
		if !utils.AllowedRoomTypes(role, room.Type) {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// AddMember appends userID to the member set. Owner-only; idempotent.
func (s *RoomService) AddMember(ctx context.Context, roomID, userID, inviterID string) error {
	changed := false
	room, err := s.mutate(ctx, roomID, func(room *models.Room) error {
		if room.OwnerID != inviterID {
			return ErrForbidden
		}
		if room.IsMember(userID) {
			return nil
		}
		room.Members = room.Members.Add(userID)
		room.LastActivityAt = time.Now()
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if _, err := s.messages.SendSystemMessage(ctx, roomID, fmt.Sprintf("%s was added to the room", userID)); err != nil {
		s.logger.Printf("Failed to add join message to room %s: %v", roomID, err)
	}
	s.publish(room)
	return nil
}

// RemoveMember removes userID. Permitted for the owner or as a self-leave.
// The owner can never be removed; a room always keeps its owner as member.
func (s *RoomService) RemoveMember(ctx context.Context, roomID, userID, removerID string) error {
	changed := false
	room, err := s.mutate(ctx, roomID, func(room *models.Room) error {
		if room.OwnerID != removerID && removerID != userID {
			return ErrForbidden
		}
		if userID == room.OwnerID {
			return fmt.Errorf("%w: cannot remove room owner", ErrInvalidArgument)
		}
		if !room.IsMember(userID) {
			return nil
		}
		room.Members = room.Members.Remove(userID)
		room.MutedBy = room.MutedBy.Remove(userID)
		room.LastActivityAt = time.Now()
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	// Drop the cached membership so stream handshakes see the removal now,
	// not when the cache entry expires.
	utils.MembershipCache.Delete(roomID + ":" + userID)

	verb := "was removed from"
	if removerID == userID {
		verb = "left"
	}
	if _, err := s.messages.SendSystemMessage(ctx, roomID, fmt.Sprintf("%s %s the room", userID, verb)); err != nil {
		s.logger.Printf("Failed to add leave message to room %s: %v", roomID, err)
	}
	s.publish(room)
	return nil
}

// RenameRoom changes the display name. Owner or platform admin only.
func (s *RoomService) RenameRoom(ctx context.Context, roomID, newName string, actor *models.User) error {
	if newName == "" {
		return fmt.Errorf("%w: room name cannot be empty", ErrInvalidArgument)
	}
	room, err := s.mutate(ctx, roomID, func(room *models.Room) error {
		if room.OwnerID != actor.PublicID && actor.Role != models.RoleAdmin {
			return ErrForbidden
		}
		room.Name = newName
		room.LastActivityAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.messages.SendSystemMessage(ctx, roomID, fmt.Sprintf("Room renamed to %q", newName)); err != nil {
		s.logger.Printf("Failed to add rename message to room %s: %v", roomID, err)
	}
	s.publish(room)
	return nil
}

// PinMessage pins a message id on the room. Owner or admin only; idempotent.
func (s *RoomService) PinMessage(ctx context.Context, roomID, messageID string, actor *models.User) error {
	return s.setPinned(ctx, roomID, messageID, actor, true)
}

func (s *RoomService) UnpinMessage(ctx context.Context, roomID, messageID string, actor *models.User) error {
	return s.setPinned(ctx, roomID, messageID, actor, false)
}

func (s *RoomService) setPinned(ctx context.Context, roomID, messageID string, actor *models.User, pinned bool) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != actor.PublicID && actor.Role != models.RoleAdmin {
		return ErrForbidden
	}
	if err := s.messages.setMessagePinned(ctx, roomID, messageID, pinned); err != nil {
		return err
	}

	room, err = s.mutate(ctx, roomID, func(room *models.Room) error {
		if pinned {
			room.PinnedMessageIDs = room.PinnedMessageIDs.Add(messageID)
		} else {
			room.PinnedMessageIDs = room.PinnedMessageIDs.Remove(messageID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(room)
	return nil
}

// MuteRoom suppresses plain message notifications from this room for the
// user. Any member may mute their own view.
func (s *RoomService) MuteRoom(ctx context.Context, roomID, userID string) error {
	return s.setMuted(ctx, roomID, userID, true)
}

func (s *RoomService) UnmuteRoom(ctx context.Context, roomID, userID string) error {
	return s.setMuted(ctx, roomID, userID, false)
}

func (s *RoomService) setMuted(ctx context.Context, roomID, userID string, muted bool) error {
	room, err := s.mutate(ctx, roomID, func(room *models.Room) error {
		if !room.IsMember(userID) {
			return ErrForbidden
		}
		if muted {
			room.MutedBy = room.MutedBy.Add(userID)
		} else {
			room.MutedBy = room.MutedBy.Remove(userID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(room)
	return nil
}

// RoomSnapshot feeds the realtime hub's first value for a room subscription.
func (s *RoomService) RoomSnapshot(roomID string) realtime.SnapshotFunc {
	return func() (interface{}, error) {
		return s.GetRoom(context.Background(), roomID)
	}
}

// mutate runs a read-modify-write of one room row under a FOR UPDATE row
// lock, so concurrent member and settings edits serialize instead of
// overwriting each other from stale reads. On sqlite the clause is a no-op;
// the single writer serializes the transactions anyway.
func (s *RoomService) mutate(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&room, "id = ?", roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := fn(&room); err != nil {
			return err
		}
		return tx.Save(&room).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidArgument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update room: %v", ErrUnavailable, err)
	}
	return &room, nil
}

func (s *RoomService) publish(room *models.Room) {
	s.hub.Publish(realtime.RoomTopic(room.ID), room)
}
