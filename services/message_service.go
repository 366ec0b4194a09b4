package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dealrooms/models"
	"dealrooms/realtime"
)

// CommandPrefix marks in-band AI commands in message text.
const CommandPrefix = "/raftai "

// CommandHandler receives command text after the user's message committed.
// Wired after construction to break the message<->AI cycle.
type CommandHandler interface {
	HandleCommand(ctx context.Context, room *models.Room, callerID, text string)
}

// MessageService is the append-only per-room message store: sends,
// reactions, read receipts, edits and tombstone deletes.
type MessageService struct {
	db       *gorm.DB
	hub      *realtime.Hub
	notifier *NotificationService
	rdb      *redis.Client // nil when redis is disabled
	logger   *log.Logger

	cmd CommandHandler

	// In-memory slow-mode fallback, keyed by room:user.
	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewMessageService(db *gorm.DB, hub *realtime.Hub, notifier *NotificationService, rdb *redis.Client, logger *log.Logger) *MessageService {
	return &MessageService{
		db:       db,
		hub:      hub,
		notifier: notifier,
		rdb:      rdb,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetCommandHandler attaches the AI command processor.
func (s *MessageService) SetCommandHandler(h CommandHandler) { s.cmd = h }

// SendMessage appends a message from a room member. The room must be active;
// slow mode is enforced per (room, sender); read-by starts as {sender}.
func (s *MessageService) SendMessage(ctx context.Context, roomID, senderID, body string, msgType models.MessageType, payload models.MessagePayload) (string, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if !room.IsMember(senderID) {
		return "", ErrForbidden
	}
	if room.Status != models.RoomStatusActive {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, ErrRoomClosed)
	}
	if !msgType.Valid() || msgType == models.MessageTypeSystem || msgType == models.MessageTypeAIReply {
		return "", fmt.Errorf("%w: message type %q not allowed for members", ErrInvalidArgument, msgType)
	}
	if err := payload.Validate(msgType); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if msgType == models.MessageTypeText && strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: empty message body", ErrInvalidArgument)
	}
	if payload.File != nil && !room.Settings.FilesAllowed {
		return "", fmt.Errorf("%w: file uploads are disabled in this room", ErrInvalidArgument)
	}

	if err := s.checkSlowMode(ctx, room, senderID); err != nil {
		return "", err
	}

	msg, err := s.append(ctx, room, senderID, body, msgType, payload, nil)
	if err != nil {
		return "", err
	}

	s.fanOut(ctx, room, msg)
	s.dispatchCommand(ctx, room, msg)

	return msg.ID, nil
}

// SendThreadReply appends a message under a parent. Same rules as
// SendMessage plus the room's threads setting.
func (s *MessageService) SendThreadReply(ctx context.Context, roomID, senderID, parentID, body string) (string, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if !room.IsMember(senderID) {
		return "", ErrForbidden
	}
	if room.Status != models.RoomStatusActive {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, ErrRoomClosed)
	}
	if !room.Settings.ThreadsAllowed {
		return "", fmt.Errorf("%w: threads are disabled in this room", ErrInvalidArgument)
	}
	if _, err := s.GetMessage(ctx, roomID, parentID); err != nil {
		return "", err
	}
	if err := s.checkSlowMode(ctx, room, senderID); err != nil {
		return "", err
	}

	msg, err := s.append(ctx, room, senderID, body, models.MessageTypeText, models.MessagePayload{}, &parentID)
	if err != nil {
		return "", err
	}
	s.fanOut(ctx, room, msg)
	return msg.ID, nil
}

// SendSystemMessage appends a message from the reserved system identity.
// Internal callers only; never exposed over HTTP.
func (s *MessageService) SendSystemMessage(ctx context.Context, roomID, body string) (string, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	msg, err := s.append(ctx, room, models.SenderSystem, body, models.MessageTypeSystem, models.MessagePayload{}, nil)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// AppendAIReply appends the AI processor's reply as the reserved raftai
// identity, carrying the originating command in its payload.
func (s *MessageService) AppendAIReply(ctx context.Context, roomID, body string, payload models.AIReplyPayload) (string, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	msg, err := s.append(ctx, room, models.SenderRaftAI, body, models.MessageTypeAIReply, models.MessagePayload{AI: &payload}, nil)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// AddReaction adds userID under the emoji. Commutative set-add; idempotent.
func (s *MessageService) AddReaction(ctx context.Context, roomID, messageID, userID, emoji string) error {
	return s.updateReaction(ctx, roomID, messageID, userID, emoji, true)
}

// RemoveReaction drops userID from the emoji's reactor set. Removing the
// last reactor removes the emoji key entirely.
func (s *MessageService) RemoveReaction(ctx context.Context, roomID, messageID, userID, emoji string) error {
	return s.updateReaction(ctx, roomID, messageID, userID, emoji, false)
}

func (s *MessageService) updateReaction(ctx context.Context, roomID, messageID, userID, emoji string, add bool) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsMember(userID) {
		return ErrForbidden
	}
	if !room.Settings.ReactionsAllowed {
		return fmt.Errorf("%w: reactions are disabled in this room", ErrInvalidArgument)
	}
	if emoji == "" {
		return fmt.Errorf("%w: empty emoji", ErrInvalidArgument)
	}

	var msg models.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// FOR UPDATE: two concurrent toggles must not both read the same
		// reaction map and overwrite each other's write.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&msg, "id = ? AND room_id = ?", messageID, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if add {
			msg.Reactions = msg.Reactions.Add(emoji, userID)
		} else {
			msg.Reactions = msg.Reactions.Remove(emoji, userID)
		}
		return tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Select("reactions").
			Updates(models.Message{Reactions: msg.Reactions}).Error
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: update reaction: %v", ErrUnavailable, err)
	}

	s.publishLog(ctx, roomID)
	if add && msg.SenderID != userID && msg.SenderID != models.SenderSystem && msg.SenderID != models.SenderRaftAI {
		s.notifier.Notify(ctx, room, Event{
			Type:       models.NotificationTypeReaction,
			RoomID:     roomID,
			MessageID:  &messageID,
			ActorID:    userID,
			Recipients: []string{msg.SenderID},
			Title:      "New Reaction",
			Body:       fmt.Sprintf("%s on your message", emoji),
		})
	}
	return nil
}

// MarkRead records userID in the message's read-by set. Idempotent.
func (s *MessageService) MarkRead(ctx context.Context, roomID, messageID, userID string) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsMember(userID) {
		return ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&msg, "id = ? AND room_id = ?", messageID, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if msg.ReadBy.Contains(userID) {
			return nil
		}
		return tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Select("read_by").
			Updates(models.Message{ReadBy: msg.ReadBy.Add(userID)}).Error
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: mark read: %v", ErrUnavailable, err)
	}
	s.publishLog(ctx, roomID)
	return nil
}

// EditMessage mutates body and sets the edited timestamp. Author only; id,
// sender, room and creation time never change.
func (s *MessageService) EditMessage(ctx context.Context, roomID, messageID, userID, newBody string) error {
	msg, err := s.GetMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrForbidden
	}
	if msg.Tombstoned() {
		return fmt.Errorf("%w: cannot edit a deleted message", ErrInvalidArgument)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{"body": newBody, "edited_at": &now}).Error
	if err != nil {
		return fmt.Errorf("%w: edit message: %v", ErrUnavailable, err)
	}
	s.publishLog(ctx, roomID)
	return nil
}

// DeleteMessage sets the tombstone. The row stays to preserve ordering and
// reaction history.
func (s *MessageService) DeleteMessage(ctx context.Context, roomID, messageID, userID string) error {
	msg, err := s.GetMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrForbidden
	}
	return s.tombstone(ctx, roomID, messageID)
}

// RedactMessage blanks the body and marks the message redacted, preserving
// its log position. Called by the moderation engine only.
func (s *MessageService) RedactMessage(ctx context.Context, roomID, messageID string) error {
	if _, err := s.GetMessage(ctx, roomID, messageID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{"body": "[redacted]", "redacted": true}).Error
	if err != nil {
		return fmt.Errorf("%w: redact message: %v", ErrUnavailable, err)
	}
	s.publishLog(ctx, roomID)
	return nil
}

func (s *MessageService) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ? AND room_id = ?", messageID, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get message: %v", ErrUnavailable, err)
	}
	return &msg, nil
}

// RoomForRead loads a room for read-path membership checks.
func (s *MessageService) RoomForRead(ctx context.Context, roomID string) (*models.Room, error) {
	return s.loadRoom(ctx, roomID)
}

// GetMessages returns a newest-first page. Tombstoned messages are included
// with blanked bodies so clients keep stable ordering.
func (s *MessageService) GetMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: get messages: %v", ErrUnavailable, err)
	}
	for i := range msgs {
		if msgs[i].Tombstoned() {
			msgs[i].Body = ""
		}
	}
	return msgs, nil
}

// RecentWindow returns the last n live conversation messages oldest-first,
// excluding system chatter and prior AI replies. Used by the AI processor.
func (s *MessageService) RecentWindow(ctx context.Context, roomID string, n int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND sender_id NOT IN ? AND deleted_at IS NULL", roomID, []string{models.SenderSystem, models.SenderRaftAI}).
		Order("created_at DESC, seq DESC").
		Limit(n).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: recent window: %v", ErrUnavailable, err)
	}
	// reverse to oldest-first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SweepExpired tombstones messages older than the room's disappearing TTL.
// Invoked by the housekeeping worker.
func (s *MessageService) SweepExpired(ctx context.Context, room *models.Room) (int64, error) {
	ttl := room.Privacy.DisappearingSeconds
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(ttl) * time.Second)
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND created_at < ? AND deleted_at IS NULL", room.ID, cutoff).
		Update("deleted_at", &now)
	if res.Error != nil {
		return 0, fmt.Errorf("%w: retention sweep: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected > 0 {
		s.publishLog(ctx, room.ID)
	}
	return res.RowsAffected, nil
}

// MessagesSnapshot feeds the hub's first value for a message subscription:
// the oldest-first live page.
func (s *MessageService) MessagesSnapshot(roomID string) realtime.SnapshotFunc {
	return func() (interface{}, error) {
		return s.orderedLog(context.Background(), roomID)
	}
}

// --- internals ---

func (s *MessageService) append(ctx context.Context, room *models.Room, senderID, body string, msgType models.MessageType, payload models.MessagePayload, parentID *string) (*models.Message, error) {
	msg := models.Message{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		SenderID:  senderID,
		Type:      msgType,
		Body:      body,
		ParentID:  parentID,
		Reactions: models.ReactionMap{},
		ReadBy:    models.StringSet{},
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if senderID != models.SenderSystem && senderID != models.SenderRaftAI {
		msg.ReadBy = models.StringSet{senderID}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the room row so concurrent appends serialize their sequence
		// assignment; without it two inserts can read the same max.
		var anchor models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&anchor, "id = ?", room.ID).Error; err != nil {
			return err
		}
		// Server-assigned insertion sequence breaks creation-time ties.
		var maxSeq int64
		if err := tx.Model(&models.Message{}).
			Where("room_id = ?", room.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		msg.Seq = maxSeq + 1
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Room{}).
			Where("id = ?", room.ID).
			Update("last_activity_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %v", ErrUnavailable, err)
	}

	s.publishLog(ctx, room.ID)
	return &msg, nil
}

func (s *MessageService) fanOut(ctx context.Context, room *models.Room, msg *models.Message) {
	if msg.Type == models.MessageTypeSystem || msg.Type == models.MessageTypeAIReply {
		return
	}

	mentioned := mentionedMembers(msg.Body, room.Members)
	recipients := make([]string, 0, len(room.Members))
	for _, member := range room.Members {
		if member != msg.SenderID && !mentioned.Contains(member) {
			recipients = append(recipients, member)
		}
	}

	if msg.Type == models.MessageTypeTask && msg.Payload.Task != nil && msg.Payload.Task.AssigneeID != "" {
		s.notifier.Notify(ctx, room, Event{
			Type:       models.NotificationTypeTaskAssigned,
			RoomID:     room.ID,
			MessageID:  &msg.ID,
			ActorID:    msg.SenderID,
			Recipients: []string{msg.Payload.Task.AssigneeID},
			Title:      "Task Assigned",
			Body:       fmt.Sprintf("You were assigned: %s", msg.Payload.Task.Title),
		})
	}

	if len(mentioned) > 0 {
		s.notifier.Notify(ctx, room, Event{
			Type:       models.NotificationTypeMention,
			RoomID:     room.ID,
			MessageID:  &msg.ID,
			ActorID:    msg.SenderID,
			Recipients: mentioned,
			Title:      "You were mentioned",
			Body:       msg.Body,
		})
	}
	if len(recipients) > 0 {
		s.notifier.Notify(ctx, room, Event{
			Type:       models.NotificationTypeMessage,
			RoomID:     room.ID,
			MessageID:  &msg.ID,
			ActorID:    msg.SenderID,
			Recipients: recipients,
			Title:      "New Message",
			Body:       msg.Body,
		})
	}
}

func (s *MessageService) dispatchCommand(ctx context.Context, room *models.Room, msg *models.Message) {
	if s.cmd == nil || msg.Type != models.MessageTypeText {
		return
	}
	if !strings.HasPrefix(msg.Body, CommandPrefix) {
		return
	}
	// Processed off the send path: the user's message is already committed
	// and the engine round-trip must not block the sender.
	go s.cmd.HandleCommand(context.WithoutCancel(ctx), room, msg.SenderID, msg.Body)
}

func (s *MessageService) checkSlowMode(ctx context.Context, room *models.Room, senderID string) error {
	seconds := room.Settings.SlowModeSeconds
	if seconds <= 0 {
		return nil
	}

	if s.rdb != nil {
		key := fmt.Sprintf("slowmode:%s:%s", room.ID, senderID)
		ok, err := s.rdb.SetNX(ctx, key, 1, time.Duration(seconds)*time.Second).Result()
		if err == nil {
			if !ok {
				return ErrSlowMode
			}
			return nil
		}
		s.logger.Printf("Slow-mode redis check failed, falling back in-memory: %v", err)
	}

	s.limiterMu.Lock()
	key := room.ID + ":" + senderID
	lim, ok := s.limiters[key]
	if !ok || lim.Limit() != rate.Every(time.Duration(seconds)*time.Second) {
		lim = rate.NewLimiter(rate.Every(time.Duration(seconds)*time.Second), 1)
		s.limiters[key] = lim
	}
	s.limiterMu.Unlock()

	if !lim.Allow() {
		return ErrSlowMode
	}
	return nil
}

func (s *MessageService) tombstone(ctx context.Context, roomID, messageID string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("deleted_at", &now).Error
	if err != nil {
		return fmt.Errorf("%w: delete message: %v", ErrUnavailable, err)
	}
	s.publishLog(ctx, roomID)
	return nil
}

func (s *MessageService) setMessagePinned(ctx context.Context, roomID, messageID string, pinned bool) error {
	if _, err := s.GetMessage(ctx, roomID, messageID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("pinned", pinned).Error
	if err != nil {
		return fmt.Errorf("%w: pin message: %v", ErrUnavailable, err)
	}
	s.publishLog(ctx, roomID)
	return nil
}

func (s *MessageService) loadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load room: %v", ErrUnavailable, err)
	}
	return &room, nil
}

func (s *MessageService) orderedLog(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, seq ASC").
		Limit(100).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Tombstoned() {
			msgs[i].Body = ""
		}
	}
	return msgs, nil
}

func (s *MessageService) publishLog(ctx context.Context, roomID string) {
	msgs, err := s.orderedLog(ctx, roomID)
	if err != nil {
		s.logger.Printf("Failed to load log for publish, room %s: %v", roomID, err)
		return
	}
	s.hub.Publish(realtime.MessagesTopic(roomID), msgs)
}

// mentionedMembers extracts @-mentions that match current member ids.
func mentionedMembers(body string, members models.StringSet) models.StringSet {
	var mentioned models.StringSet
	for _, token := range strings.Fields(body) {
		if !strings.HasPrefix(token, "@") {
			continue
		}
		candidate := strings.TrimRight(strings.TrimPrefix(token, "@"), ".,!?:;")
		if members.Contains(candidate) {
			mentioned = mentioned.Add(candidate)
		}
	}
	return mentioned
}
