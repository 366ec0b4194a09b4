package models

import (
	"fmt"
	"time"
)

// Reserved sender identities. Neither is ever a room member.
const (
	SenderSystem = "system"
	SenderRaftAI = "raftai"
)

type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeFile    MessageType = "file"
	MessageTypeImage   MessageType = "image"
	MessageTypeVideo   MessageType = "video"
	MessageTypeVoice   MessageType = "voice"
	MessageTypePoll    MessageType = "poll"
	MessageTypeTask    MessageType = "task"
	MessageTypeEvent   MessageType = "event"
	MessageTypeAIReply MessageType = "ai-reply"
	MessageTypeSystem  MessageType = "system"
)

var MessageTypes = []MessageType{
	MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeVideo,
	MessageTypeVoice, MessageTypePoll, MessageTypeTask, MessageTypeEvent,
	MessageTypeAIReply, MessageTypeSystem,
}

func (t MessageType) Valid() bool {
	for _, mt := range MessageTypes {
		if t == mt {
			return true
		}
	}
	return false
}

type PollPayload struct {
	Question string         `json:"question"`
	Options  []string       `json:"options"`
	Votes    map[string]int `json:"votes,omitempty"` // option -> vote count
	ClosesAt *time.Time     `json:"closes_at,omitempty"`
}

type TaskPayload struct {
	Title      string     `json:"title"`
	AssigneeID string     `json:"assignee_id,omitempty"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	Completed  bool       `json:"completed"`
}

type EventPayload struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at,omitempty"`
	Location string    `json:"location,omitempty"`
}

type FilePayload struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	URL      string `json:"url,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds, voice/video only
}

type AIReplyPayload struct {
	Command        string `json:"command"`
	Argument       string `json:"argument,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	RequestedBy    string `json:"requested_by"`
}

// MessagePayload is the tagged variant carried by non-plain messages. Which
// variant must be present is determined by the message type; see Validate.
type MessagePayload struct {
	Poll  *PollPayload    `json:"poll,omitempty"`
	Task  *TaskPayload    `json:"task,omitempty"`
	Event *EventPayload   `json:"event,omitempty"`
	File  *FilePayload    `json:"file,omitempty"`
	AI    *AIReplyPayload `json:"ai,omitempty"`
}

func (p MessagePayload) Validate(t MessageType) error {
	switch t {
	case MessageTypeText, MessageTypeSystem:
		if p.Poll != nil || p.Task != nil || p.Event != nil || p.File != nil || p.AI != nil {
			return fmt.Errorf("%s messages carry no payload", t)
		}
	case MessageTypePoll:
		if p.Poll == nil {
			return fmt.Errorf("poll messages require a poll payload")
		}
	case MessageTypeTask:
		if p.Task == nil {
			return fmt.Errorf("task messages require a task payload")
		}
	case MessageTypeEvent:
		if p.Event == nil {
			return fmt.Errorf("event messages require an event payload")
		}
	case MessageTypeFile, MessageTypeImage, MessageTypeVideo, MessageTypeVoice:
		if p.File == nil {
			return fmt.Errorf("%s messages require a file payload", t)
		}
	case MessageTypeAIReply:
		if p.AI == nil {
			return fmt.Errorf("ai-reply messages require an ai payload")
		}
	default:
		return fmt.Errorf("unknown message type %q", t)
	}
	return nil
}

// Message is one entry in a room's append-only log. Edits touch Body and
// EditedAt only; deletion sets the DeletedAt tombstone. ID, sender, room and
// CreatedAt never change after insert.
type Message struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	RoomID string `gorm:"not null;index:idx_room_seq" json:"room_id"`
	// Seq is the per-room insertion sequence; it breaks creation-time ties
	// so ordering never depends on client clocks.
	Seq      int64       `gorm:"not null;index:idx_room_seq" json:"seq"`
	SenderID string      `gorm:"not null;index" json:"sender_id"`
	Type     MessageType `gorm:"size:16;not null" json:"type"`
	Body     string      `gorm:"type:text" json:"body"`

	ParentID  *string        `gorm:"index" json:"parent_id,omitempty"`
	Reactions ReactionMap    `gorm:"serializer:json" json:"reactions"`
	ReadBy    StringSet      `gorm:"serializer:json" json:"read_by"`
	Payload   MessagePayload `gorm:"serializer:json" json:"payload"`

	Pinned   bool `gorm:"default:false" json:"pinned"`
	Redacted bool `gorm:"default:false" json:"redacted"`
	// ReminderSent marks event messages whose start reminder already went
	// out, so the reminder job never notifies twice.
	ReminderSent bool `gorm:"default:false" json:"-"`

	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (m *Message) Tombstoned() bool {
	return m.DeletedAt != nil
}
