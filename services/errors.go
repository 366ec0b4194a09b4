package services

import "errors"

// Error taxonomy surfaced by the core services. Controllers map these to
// HTTP statuses; nothing below Unavailable is ever retried silently.
var (
	// ErrForbidden means a role or ownership check failed. Surfaced, never retried.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the room, message or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means malformed or out-of-contract input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidParticipants means a room was created with no participants.
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrRoomClosed means a write hit a room that is no longer active.
	ErrRoomClosed = errors.New("room is closed")

	// ErrSlowMode means the sender is inside the room's slow-mode window.
	ErrSlowMode = errors.New("slow mode active")

	// ErrUnavailable means a transient backend failure. Callers retry with
	// bounded exponential backoff.
	ErrUnavailable = errors.New("temporarily unavailable")

	// ErrExternalEngine means the RaftAI engine call failed. The AI
	// processor degrades to a fallback reply; this never reaches a room.
	ErrExternalEngine = errors.New("external engine failure")
)
