package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInvitationCreated  EventType = "invitation_created"
	EventInvitationResolved EventType = "invitation_resolved"
	EventMoveApplied        EventType = "move_applied"
	EventGameEnded          EventType = "game_ended"
)

// Event is a fire-and-forget notification about a state change.
type Event struct {
	Type       EventType   `json:"type"`
	Recipients []uuid.UUID `json:"-"`
	Invitation *Invitation `json:"invitation,omitempty"`
	Game       *Game       `json:"game,omitempty"`
	Move       *Move       `json:"move,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
