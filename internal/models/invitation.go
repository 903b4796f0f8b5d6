package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
	InvitationExpired   InvitationStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationCancelled, InvitationExpired:
		return true
	}
	return false
}

const GameTypeChess = "CHESS"

type Invitation struct {
	ID         uuid.UUID        `json:"id"`
	InviterID  uuid.UUID        `json:"inviter_id"`
	InviteeID  uuid.UUID        `json:"invitee_id"`
	GameType   string           `json:"game_type"`
	Status     InvitationStatus `json:"status"`
	GameID     *uuid.UUID       `json:"game_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

type InvitationListParams struct {
	InviterID *uuid.UUID
	InviteeID *uuid.UUID
	Status    *InvitationStatus
	Page      Page
}
