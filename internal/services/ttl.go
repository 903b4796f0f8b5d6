package services

import (
	"time"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

// TTLPolicy computes invitation and game deadlines.
type TTLPolicy struct {
	InvitationTTL time.Duration
	MoveTimeout   time.Duration
}

func (p TTLPolicy) InvitationExpiry(createdAt time.Time) time.Time {
	return createdAt.Add(p.InvitationTTL)
}

// InvitationExpired is true once now reaches the expiry instant.
func (p TTLPolicy) InvitationExpired(inv *models.Invitation, now time.Time) bool {
	return !now.Before(inv.ExpiresAt)
}

func (p TTLPolicy) MoveDeadline(g *models.Game) time.Time {
	return g.LastMoveAt.Add(p.MoveTimeout)
}

func (p TTLPolicy) GameTimedOut(g *models.Game, now time.Time) bool {
	return g.Status == models.GameActive && !now.Before(p.MoveDeadline(g))
}

// GameCutoff is the last-move instant at or before which an active game is expired.
func (p TTLPolicy) GameCutoff(now time.Time) time.Time {
	return now.Add(-p.MoveTimeout)
}
