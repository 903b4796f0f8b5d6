package models

import (
	"time"

	"github.com/google/uuid"
)

type Resolution string

const (
	ResolutionApplied        Resolution = "applied"
	ResolutionAlreadyApplied Resolution = "already_applied"
	ResolutionSuperseded     Resolution = "superseded"
)

// MoveInconsistency records a worker-accepted move whose durable write failed.
type MoveInconsistency struct {
	ID            uuid.UUID   `json:"id"`
	GameID        uuid.UUID   `json:"game_id"`
	ExpectedSeq   int         `json:"expected_seq"`
	PlayerID      uuid.UUID   `json:"player_id"`
	Notation      string      `json:"move"`
	VerdictFEN    string      `json:"verdict_fen"`
	VerdictStates string      `json:"verdict_states"`
	VerdictStatus GameStatus  `json:"verdict_status"`
	WriteError    string      `json:"write_error"`
	Resolution    *Resolution `json:"resolution,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
}
