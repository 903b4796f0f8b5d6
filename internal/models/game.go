package models

import (
	"time"

	"github.com/google/uuid"
)

// StartFEN is the standard initial chess position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

type GameStatus string

const (
	GameActive   GameStatus = "active"
	GameWhiteWin GameStatus = "white_win"
	GameBlackWin GameStatus = "black_win"
	GameDraw     GameStatus = "draw"
	GameResigned GameStatus = "resigned"
	GameAborted  GameStatus = "aborted"
	GameExpired  GameStatus = "expired"
)

func (s GameStatus) Terminal() bool {
	return s != GameActive
}

func (s GameStatus) Valid() bool {
	switch s {
	case GameActive, GameWhiteWin, GameBlackWin, GameDraw, GameResigned, GameAborted, GameExpired:
		return true
	}
	return false
}

type Game struct {
	ID           uuid.UUID  `json:"id"`
	InvitationID *uuid.UUID `json:"invitation_id,omitempty"`
	GameType     string     `json:"game_type"`
	WhiteID      uuid.UUID  `json:"white_id"`
	BlackID      uuid.UUID  `json:"black_id"`
	Status       GameStatus `json:"status"`
	Turn         Color      `json:"turn"`
	Seq          int        `json:"seq"`
	FEN          string     `json:"fen"`
	States       string     `json:"states"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty"`
	EndReason    *string    `json:"end_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastMoveAt   time.Time  `json:"last_move_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// ColorOf returns the color played by userID, or false if they are not a participant.
func (g *Game) ColorOf(userID uuid.UUID) (Color, bool) {
	switch userID {
	case g.WhiteID:
		return White, true
	case g.BlackID:
		return Black, true
	}
	return "", false
}

func (g *Game) IsParticipant(userID uuid.UUID) bool {
	_, ok := g.ColorOf(userID)
	return ok
}

// PlayerToMove is the user whose color matches the current turn.
func (g *Game) PlayerToMove() uuid.UUID {
	if g.Turn == White {
		return g.WhiteID
	}
	return g.BlackID
}

func (g *Game) Opponent(userID uuid.UUID) uuid.UUID {
	if userID == g.WhiteID {
		return g.BlackID
	}
	return g.WhiteID
}

type Move struct {
	GameID      uuid.UUID  `json:"game_id"`
	Seq         int        `json:"seq"`
	PlayerID    uuid.UUID  `json:"player_id"`
	Notation    string     `json:"move"`
	FENAfter    string     `json:"fen"`
	StatesAfter string     `json:"-"`
	StatusAfter GameStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

type GameListParams struct {
	PlayerID *uuid.UUID
	Status   *GameStatus
	WinnerID *uuid.UUID
	Page     Page
}

type MoveListParams struct {
	GameID   *uuid.UUID
	PlayerID *uuid.UUID
	Page     Page
}
