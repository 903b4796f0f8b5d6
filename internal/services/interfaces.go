package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

// UserServiceInterface defines the contract for user operations.
type UserServiceInterface interface {
	Create(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	List(ctx context.Context, params models.UserListParams) ([]models.User, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// AuthServiceInterface defines the contract for authentication operations.
type AuthServiceInterface interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash, password string) bool
	IssueToken(userID uuid.UUID) (string, time.Time, error)
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
	RevokeToken(ctx context.Context, claims *TokenClaims) error
	Authenticate(ctx context.Context, users UserServiceInterface, login, password string) (string, time.Time, error)
}

// InvitationServiceInterface defines the invitation lifecycle used by handlers.
type InvitationServiceInterface interface {
	Create(ctx context.Context, inviterID, inviteeID uuid.UUID) (*models.Invitation, error)
	Get(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error)
	List(ctx context.Context, params models.InvitationListParams) ([]models.Invitation, error)
	Accept(ctx context.Context, id, actingUserID uuid.UUID) (*models.Game, error)
	Decline(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error)
	Cancel(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error)
	SweepExpired(ctx context.Context) (int, error)
}

// GameServiceInterface defines the game session operations used by handlers.
type GameServiceInterface interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Game, error)
	List(ctx context.Context, params models.GameListParams) ([]models.Game, error)
	ListMoves(ctx context.Context, params models.MoveListParams) ([]models.Move, error)
	History(ctx context.Context, gameID uuid.UUID, page models.Page) ([]models.Move, error)
	SubmitMove(ctx context.Context, gameID, actingUserID uuid.UUID, move string, expectedSeq int) (*models.Game, error)
	Resign(ctx context.Context, gameID, actingUserID uuid.UUID) (*models.Game, error)
	Abort(ctx context.Context, gameID uuid.UUID, reason string) (*models.Game, error)
	Suggest(ctx context.Context, gameID, actingUserID uuid.UUID) (string, error)
	SweepExpired(ctx context.Context) (int, error)
}

var (
	_ UserServiceInterface       = (*UserService)(nil)
	_ AuthServiceInterface       = (*AuthService)(nil)
	_ InvitationServiceInterface = (*InvitationService)(nil)
	_ GameServiceInterface       = (*GameService)(nil)
	_ GameStore                  = (*GameRepository)(nil)
	_ EventPublisher             = (*Notifier)(nil)
	_ EventSink                  = (*EmailSink)(nil)
)
