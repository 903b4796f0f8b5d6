package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type mockUserService struct {
	CreateFunc     func(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByIDFunc    func(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByLoginFunc func(ctx context.Context, login string) (*models.User, error)
	ListFunc       func(ctx context.Context, params models.UserListParams) ([]models.User, error)
	SoftDeleteFunc func(ctx context.Context, id uuid.UUID) error
}

func (m *mockUserService) Create(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &models.User{ID: uuid.New(), Name: params.Name, Email: params.Email}, nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, services.ErrNotFound
}

func (m *mockUserService) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	if m.GetByLoginFunc != nil {
		return m.GetByLoginFunc(ctx, login)
	}
	return nil, services.ErrNotFound
}

func (m *mockUserService) List(ctx context.Context, params models.UserListParams) ([]models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, params)
	}
	return []models.User{}, nil
}

func (m *mockUserService) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, id)
	}
	return nil
}

type mockAuthService struct {
	IssueTokenFunc    func(userID uuid.UUID) (string, time.Time, error)
	ValidateTokenFunc func(ctx context.Context, token string) (*services.TokenClaims, error)
	RevokeTokenFunc   func(ctx context.Context, claims *services.TokenClaims) error
	AuthenticateFunc  func(ctx context.Context, users services.UserServiceInterface, login, password string) (string, time.Time, error)
}

func (m *mockAuthService) HashPassword(password string) (string, error) {
	return "hashed_" + password, nil
}

func (m *mockAuthService) VerifyPassword(hash, password string) bool {
	return hash == "hashed_"+password
}

func (m *mockAuthService) IssueToken(userID uuid.UUID) (string, time.Time, error) {
	if m.IssueTokenFunc != nil {
		return m.IssueTokenFunc(userID)
	}
	return "token-" + userID.String(), time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), nil
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*services.TokenClaims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return nil, services.ErrTokenInvalid
}

func (m *mockAuthService) RevokeToken(ctx context.Context, claims *services.TokenClaims) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, claims)
	}
	return nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, users services.UserServiceInterface, login, password string) (string, time.Time, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, users, login, password)
	}
	return "", time.Time{}, services.ErrInvalidCredentials
}

type mockInvitationService struct {
	CreateFunc  func(ctx context.Context, inviterID, inviteeID uuid.UUID) (*models.Invitation, error)
	GetFunc     func(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error)
	ListFunc    func(ctx context.Context, params models.InvitationListParams) ([]models.Invitation, error)
	AcceptFunc  func(ctx context.Context, id, actingUserID uuid.UUID) (*models.Game, error)
	DeclineFunc func(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error)
	CancelFunc  func(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error)
}

func (m *mockInvitationService) Create(ctx context.Context, inviterID, inviteeID uuid.UUID) (*models.Invitation, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, inviterID, inviteeID)
	}
	return nil, nil
}

func (m *mockInvitationService) Get(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id, actingUserID)
	}
	return nil, services.ErrNotFound
}

func (m *mockInvitationService) List(ctx context.Context, params models.InvitationListParams) ([]models.Invitation, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, params)
	}
	return []models.Invitation{}, nil
}

func (m *mockInvitationService) Accept(ctx context.Context, id, actingUserID uuid.UUID) (*models.Game, error) {
	if m.AcceptFunc != nil {
		return m.AcceptFunc(ctx, id, actingUserID)
	}
	return nil, nil
}

func (m *mockInvitationService) Decline(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error) {
	if m.DeclineFunc != nil {
		return m.DeclineFunc(ctx, id, actingUserID)
	}
	return nil, nil
}

func (m *mockInvitationService) Cancel(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, actingUserID)
	}
	return nil, nil
}

func (m *mockInvitationService) SweepExpired(ctx context.Context) (int, error) {
	return 0, nil
}

type mockGameService struct {
	GetFunc        func(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListFunc       func(ctx context.Context, params models.GameListParams) ([]models.Game, error)
	ListMovesFunc  func(ctx context.Context, params models.MoveListParams) ([]models.Move, error)
	HistoryFunc    func(ctx context.Context, gameID uuid.UUID, page models.Page) ([]models.Move, error)
	SubmitMoveFunc func(ctx context.Context, gameID, actingUserID uuid.UUID, move string, expectedSeq int) (*models.Game, error)
	ResignFunc     func(ctx context.Context, gameID, actingUserID uuid.UUID) (*models.Game, error)
	SuggestFunc    func(ctx context.Context, gameID, actingUserID uuid.UUID) (string, error)
}

func (m *mockGameService) Get(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, services.ErrNotFound
}

func (m *mockGameService) List(ctx context.Context, params models.GameListParams) ([]models.Game, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, params)
	}
	return []models.Game{}, nil
}

func (m *mockGameService) ListMoves(ctx context.Context, params models.MoveListParams) ([]models.Move, error) {
	if m.ListMovesFunc != nil {
		return m.ListMovesFunc(ctx, params)
	}
	return []models.Move{}, nil
}

func (m *mockGameService) History(ctx context.Context, gameID uuid.UUID, page models.Page) ([]models.Move, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, gameID, page)
	}
	return []models.Move{}, nil
}

func (m *mockGameService) SubmitMove(ctx context.Context, gameID, actingUserID uuid.UUID, move string, expectedSeq int) (*models.Game, error) {
	if m.SubmitMoveFunc != nil {
		return m.SubmitMoveFunc(ctx, gameID, actingUserID, move, expectedSeq)
	}
	return nil, nil
}

func (m *mockGameService) Resign(ctx context.Context, gameID, actingUserID uuid.UUID) (*models.Game, error) {
	if m.ResignFunc != nil {
		return m.ResignFunc(ctx, gameID, actingUserID)
	}
	return nil, nil
}

func (m *mockGameService) Abort(ctx context.Context, gameID uuid.UUID, reason string) (*models.Game, error) {
	return nil, nil
}

func (m *mockGameService) Suggest(ctx context.Context, gameID, actingUserID uuid.UUID) (string, error) {
	if m.SuggestFunc != nil {
		return m.SuggestFunc(ctx, gameID, actingUserID)
	}
	return "", nil
}

func (m *mockGameService) SweepExpired(ctx context.Context) (int, error) {
	return 0, nil
}

var (
	_ services.UserServiceInterface       = (*mockUserService)(nil)
	_ services.AuthServiceInterface       = (*mockAuthService)(nil)
	_ services.InvitationServiceInterface = (*mockInvitationService)(nil)
	_ services.GameServiceInterface       = (*mockGameService)(nil)
)
