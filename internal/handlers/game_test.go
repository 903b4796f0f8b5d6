package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
	"github.com/HammerMeetNail/chessticulate/internal/testutil"
)

func TestGameHandler_SubmitMove(t *testing.T) {
	gameID, player := uuid.New(), uuid.New()
	var gotMove string
	var gotSeq int
	svc := &mockGameService{
		SubmitMoveFunc: func(ctx context.Context, id, actingUserID uuid.UUID, move string, expectedSeq int) (*models.Game, error) {
			gotMove, gotSeq = move, expectedSeq
			return &models.Game{ID: id, Seq: expectedSeq + 1, Turn: models.Black, Status: models.GameActive}, nil
		},
	}
	handler := NewGameHandler(svc)

	req := asUser(testutil.NewTestRequest(http.MethodPost, "/api/games/"+gameID.String()+"/moves",
		strings.NewReader(`{"move":"e4","expected_seq":0}`)), player)
	rr := testutil.Serve("POST /api/games/{id}/moves", handler.SubmitMove, req)

	testutil.AssertStatusCode(t, rr, http.StatusOK)
	game := testutil.DecodeJSON[models.Game](t, rr)
	if game.Seq != 1 || game.Turn != models.Black {
		t.Errorf("unexpected game %+v", game)
	}
	if gotMove != "e4" || gotSeq != 0 {
		t.Errorf("service got move=%q seq=%d", gotMove, gotSeq)
	}
}

func TestGameHandler_SubmitMove_RequiresExpectedSeq(t *testing.T) {
	handler := NewGameHandler(&mockGameService{})
	for _, body := range []string{`{"move":"e4"}`, `{"expected_seq":3}`, `{"move":"  ","expected_seq":3}`, `not json`} {
		req := asUser(testutil.NewTestRequest(http.MethodPost, "/api/games/"+uuid.NewString()+"/moves", strings.NewReader(body)), uuid.New())
		rr := testutil.Serve("POST /api/games/{id}/moves", handler.SubmitMove, req)
		assertErrorResponse(t, rr, http.StatusBadRequest, "")
	}
}

func TestGameHandler_SubmitMove_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: expected 3, at 4", services.ErrStaleSequence), http.StatusConflict, "STALE_SEQUENCE"},
		{services.ErrNotYourTurn, http.StatusBadRequest, "NOT_YOUR_TURN"},
		{fmt.Errorf("%w: e9", services.ErrIllegalMove), http.StatusBadRequest, "ILLEGAL_MOVE"},
		{services.ErrGameAlreadyOver, http.StatusBadRequest, "GAME_ALREADY_OVER"},
		{services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{services.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("%w: %w", services.ErrWorkerUnavailable, errors.New("timeout")), http.StatusServiceUnavailable, "WORKER_UNAVAILABLE"},
		{fmt.Errorf("%w: %w", services.ErrFatalInconsistency, errors.New("conn reset")), http.StatusInternalServerError, "FATAL_INCONSISTENCY"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &mockGameService{
				SubmitMoveFunc: func(ctx context.Context, id, actingUserID uuid.UUID, move string, expectedSeq int) (*models.Game, error) {
					return nil, tt.err
				},
			}
			req := asUser(testutil.NewTestRequest(http.MethodPost, "/api/games/"+uuid.NewString()+"/moves",
				strings.NewReader(`{"move":"e4","expected_seq":3}`)), uuid.New())
			rr := testutil.Serve("POST /api/games/{id}/moves", NewGameHandler(svc).SubmitMove, req)
			assertErrorResponse(t, rr, tt.status, tt.code)
		})
	}
}

func TestGameHandler_List(t *testing.T) {
	player := uuid.New()
	var got models.GameListParams
	svc := &mockGameService{
		ListFunc: func(ctx context.Context, params models.GameListParams) ([]models.Game, error) {
			got = params
			return []models.Game{{ID: uuid.New()}}, nil
		},
	}
	handler := NewGameHandler(svc)

	rr := httptest.NewRecorder()
	handler.List(rr, httptest.NewRequest(http.MethodGet, "/api/games?player="+player.String()+"&status=active&reverse=true", nil))
	testutil.AssertStatusCode(t, rr, http.StatusOK)
	if got.PlayerID == nil || *got.PlayerID != player || got.Status == nil || *got.Status != models.GameActive || !got.Page.Reverse {
		t.Errorf("unexpected params %+v", got)
	}
	if resp := testutil.DecodeJSON[GamesResponse](t, rr); len(resp.Games) != 1 {
		t.Errorf("expected 1 game, got %d", len(resp.Games))
	}

	rr = httptest.NewRecorder()
	handler.List(rr, httptest.NewRequest(http.MethodGet, "/api/games?winner=bad", nil))
	assertErrorResponse(t, rr, http.StatusBadRequest, "")
}

func TestGameHandler_Get(t *testing.T) {
	gameID := uuid.New()
	svc := &mockGameService{
		GetFunc: func(ctx context.Context, id uuid.UUID) (*models.Game, error) {
			if id != gameID {
				return nil, services.ErrNotFound
			}
			return &models.Game{ID: id, FEN: models.StartFEN}, nil
		},
	}
	handler := NewGameHandler(svc)

	rr := testutil.Serve("GET /api/games/{id}", handler.Get, httptest.NewRequest(http.MethodGet, "/api/games/"+gameID.String(), nil))
	testutil.AssertStatusCode(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr.Body.Bytes(), "fen", models.StartFEN)

	rr = testutil.Serve("GET /api/games/{id}", handler.Get, httptest.NewRequest(http.MethodGet, "/api/games/"+uuid.NewString(), nil))
	assertErrorResponse(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestGameHandler_Moves(t *testing.T) {
	gameID := uuid.New()
	var gotPage models.Page
	svc := &mockGameService{
		HistoryFunc: func(ctx context.Context, id uuid.UUID, page models.Page) ([]models.Move, error) {
			gotPage = page
			return []models.Move{{GameID: id, Seq: 1, Notation: "e4"}, {GameID: id, Seq: 2, Notation: "e5"}}, nil
		},
	}
	handler := NewGameHandler(svc)

	rr := testutil.Serve("GET /api/games/{id}/moves", handler.Moves,
		httptest.NewRequest(http.MethodGet, "/api/games/"+gameID.String()+"/moves?limit=2", nil))
	testutil.AssertStatusCode(t, rr, http.StatusOK)
	resp := testutil.DecodeJSON[MovesResponse](t, rr)
	if len(resp.Moves) != 2 || resp.Moves[0].Notation != "e4" {
		t.Errorf("unexpected moves %+v", resp.Moves)
	}
	if gotPage.Limit != 2 {
		t.Errorf("limit = %d", gotPage.Limit)
	}
}

func TestGameHandler_ListMoves(t *testing.T) {
	player := uuid.New()
	var got models.MoveListParams
	svc := &mockGameService{
		ListMovesFunc: func(ctx context.Context, params models.MoveListParams) ([]models.Move, error) {
			got = params
			return []models.Move{}, nil
		},
	}
	rr := httptest.NewRecorder()
	NewGameHandler(svc).ListMoves(rr, httptest.NewRequest(http.MethodGet, "/api/moves?player="+player.String(), nil))
	testutil.AssertStatusCode(t, rr, http.StatusOK)
	if got.PlayerID == nil || *got.PlayerID != player || got.GameID != nil {
		t.Errorf("unexpected params %+v", got)
	}
}

func TestGameHandler_Resign(t *testing.T) {
	player := uuid.New()
	svc := &mockGameService{
		ResignFunc: func(ctx context.Context, id, actingUserID uuid.UUID) (*models.Game, error) {
			winner := uuid.New()
			return &models.Game{ID: id, Status: models.GameResigned, WinnerID: &winner}, nil
		},
	}
	rr := testutil.Serve("POST /api/games/{id}/resign", NewGameHandler(svc).Resign,
		asUser(httptest.NewRequest(http.MethodPost, "/api/games/"+uuid.NewString()+"/resign", nil), player))
	testutil.AssertStatusCode(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr.Body.Bytes(), "status", "resigned")
}

func TestGameHandler_Suggest(t *testing.T) {
	svc := &mockGameService{
		SuggestFunc: func(ctx context.Context, id, actingUserID uuid.UUID) (string, error) {
			return "Nf3", nil
		},
	}
	rr := testutil.Serve("POST /api/games/{id}/suggest", NewGameHandler(svc).Suggest,
		asUser(httptest.NewRequest(http.MethodPost, "/api/games/"+uuid.NewString()+"/suggest", nil), uuid.New()))
	testutil.AssertStatusCode(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr.Body.Bytes(), "move", "Nf3")

	rr = testutil.Serve("POST /api/games/{id}/suggest", NewGameHandler(svc).Suggest,
		httptest.NewRequest(http.MethodPost, "/api/games/"+uuid.NewString()+"/suggest", nil))
	assertErrorResponse(t, rr, http.StatusUnauthorized, "")
}
