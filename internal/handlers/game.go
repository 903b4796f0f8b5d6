package handlers

import (
	"net/http"
	"strings"

	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type GameHandler struct {
	games services.GameServiceInterface
}

func NewGameHandler(games services.GameServiceInterface) *GameHandler {
	return &GameHandler{games: games}
}

type SubmitMoveRequest struct {
	Move        string `json:"move"`
	ExpectedSeq *int   `json:"expected_seq"`
}

type GamesResponse struct {
	Games []models.Game `json:"games"`
}

type MovesResponse struct {
	Moves []models.Move `json:"moves"`
}

type SuggestionResponse struct {
	Move string `json:"move"`
}

func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	player, err := queryUUID(r, "player")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	winner, err := queryUUID(r, "winner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := models.GameListParams{PlayerID: player, WinnerID: winner, Page: page}
	if v := r.URL.Query().Get("status"); v != "" {
		status := models.GameStatus(v)
		params.Status = &status
	}

	games, err := h.games.List(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GamesResponse{Games: games})
}

func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	game, err := h.games.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// SubmitMove applies one move. expected_seq is the seq the client last saw;
// a 409 STALE_SEQUENCE means the client must refetch before retrying.
func (h *GameHandler) SubmitMove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	var req SubmitMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Move) == "" || req.ExpectedSeq == nil {
		writeError(w, http.StatusBadRequest, "move and expected_seq are required")
		return
	}

	game, err := h.games.SubmitMove(r.Context(), id, userID, req.Move, *req.ExpectedSeq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// Moves returns a game's history in seq order.
func (h *GameHandler) Moves(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	moves, err := h.games.History(r.Context(), id, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MovesResponse{Moves: moves})
}

// ListMoves searches moves across games by game_id and player.
func (h *GameHandler) ListMoves(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	gameID, err := queryUUID(r, "game_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	player, err := queryUUID(r, "player")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	moves, err := h.games.ListMoves(r.Context(), models.MoveListParams{GameID: gameID, PlayerID: player, Page: page})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MovesResponse{Moves: moves})
}

func (h *GameHandler) Resign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	game, err := h.games.Resign(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *GameHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return
	}
	move, err := h.games.Suggest(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionResponse{Move: move})
}
