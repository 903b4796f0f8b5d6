package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

// GameStore is the persistence surface of the game session engine.
type GameStore interface {
	ReadGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ProbeVersion(ctx context.Context, id uuid.UUID) (int, models.GameStatus, error)
	ApplyMove(ctx context.Context, w MoveWrite) (*models.Game, *models.Move, error)
	Terminate(ctx context.Context, t Termination) (*models.Game, error)
	ListGames(ctx context.Context, params models.GameListParams) ([]models.Game, error)
	ListMoves(ctx context.Context, params models.MoveListParams) ([]models.Move, error)
	MoveAt(ctx context.Context, gameID uuid.UUID, seq int) (*models.Move, error)
	SweepExpired(ctx context.Context, cutoff time.Time) ([]models.Game, error)

	RecordInconsistency(ctx context.Context, rec *models.MoveInconsistency) error
	OpenInconsistencies(ctx context.Context, limit int) ([]models.MoveInconsistency, error)
	ResolveInconsistency(ctx context.Context, id uuid.UUID, resolution models.Resolution) error
}

// MoveWrite is an accepted verdict ready to be written against ExpectedSeq.
type MoveWrite struct {
	GameID      uuid.UUID
	ExpectedSeq int
	PlayerID    uuid.UUID
	Notation    string
	FEN         string
	States      string
	Status      models.GameStatus
}

// Termination ends an active game outside the move path.
type Termination struct {
	GameID   uuid.UUID
	Status   models.GameStatus
	WinnerID *uuid.UUID
	Reason   string
}

const gameColumns = `id, invitation_id, game_type, white_id, black_id, status, turn, seq, fen, states,
	winner_id, end_reason, created_at, updated_at, last_move_at, ended_at`

const moveColumns = `game_id, seq, player_id, notation, fen_after, states_after, status_after, created_at`

const inconsistencyColumns = `id, game_id, expected_seq, player_id, notation, verdict_fen, verdict_states,
	verdict_status, write_error, resolution, created_at, resolved_at`

type GameRepository struct {
	db DB
}

func NewGameRepository(db DB) *GameRepository {
	return &GameRepository{db: db}
}

func scanGame(row Row) (*models.Game, error) {
	g := &models.Game{}
	err := row.Scan(&g.ID, &g.InvitationID, &g.GameType, &g.WhiteID, &g.BlackID, &g.Status, &g.Turn, &g.Seq,
		&g.FEN, &g.States, &g.WinnerID, &g.EndReason, &g.CreatedAt, &g.UpdatedAt, &g.LastMoveAt, &g.EndedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func scanMove(row Row) (*models.Move, error) {
	m := &models.Move{}
	err := row.Scan(&m.GameID, &m.Seq, &m.PlayerID, &m.Notation, &m.FENAfter, &m.StatesAfter, &m.StatusAfter, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanInconsistency(row Row) (*models.MoveInconsistency, error) {
	r := &models.MoveInconsistency{}
	err := row.Scan(&r.ID, &r.GameID, &r.ExpectedSeq, &r.PlayerID, &r.Notation, &r.VerdictFEN, &r.VerdictStates,
		&r.VerdictStatus, &r.WriteError, &r.Resolution, &r.CreatedAt, &r.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *GameRepository) ReadGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, err := scanGame(r.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read game: %w", err)
	}
	return g, nil
}

// ProbeVersion reads only the concurrency version of a game.
func (r *GameRepository) ProbeVersion(ctx context.Context, id uuid.UUID) (int, models.GameStatus, error) {
	var seq int
	var status models.GameStatus
	err := r.db.QueryRow(ctx, `SELECT seq, status FROM games WHERE id = $1`, id).Scan(&seq, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("probe game version: %w", err)
	}
	return seq, status, nil
}

// ApplyMove advances the game by one ply if and only if its persisted seq still
// equals w.ExpectedSeq. The game row, the move record and any stats update
// commit together.
func (r *GameRepository) ApplyMove(ctx context.Context, w MoveWrite) (*models.Game, *models.Move, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin move transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	game, err := scanGame(tx.QueryRow(ctx,
		`UPDATE games
		 SET seq = seq + 1,
		     turn = CASE turn WHEN 'white' THEN 'black' ELSE 'white' END,
		     fen = $3,
		     states = $4,
		     status = $5,
		     winner_id = CASE $5 WHEN 'white_win' THEN white_id WHEN 'black_win' THEN black_id ELSE NULL END,
		     end_reason = $6,
		     ended_at = CASE WHEN $5 = 'active' THEN NULL ELSE NOW() END,
		     last_move_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $1 AND seq = $2 AND status = 'active'
		 RETURNING `+gameColumns,
		w.GameID, w.ExpectedSeq, w.FEN, w.States, string(w.Status), endReasonFor(w.Status),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, casFailure(ctx, tx, w.GameID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("update game: %w", err)
	}

	move, err := scanMove(tx.QueryRow(ctx,
		`INSERT INTO moves (game_id, seq, player_id, notation, fen_after, states_after, status_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+moveColumns,
		w.GameID, game.Seq, w.PlayerID, w.Notation, w.FEN, w.States, string(w.Status),
	))
	if isUniqueViolation(err) {
		return nil, nil, fmt.Errorf("%w: move %d already recorded", ErrStaleSequence, game.Seq)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("insert move: %w", err)
	}

	if err := recordResult(ctx, tx, game); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit move: %w", err)
	}
	committed = true

	return game, move, nil
}

// casFailure explains why a guarded game update matched no row.
func casFailure(ctx context.Context, q Querier, gameID uuid.UUID) error {
	var status models.GameStatus
	var seq int
	err := q.QueryRow(ctx, `SELECT status, seq FROM games WHERE id = $1`, gameID).Scan(&status, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load game after conflict: %w", err)
	}
	if status.Terminal() {
		return fmt.Errorf("%w: game is %s", ErrGameAlreadyOver, status)
	}
	return fmt.Errorf("%w: current seq is %d", ErrStaleSequence, seq)
}

func (r *GameRepository) Terminate(ctx context.Context, t Termination) (*models.Game, error) {
	if !t.Status.Terminal() || !t.Status.Valid() {
		return nil, fmt.Errorf("terminate game: %q is not a terminal status", t.Status)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin terminate transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	game, err := scanGame(tx.QueryRow(ctx,
		`UPDATE games
		 SET status = $2, winner_id = $3, end_reason = $4, ended_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'active'
		 RETURNING `+gameColumns,
		t.GameID, string(t.Status), t.WinnerID, t.Reason,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, casFailure(ctx, tx, t.GameID)
	}
	if err != nil {
		return nil, fmt.Errorf("terminate game: %w", err)
	}

	if err := recordResult(ctx, tx, game); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit terminate: %w", err)
	}
	committed = true

	return game, nil
}

// recordResult updates player stats for a game that just ended.
// Expired and aborted games are not counted.
func recordResult(ctx context.Context, q Querier, g *models.Game) error {
	var err error
	switch g.Status {
	case models.GameDraw:
		_, err = q.Exec(ctx,
			`UPDATE users SET draws = draws + 1, updated_at = NOW() WHERE id IN ($1, $2)`,
			g.WhiteID, g.BlackID,
		)
	case models.GameWhiteWin, models.GameBlackWin, models.GameResigned:
		if g.WinnerID == nil {
			return nil
		}
		_, err = q.Exec(ctx,
			`UPDATE users
			 SET wins = wins + CASE WHEN id = $1 THEN 1 ELSE 0 END,
			     losses = losses + CASE WHEN id = $2 THEN 1 ELSE 0 END,
			     updated_at = NOW()
			 WHERE id IN ($1, $2)`,
			*g.WinnerID, g.Opponent(*g.WinnerID),
		)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("update player stats: %w", err)
	}
	return nil
}

func endReasonFor(status models.GameStatus) *string {
	var reason string
	switch status {
	case models.GameWhiteWin, models.GameBlackWin:
		reason = "checkmate"
	case models.GameDraw:
		reason = "draw"
	default:
		return nil
	}
	return &reason
}

// createGame inserts a fresh active game. It runs inside the invitation-accept transaction.
func createGame(ctx context.Context, q Querier, invitationID, whiteID, blackID uuid.UUID) (*models.Game, error) {
	g, err := scanGame(q.QueryRow(ctx,
		`INSERT INTO games (invitation_id, game_type, white_id, black_id, status, turn, seq, fen, states)
		 VALUES ($1, $2, $3, $4, 'active', 'white', 0, $5, '{}')
		 RETURNING `+gameColumns,
		invitationID, models.GameTypeChess, whiteID, blackID, models.StartFEN,
	))
	if err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	return g, nil
}

// filter accumulates WHERE conditions. Each "?" in a condition is bound to the
// value passed with it.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, value any) {
	f.args = append(f.args, value)
	f.conds = append(f.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(f.args))))
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

func (f *filter) window(page models.Page, orderBy ...string) string {
	page = page.Normalize()
	dir := page.Direction()
	order := make([]string, len(orderBy))
	for i, col := range orderBy {
		order[i] = col + " " + dir
	}
	return fmt.Sprintf(" ORDER BY %s LIMIT %d OFFSET %d", strings.Join(order, ", "), page.Limit, page.Skip)
}

func (r *GameRepository) ListGames(ctx context.Context, params models.GameListParams) ([]models.Game, error) {
	var f filter
	if params.PlayerID != nil {
		f.add("(white_id = ? OR black_id = ?)", *params.PlayerID)
	}
	if params.Status != nil {
		f.add("status = ?", string(*params.Status))
	}
	if params.WinnerID != nil {
		f.add("winner_id = ?", *params.WinnerID)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+gameColumns+` FROM games`+f.where()+f.window(params.Page, "created_at", "id"),
		f.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []models.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return games, nil
}

func (r *GameRepository) ListMoves(ctx context.Context, params models.MoveListParams) ([]models.Move, error) {
	var f filter
	if params.GameID != nil {
		f.add("game_id = ?", *params.GameID)
	}
	if params.PlayerID != nil {
		f.add("player_id = ?", *params.PlayerID)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+moveColumns+` FROM moves`+f.where()+f.window(params.Page, "created_at", "seq"),
		f.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	moves := []models.Move{}
	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return moves, nil
}

func (r *GameRepository) MoveAt(ctx context.Context, gameID uuid.UUID, seq int) (*models.Move, error) {
	m, err := scanMove(r.db.QueryRow(ctx,
		`SELECT `+moveColumns+` FROM moves WHERE game_id = $1 AND seq = $2`,
		gameID, seq,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read move: %w", err)
	}
	return m, nil
}

// SweepExpired moves every active game whose last move is at or before cutoff to expired.
func (r *GameRepository) SweepExpired(ctx context.Context, cutoff time.Time) ([]models.Game, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE games
		 SET status = 'expired', end_reason = 'move timeout', ended_at = NOW(), updated_at = NOW()
		 WHERE status = 'active' AND last_move_at <= $1
		 RETURNING `+gameColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("sweep games: %w", err)
	}
	defer rows.Close()

	var expired []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired game: %w", err)
		}
		expired = append(expired, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired games: %w", err)
	}
	return expired, nil
}

// RecordInconsistency stores a captured verdict. Recording the same verdict twice is a no-op.
func (r *GameRepository) RecordInconsistency(ctx context.Context, rec *models.MoveInconsistency) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO move_inconsistencies
		   (game_id, expected_seq, player_id, notation, verdict_fen, verdict_states, verdict_status, write_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (game_id, expected_seq, notation) DO NOTHING`,
		rec.GameID, rec.ExpectedSeq, rec.PlayerID, rec.Notation, rec.VerdictFEN, rec.VerdictStates,
		string(rec.VerdictStatus), rec.WriteError,
	)
	if err != nil {
		return fmt.Errorf("record inconsistency: %w", err)
	}
	return nil
}

func (r *GameRepository) OpenInconsistencies(ctx context.Context, limit int) ([]models.MoveInconsistency, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+inconsistencyColumns+`
		 FROM move_inconsistencies
		 WHERE resolution IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list inconsistencies: %w", err)
	}
	defer rows.Close()

	var open []models.MoveInconsistency
	for rows.Next() {
		rec, err := scanInconsistency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inconsistency: %w", err)
		}
		open = append(open, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inconsistencies: %w", err)
	}
	return open, nil
}

func (r *GameRepository) ResolveInconsistency(ctx context.Context, id uuid.UUID, resolution models.Resolution) error {
	result, err := r.db.Exec(ctx,
		`UPDATE move_inconsistencies
		 SET resolution = $2, resolved_at = NOW()
		 WHERE id = $1 AND resolution IS NULL`,
		id, string(resolution),
	)
	if err != nil {
		return fmt.Errorf("resolve inconsistency: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}
