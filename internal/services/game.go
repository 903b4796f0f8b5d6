package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
)

const (
	reconcileJournalKey = "reconcile:journal"
	applyAttempts       = 3
	applyTimeout        = 5 * time.Second
	captureTimeout      = 5 * time.Second
)

// GameService is the game session state machine. All writes go through the
// store's seq compare-and-swap; there is no per-game lock.
type GameService struct {
	store      GameStore
	dispatcher *MoveDispatcher
	cache      *GameCache
	events     EventPublisher
	journal    RedisClient
	ttl        TTLPolicy
	now        func() time.Time
	tracer     trace.Tracer

	applyBackoff   time.Duration
	applyTimeout   time.Duration
	captureTimeout time.Duration
}

type GameServiceOptions struct {
	Cache   *GameCache
	Events  EventPublisher
	Journal RedisClient
}

func NewGameService(store GameStore, dispatcher *MoveDispatcher, ttl TTLPolicy, opts GameServiceOptions) *GameService {
	events := opts.Events
	if events == nil {
		events = noopPublisher{}
	}
	return &GameService{
		store:          store,
		dispatcher:     dispatcher,
		cache:          opts.Cache,
		events:         events,
		journal:        opts.Journal,
		ttl:            ttl,
		now:            time.Now,
		tracer:         otel.Tracer("github.com/HammerMeetNail/chessticulate/internal/services"),
		applyBackoff:   50 * time.Millisecond,
		applyTimeout:   applyTimeout,
		captureTimeout: captureTimeout,
	}
}

// Get serves from the cache when the cached copy is at the persisted version.
func (s *GameService) Get(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	if s.cache != nil {
		seq, status, err := s.store.ProbeVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		if g, ok := s.cache.Lookup(id, seq, status); ok {
			return g, nil
		}
	}

	g, err := s.store.ReadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Store(g)
	return g, nil
}

func (s *GameService) List(ctx context.Context, params models.GameListParams) ([]models.Game, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, validationErrorf("unknown game status %q", *params.Status)
	}
	return s.store.ListGames(ctx, params)
}

func (s *GameService) ListMoves(ctx context.Context, params models.MoveListParams) ([]models.Move, error) {
	return s.store.ListMoves(ctx, params)
}

// History returns every move of a game in seq order.
func (s *GameService) History(ctx context.Context, gameID uuid.UUID, page models.Page) ([]models.Move, error) {
	if _, _, err := s.store.ProbeVersion(ctx, gameID); err != nil {
		return nil, err
	}
	return s.store.ListMoves(ctx, models.MoveListParams{GameID: &gameID, Page: page})
}

// SubmitMove validates, asks the worker for a verdict, and applies it with a
// compare-and-swap on expectedSeq. The game is unchanged on every error path
// except ErrFatalInconsistency.
func (s *GameService) SubmitMove(ctx context.Context, gameID, actingUserID uuid.UUID, move string, expectedSeq int) (*models.Game, error) {
	ctx, span := s.tracer.Start(ctx, "GameService.SubmitMove", trace.WithAttributes(
		attribute.String("game.id", gameID.String()),
		attribute.Int("game.expected_seq", expectedSeq),
	))
	defer span.End()

	move, err := ValidateMoveNotation(move)
	if err != nil {
		return nil, err
	}

	game, err := s.store.ReadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.dispatcher.Submit(ctx, game, move, actingUserID, expectedSeq)
	if err != nil {
		if KindOf(err) == KindTransient {
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	write := MoveWrite{
		GameID:      gameID,
		ExpectedSeq: expectedSeq,
		PlayerID:    actingUserID,
		Notation:    verdict.Move,
		FEN:         verdict.FEN,
		States:      verdict.States,
		Status:      verdict.Status,
	}

	// The worker has accepted. From here the write must not be abandoned because
	// the caller went away.
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.applyTimeout*applyAttempts)
	defer cancel()

	updated, applied, err := s.apply(applyCtx, write)
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleSequence), errors.Is(err, ErrGameAlreadyOver), errors.Is(err, ErrNotFound):
		s.cache.Invalidate(gameID)
		return nil, err
	default:
		span.SetStatus(codes.Error, "fatal inconsistency")
		return nil, s.escalate(ctx, write, err)
	}

	s.cache.Store(updated)
	s.events.Publish(ctx, gameEvent(models.EventMoveApplied, updated, applied))
	if updated.Status.Terminal() {
		s.events.Publish(ctx, gameEvent(models.EventGameEnded, updated, applied))
	}

	logging.Info("Move applied", map[string]interface{}{
		"game_id": gameID.String(),
		"seq":     updated.Seq,
		"move":    applied.Notation,
		"status":  string(updated.Status),
	})
	return updated, nil
}

// apply retries transient write failures. Conflicts are final, except that a
// conflict after an unknown failure may be this write having committed.
func (s *GameService) apply(ctx context.Context, w MoveWrite) (*models.Game, *models.Move, error) {
	ctx, span := s.tracer.Start(ctx, "GameService.apply")
	defer span.End()

	type result struct {
		game *models.Game
		move *models.Move
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.applyBackoff

	uncertain := false
	res, err := backoff.Retry(ctx, func() (result, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.applyTimeout)
		defer cancel()

		g, m, err := s.store.ApplyMove(attemptCtx, w)
		if err == nil {
			return result{game: g, move: m}, nil
		}
		if uncertain && errors.Is(err, ErrStaleSequence) {
			if g, m, ok := s.confirmApplied(attemptCtx, w); ok {
				return result{game: g, move: m}, nil
			}
		}
		if KindOf(err) != KindUnknown {
			return result{}, backoff.Permanent(err)
		}
		uncertain = true
		return result{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(applyAttempts))
	return res.game, res.move, err
}

// confirmApplied reports whether the move at ExpectedSeq+1 is exactly w.
func (s *GameService) confirmApplied(ctx context.Context, w MoveWrite) (*models.Game, *models.Move, bool) {
	m, err := s.store.MoveAt(ctx, w.GameID, w.ExpectedSeq+1)
	if err != nil || m.PlayerID != w.PlayerID || m.Notation != w.Notation {
		return nil, nil, false
	}
	g, err := s.store.ReadGame(ctx, w.GameID)
	if err != nil {
		return nil, nil, false
	}
	logging.Warn("Move write reported failure but had committed", map[string]interface{}{
		"game_id": w.GameID.String(),
		"seq":     m.Seq,
		"move":    m.Notation,
	})
	return g, m, true
}

// escalate records an accepted-but-unwritten verdict for the reconciler. The
// table is tried first, then the redis journal. The incident is always logged.
// Each capture step gets its own deadline, since the apply budget is usually
// spent by the time we get here.
func (s *GameService) escalate(ctx context.Context, w MoveWrite, cause error) error {
	ctx = context.WithoutCancel(ctx)
	rec := &models.MoveInconsistency{
		GameID:        w.GameID,
		ExpectedSeq:   w.ExpectedSeq,
		PlayerID:      w.PlayerID,
		Notation:      w.Notation,
		VerdictFEN:    w.FEN,
		VerdictStates: w.States,
		VerdictStatus: w.Status,
		WriteError:    cause.Error(),
		CreatedAt:     s.now(),
	}

	fields := map[string]interface{}{
		"game_id":        w.GameID.String(),
		"expected_seq":   w.ExpectedSeq,
		"player_id":      w.PlayerID.String(),
		"move":           w.Notation,
		"verdict_fen":    w.FEN,
		"verdict_status": string(w.Status),
		"error":          cause.Error(),
	}

	captured := "table"
	if err := s.capture(ctx, func(c context.Context) error { return s.store.RecordInconsistency(c, rec) }); err != nil {
		fields["record_error"] = err.Error()
		captured = "journal"
		if jerr := s.capture(ctx, func(c context.Context) error { return s.pushJournal(c, rec) }); jerr != nil {
			fields["journal_error"] = jerr.Error()
			captured = "log"
		}
	}
	fields["captured_in"] = captured

	logging.Default.WithContext(ctx).Critical("Worker accepted a move that could not be recorded", fields)
	s.cache.Invalidate(w.GameID)
	return fmt.Errorf("%w: %w", ErrFatalInconsistency, cause)
}

func (s *GameService) capture(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()
	return fn(c)
}

func (s *GameService) pushJournal(ctx context.Context, rec *models.MoveInconsistency) error {
	if s.journal == nil {
		return errors.New("no reconciliation journal configured")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	return s.journal.LPush(ctx, reconcileJournalKey, string(data))
}

// Resign ends the game with the opponent as winner.
func (s *GameService) Resign(ctx context.Context, gameID, actingUserID uuid.UUID) (*models.Game, error) {
	game, err := s.store.ReadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !game.IsParticipant(actingUserID) {
		return nil, fmt.Errorf("%w: user %s is not a player in game %s", ErrForbidden, actingUserID, gameID)
	}
	if game.Status.Terminal() {
		return nil, fmt.Errorf("%w: game is %s", ErrGameAlreadyOver, game.Status)
	}

	winner := game.Opponent(actingUserID)
	return s.terminate(ctx, Termination{
		GameID:   gameID,
		Status:   models.GameResigned,
		WinnerID: &winner,
		Reason:   "resignation",
	})
}

// Abort is the administrative recovery path. It records no result.
func (s *GameService) Abort(ctx context.Context, gameID uuid.UUID, reason string) (*models.Game, error) {
	if reason == "" {
		return nil, validationErrorf("abort reason is required")
	}
	g, err := s.terminate(ctx, Termination{GameID: gameID, Status: models.GameAborted, Reason: reason})
	if err != nil {
		return nil, err
	}
	logging.Warn("Game aborted", map[string]interface{}{
		"game_id": gameID.String(),
		"seq":     g.Seq,
		"reason":  reason,
	})
	return g, nil
}

func (s *GameService) terminate(ctx context.Context, t Termination) (*models.Game, error) {
	g, err := s.store.Terminate(ctx, t)
	s.cache.Invalidate(t.GameID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, gameEvent(models.EventGameEnded, g, nil))
	return g, nil
}

// SweepExpired expires active games whose last move is older than the move timeout.
// Safe to run concurrently with moves and with itself.
func (s *GameService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.SweepExpired(ctx, s.ttl.GameCutoff(s.now()))
	if err != nil {
		return 0, err
	}
	for i := range expired {
		g := &expired[i]
		s.cache.Invalidate(g.ID)
		s.events.Publish(ctx, gameEvent(models.EventGameEnded, g, nil))
	}
	if len(expired) > 0 {
		logging.Info("Expired idle games", map[string]interface{}{"count": len(expired)})
	}
	return len(expired), nil
}

// Suggest asks the worker for a move. It never changes state.
func (s *GameService) Suggest(ctx context.Context, gameID, actingUserID uuid.UUID) (string, error) {
	game, err := s.store.ReadGame(ctx, gameID)
	if err != nil {
		return "", err
	}
	return s.dispatcher.Suggest(ctx, game, actingUserID)
}
