package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services/worker"
)

const (
	maxMoveNotationLength = 16
	verdictKeyPrefix      = "verdict:"
	verdictCacheTTL       = time.Hour
)

// WorkerClient is the chess compute service.
type WorkerClient interface {
	Move(ctx context.Context, req worker.MoveRequest) (*worker.MoveResponse, error)
	Suggest(ctx context.Context, req worker.SuggestRequest) (*worker.SuggestResponse, error)
}

type DispatcherConfig struct {
	CallTimeout    time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

type VerdictOutcome string

const (
	VerdictAccepted VerdictOutcome = "accepted"
	VerdictIllegal  VerdictOutcome = "illegal"
)

// Verdict is the worker's ruling on one proposed move, normalized to game terms.
type Verdict struct {
	Outcome        VerdictOutcome    `json:"outcome"`
	Move           string            `json:"move"`
	Mover          models.Color      `json:"mover"`
	FEN            string            `json:"fen,omitempty"`
	States         string            `json:"states,omitempty"`
	Status         models.GameStatus `json:"status,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	Replayed       bool              `json:"-"`
}

type MoveDispatcher struct {
	worker   WorkerClient
	verdicts RedisClient
	cfg      DispatcherConfig
}

// NewMoveDispatcher builds a dispatcher. verdicts may be nil to disable the replay cache.
func NewMoveDispatcher(w WorkerClient, verdicts RedisClient, cfg DispatcherConfig) *MoveDispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &MoveDispatcher{worker: w, verdicts: verdicts, cfg: cfg}
}

// ValidateMoveNotation rejects empty or oversized notation before any state is read.
func ValidateMoveNotation(move string) (string, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return "", validationErrorf("move is required")
	}
	if len(move) > maxMoveNotationLength {
		return "", validationErrorf("move must be at most %d characters", maxMoveNotationLength)
	}
	return move, nil
}

// CheckMovePreconditions enforces the local rules that gate a worker call and
// returns the acting player's color.
func CheckMovePreconditions(game *models.Game, actingUserID uuid.UUID, expectedSeq int) (models.Color, error) {
	if game.Status.Terminal() {
		return "", fmt.Errorf("%w: game is %s", ErrGameAlreadyOver, game.Status)
	}
	color, ok := game.ColorOf(actingUserID)
	if !ok {
		return "", fmt.Errorf("%w: user %s is not a player in game %s", ErrForbidden, actingUserID, game.ID)
	}
	// A stale seq wins over turn order so a client retrying after a lost
	// response is told to refetch.
	if expectedSeq != game.Seq {
		return "", fmt.Errorf("%w: expected %d, current %d", ErrStaleSequence, expectedSeq, game.Seq)
	}
	if color != game.Turn {
		return "", fmt.Errorf("%w: %s to move", ErrNotYourTurn, game.Turn)
	}
	return color, nil
}

// IdempotencyKey identifies one logical submission: a move proposed against a
// game at seq. The move digest keeps two different moves at the same seq from
// sharing a cached verdict.
func IdempotencyKey(gameID uuid.UUID, seq int, move string) string {
	sum := sha256.Sum256([]byte(move))
	return fmt.Sprintf("%s:%d:%s", gameID, seq, hex.EncodeToString(sum[:6]))
}

// Submit validates locally, then asks the worker for a verdict. The game is never modified here.
// Illegal moves return ErrIllegalMove. Exhausted retries return ErrWorkerUnavailable.
func (d *MoveDispatcher) Submit(ctx context.Context, game *models.Game, move string, actingUserID uuid.UUID, expectedSeq int) (*Verdict, error) {
	move, err := ValidateMoveNotation(move)
	if err != nil {
		return nil, err
	}
	mover, err := CheckMovePreconditions(game, actingUserID, expectedSeq)
	if err != nil {
		return nil, err
	}

	key := IdempotencyKey(game.ID, game.Seq, move)
	if cached := d.cachedVerdict(ctx, key); cached != nil {
		logging.Debug("Replaying cached worker verdict", map[string]interface{}{
			"game_id":         game.ID.String(),
			"idempotency_key": key,
		})
		return verdictResult(cached)
	}

	req := worker.MoveRequest{
		GameID:         game.ID,
		Seq:            game.Seq,
		FEN:            game.FEN,
		States:         game.States,
		Move:           move,
		IdempotencyKey: key,
	}

	resp, err := withRetry(ctx, d.cfg, "move", func(callCtx context.Context) (*worker.MoveResponse, error) {
		return d.worker.Move(callCtx, req)
	})
	var verdict *Verdict
	switch {
	case err == nil:
		verdict = &Verdict{
			Outcome:        VerdictAccepted,
			Move:           move,
			Mover:          mover,
			FEN:            resp.FEN,
			States:         resp.States,
			Status:         resultingStatus(resp, mover),
			IdempotencyKey: key,
		}
	case errors.Is(err, worker.ErrIllegalMove):
		verdict = &Verdict{
			Outcome:        VerdictIllegal,
			Move:           move,
			Mover:          mover,
			Reason:         illegalReason(err),
			IdempotencyKey: key,
		}
	default:
		logging.Warn("Worker unavailable after retries", map[string]interface{}{
			"game_id":  game.ID.String(),
			"seq":      game.Seq,
			"attempts": d.cfg.MaxAttempts,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}

	d.storeVerdict(ctx, verdict)
	return verdictResult(verdict)
}

// Suggest asks the worker for a move on the current board. Participants only.
func (d *MoveDispatcher) Suggest(ctx context.Context, game *models.Game, actingUserID uuid.UUID) (string, error) {
	if !game.IsParticipant(actingUserID) {
		return "", fmt.Errorf("%w: user %s is not a player in game %s", ErrForbidden, actingUserID, game.ID)
	}
	if game.Status.Terminal() {
		return "", fmt.Errorf("%w: game is %s", ErrGameAlreadyOver, game.Status)
	}

	resp, err := withRetry(ctx, d.cfg, "suggest", func(callCtx context.Context) (*worker.SuggestResponse, error) {
		return d.worker.Suggest(callCtx, worker.SuggestRequest{FEN: game.FEN, States: game.States})
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}
	return resp.Move, nil
}

// withRetry runs call with a per-attempt timeout and exponential backoff.
// Each attempt runs on a context detached from ctx so a reply already in flight
// is not lost when the caller goes away; ctx cancellation only stops further attempts.
func withRetry[T any](ctx context.Context, cfg DispatcherConfig, op string, call func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.CallTimeout)
		defer cancel()

		res, err := call(callCtx)
		if err != nil && !errors.Is(err, worker.ErrUnavailable) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Info("Retrying worker call", map[string]interface{}{
				"op":      op,
				"attempt": attempt,
				"backoff": next.String(),
				"error":   err.Error(),
			})
		}),
	)
}

func resultingStatus(resp *worker.MoveResponse, mover models.Color) models.GameStatus {
	if resp.Status != worker.StatusGameOver {
		return models.GameActive
	}
	switch strings.ToLower(resp.Result) {
	case worker.ResultStalemate, worker.ResultDraw:
		return models.GameDraw
	}
	if mover == models.White {
		return models.GameWhiteWin
	}
	return models.GameBlackWin
}

func illegalReason(err error) string {
	msg := err.Error()
	prefix := worker.ErrIllegalMove.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return ""
}

func verdictResult(v *Verdict) (*Verdict, error) {
	if v.Outcome == VerdictIllegal {
		if v.Reason == "" {
			return nil, ErrIllegalMove
		}
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, v.Reason)
	}
	return v, nil
}

func (d *MoveDispatcher) cachedVerdict(ctx context.Context, key string) *Verdict {
	if d.verdicts == nil {
		return nil
	}
	raw, err := d.verdicts.Get(ctx, verdictKeyPrefix+key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logging.Warn("Verdict cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	v.Replayed = true
	return &v
}

func (d *MoveDispatcher) storeVerdict(ctx context.Context, v *Verdict) {
	if d.verdicts == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.verdicts.Set(storeCtx, verdictKeyPrefix+v.IdempotencyKey, string(data), verdictCacheTTL); err != nil {
		logging.Warn("Verdict cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
