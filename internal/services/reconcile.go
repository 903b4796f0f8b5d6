package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
)

const reconcileBatchSize = 100

type ReconcileReport struct {
	Drained        int `json:"drained"`
	Applied        int `json:"applied"`
	AlreadyApplied int `json:"already_applied"`
	Superseded     int `json:"superseded"`
	Failed         int `json:"failed"`
}

// Reconciler repairs verdicts the worker accepted but the game store never recorded.
type Reconciler struct {
	store   GameStore
	journal RedisClient
	cache   *GameCache
	events  EventPublisher
}

func NewReconciler(store GameStore, journal RedisClient, cache *GameCache, events EventPublisher) *Reconciler {
	if events == nil {
		events = noopPublisher{}
	}
	return &Reconciler{store: store, journal: journal, cache: cache, events: events}
}

// Run drains the fallback journal into the store, then resolves every open record.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	drained, err := r.drainJournal(ctx)
	report.Drained = drained
	if err != nil {
		logging.Warn("Reconciliation journal drain stopped", map[string]interface{}{"error": err.Error()})
	}

	open, err := r.store.OpenInconsistencies(ctx, reconcileBatchSize)
	if err != nil {
		return report, fmt.Errorf("load open inconsistencies: %w", err)
	}

	for i := range open {
		rec := &open[i]
		resolution, err := r.resolve(ctx, rec)
		if err != nil {
			report.Failed++
			logging.Error("Failed to reconcile move", map[string]interface{}{
				"inconsistency_id": rec.ID.String(),
				"game_id":          rec.GameID.String(),
				"error":            err.Error(),
			})
			continue
		}
		switch resolution {
		case models.ResolutionApplied:
			report.Applied++
		case models.ResolutionAlreadyApplied:
			report.AlreadyApplied++
		case models.ResolutionSuperseded:
			report.Superseded++
		}
	}

	if len(open) > 0 || drained > 0 {
		logging.Info("Reconciliation pass complete", map[string]interface{}{
			"drained":         report.Drained,
			"applied":         report.Applied,
			"already_applied": report.AlreadyApplied,
			"superseded":      report.Superseded,
			"failed":          report.Failed,
		})
	}
	return report, nil
}

func (r *Reconciler) drainJournal(ctx context.Context) (int, error) {
	if r.journal == nil {
		return 0, nil
	}
	drained := 0
	for {
		raw, err := r.journal.RPop(ctx, reconcileJournalKey)
		if errors.Is(err, ErrCacheMiss) {
			return drained, nil
		}
		if err != nil {
			return drained, fmt.Errorf("pop journal entry: %w", err)
		}

		var rec models.MoveInconsistency
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logging.Critical("Unreadable reconciliation journal entry", map[string]interface{}{
				"entry": raw,
				"error": err.Error(),
			})
			continue
		}
		if err := r.store.RecordInconsistency(ctx, &rec); err != nil {
			if perr := r.journal.LPush(ctx, reconcileJournalKey, raw); perr != nil {
				logging.Critical("Lost reconciliation journal entry", map[string]interface{}{
					"entry": raw,
					"error": perr.Error(),
				})
			}
			return drained, err
		}
		drained++
	}
}

func (r *Reconciler) resolve(ctx context.Context, rec *models.MoveInconsistency) (models.Resolution, error) {
	game, err := r.store.ReadGame(ctx, rec.GameID)
	if err != nil {
		return "", err
	}

	resolution := models.ResolutionSuperseded
	if game.Status == models.GameActive && game.Seq == rec.ExpectedSeq {
		updated, move, err := r.store.ApplyMove(ctx, MoveWrite{
			GameID:      rec.GameID,
			ExpectedSeq: rec.ExpectedSeq,
			PlayerID:    rec.PlayerID,
			Notation:    rec.Notation,
			FEN:         rec.VerdictFEN,
			States:      rec.VerdictStates,
			Status:      rec.VerdictStatus,
		})
		switch {
		case err == nil:
			resolution = models.ResolutionApplied
			r.cache.Invalidate(rec.GameID)
			r.events.Publish(ctx, gameEvent(models.EventMoveApplied, updated, move))
			if updated.Status.Terminal() {
				r.events.Publish(ctx, gameEvent(models.EventGameEnded, updated, move))
			}
		case KindOf(err) == KindUnknown:
			return "", err
		}
	}

	if resolution != models.ResolutionApplied {
		move, err := r.store.MoveAt(ctx, rec.GameID, rec.ExpectedSeq+1)
		switch {
		case err == nil && move.Notation == rec.Notation && move.PlayerID == rec.PlayerID:
			resolution = models.ResolutionAlreadyApplied
		case err != nil && !errors.Is(err, ErrNotFound):
			return "", err
		}
	}

	if err := r.store.ResolveInconsistency(ctx, rec.ID, resolution); err != nil && !errors.Is(err, ErrAlreadyResolved) {
		return "", err
	}

	fields := map[string]interface{}{
		"inconsistency_id": rec.ID.String(),
		"game_id":          rec.GameID.String(),
		"expected_seq":     rec.ExpectedSeq,
		"move":             rec.Notation,
		"resolution":       string(resolution),
	}
	if resolution == models.ResolutionSuperseded {
		logging.Warn("Accepted move superseded before it could be recorded", fields)
	} else {
		logging.Info("Reconciled move", fields)
	}
	return resolution, nil
}
