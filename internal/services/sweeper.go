package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
)

const sweepLeaderKey = "sweep:leader"

type expirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type reconcileRunner interface {
	Run(ctx context.Context) (ReconcileReport, error)
}

type SweepReport struct {
	ExpiredInvitations int             `json:"expired_invitations"`
	ExpiredGames       int             `json:"expired_games"`
	Reconcile          ReconcileReport `json:"reconcile"`
}

// Sweeper runs the periodic maintenance passes. Every pass is idempotent, so
// the leader guard only avoids duplicate work across instances.
type Sweeper struct {
	invitations expirySweeper
	games       expirySweeper
	reconciler  reconcileRunner
	leader      RedisClient
	interval    time.Duration
	instanceID  string

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
}

func NewSweeper(invitations, games expirySweeper, reconciler reconcileRunner, leader RedisClient, interval time.Duration) *Sweeper {
	return &Sweeper{
		invitations: invitations,
		games:       games,
		reconciler:  reconciler,
		leader:      leader,
		interval:    interval,
		instanceID:  uuid.NewString(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// RunOnce runs every pass once and reports the first error after attempting all of them.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	var errs []error

	n, err := s.invitations.SweepExpired(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep invitations: %w", err))
	}
	report.ExpiredInvitations = n

	n, err = s.games.SweepExpired(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep games: %w", err))
	}
	report.ExpiredGames = n

	if s.reconciler != nil {
		rep, err := s.reconciler.Run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile: %w", err))
		}
		report.Reconcile = rep
	}

	return report, errors.Join(errs...)
}

// Tick runs one pass if this instance holds the leader guard. Redis being
// unreachable does not block the pass.
func (s *Sweeper) Tick(ctx context.Context) {
	if s.leader != nil {
		ok, err := s.leader.SetNX(ctx, sweepLeaderKey, s.instanceID, s.interval)
		if err != nil {
			logging.Warn("Sweep leader check failed, sweeping anyway", map[string]interface{}{"error": err.Error()})
		} else if !ok {
			return
		}
	}

	report, err := s.RunOnce(ctx)
	if err != nil {
		logging.Error("Sweep pass failed", map[string]interface{}{"error": err.Error()})
	}
	if report.ExpiredInvitations > 0 || report.ExpiredGames > 0 {
		logging.Info("Sweep pass complete", map[string]interface{}{
			"expired_invitations": report.ExpiredInvitations,
			"expired_games":       report.ExpiredGames,
		})
	}
}

// Start runs Tick every interval until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-progress pass to finish.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}
