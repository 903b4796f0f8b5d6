package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
)

const invitationColumns = `id, inviter_id, invitee_id, game_type, status, game_id, created_at, expires_at, resolved_at`

type InvitationService struct {
	db            DB
	ttl           TTLPolicy
	oneActiveGame bool
	events        EventPublisher
	now           func() time.Time
	whiteFirst    func() bool
}

func NewInvitationService(db DB, ttl TTLPolicy, oneActiveGame bool, events EventPublisher) *InvitationService {
	if events == nil {
		events = noopPublisher{}
	}
	return &InvitationService{
		db:            db,
		ttl:           ttl,
		oneActiveGame: oneActiveGame,
		events:        events,
		now:           time.Now,
		whiteFirst:    func() bool { return rand.IntN(2) == 0 },
	}
}

func scanInvitation(row Row) (*models.Invitation, error) {
	inv := &models.Invitation{}
	err := row.Scan(&inv.ID, &inv.InviterID, &inv.InviteeID, &inv.GameType, &inv.Status, &inv.GameID,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Create opens a pending invitation from inviter to invitee.
func (s *InvitationService) Create(ctx context.Context, inviterID, inviteeID uuid.UUID) (*models.Invitation, error) {
	if inviterID == inviteeID {
		return nil, ErrInvalidTarget
	}

	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND deleted = FALSE)`,
		inviteeID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check invitee: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, inviteeID)
	}

	if s.oneActiveGame {
		if err := checkNotBusy(ctx, s.db, inviterID, inviteeID); err != nil {
			return nil, err
		}
	}

	now := s.now()

	// A lapsed pending row still holds the pair's unique slot until swept.
	_, err = s.db.Exec(ctx,
		`UPDATE invitations
		 SET status = 'expired', resolved_at = $3
		 WHERE inviter_id = $1 AND invitee_id = $2 AND status = 'pending' AND expires_at <= $3`,
		inviterID, inviteeID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("expire stale invitation: %w", err)
	}

	inv, err := scanInvitation(s.db.QueryRow(ctx,
		`INSERT INTO invitations (inviter_id, invitee_id, game_type, status, created_at, expires_at)
		 VALUES ($1, $2, $3, 'pending', $4, $5)
		 RETURNING `+invitationColumns,
		inviterID, inviteeID, models.GameTypeChess, now, s.ttl.InvitationExpiry(now),
	))
	if isUniqueViolation(err) {
		return nil, ErrDuplicatePending
	}
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}

	s.events.Publish(ctx, invitationEvent(models.EventInvitationCreated, inv))
	return inv, nil
}

func checkNotBusy(ctx context.Context, q Querier, a, b uuid.UUID) error {
	var busy bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM games
			WHERE status = 'active'
			  AND (white_id IN ($1, $2) OR black_id IN ($1, $2))
		)`,
		a, b,
	).Scan(&busy)
	if err != nil {
		return fmt.Errorf("check active games: %w", err)
	}
	if busy {
		return ErrUserBusy
	}
	return nil
}

// Get returns an invitation visible to one of its two parties.
func (s *InvitationService) Get(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv.InviterID != actingUserID && inv.InviteeID != actingUserID {
		return nil, ErrNotFound
	}
	return inv, nil
}

func (s *InvitationService) List(ctx context.Context, params models.InvitationListParams) ([]models.Invitation, error) {
	var f filter
	if params.InviterID != nil {
		f.add("inviter_id = ?", *params.InviterID)
	}
	if params.InviteeID != nil {
		f.add("invitee_id = ?", *params.InviteeID)
	}
	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, validationErrorf("unknown invitation status %q", *params.Status)
		}
		f.add("status = ?", string(*params.Status))
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations`+f.where()+f.window(params.Page, "created_at", "id"),
		f.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []models.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return invitations, nil
}

// Accept moves the invitation to accepted and creates its game in one transaction.
func (s *InvitationService) Accept(ctx context.Context, id, actingUserID uuid.UUID) (*models.Game, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin accept transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	inv, err := scanInvitation(tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1 FOR UPDATE`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}

	if inv.InviteeID != actingUserID {
		return nil, fmt.Errorf("%w: only the invitee may accept", ErrForbidden)
	}
	if inv.Status.Terminal() {
		return nil, fmt.Errorf("%w: invitation is %s", ErrAlreadyResolved, inv.Status)
	}
	now := s.now()
	if s.ttl.InvitationExpired(inv, now) {
		if err := s.expireInTx(ctx, tx, inv, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit invitation expiry: %w", err)
		}
		committed = true
		s.events.Publish(ctx, invitationEvent(models.EventInvitationResolved, inv))
		return nil, ErrExpired
	}

	// Lock both players in id order so concurrent accepts involving either of
	// them serialize on the busy check.
	rows, err := tx.Query(ctx,
		`SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`,
		inv.InviterID, inv.InviteeID,
	)
	if err != nil {
		return nil, fmt.Errorf("lock players: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock players: %w", err)
	}

	if s.oneActiveGame {
		if err := checkNotBusy(ctx, tx, inv.InviterID, inv.InviteeID); err != nil {
			return nil, err
		}
	}

	white, black := inv.InviterID, inv.InviteeID
	if !s.whiteFirst() {
		white, black = black, white
	}

	game, err := createGame(ctx, tx, inv.ID, white, black)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE invitations
		 SET status = 'accepted', game_id = $2, resolved_at = $3
		 WHERE id = $1`,
		inv.ID, game.ID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit invitation accept: %w", err)
	}
	committed = true

	inv.Status = models.InvitationAccepted
	inv.GameID = &game.ID
	inv.ResolvedAt = &now
	s.events.Publish(ctx, invitationEvent(models.EventInvitationResolved, inv))

	logging.Info("Invitation accepted", map[string]interface{}{
		"invitation_id": inv.ID.String(),
		"game_id":       game.ID.String(),
		"white_id":      white.String(),
		"black_id":      black.String(),
	})
	return game, nil
}

func (s *InvitationService) expireInTx(ctx context.Context, tx Tx, inv *models.Invitation, now time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE invitations SET status = 'expired', resolved_at = $2 WHERE id = $1 AND status = 'pending'`,
		inv.ID, now,
	)
	if err != nil {
		return fmt.Errorf("expire invitation: %w", err)
	}
	inv.Status = models.InvitationExpired
	inv.ResolvedAt = &now
	return nil
}

// Decline is the invitee's refusal.
func (s *InvitationService) Decline(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error) {
	return s.resolve(ctx, id, actingUserID, models.InvitationDeclined)
}

// Cancel is the inviter's withdrawal.
func (s *InvitationService) Cancel(ctx context.Context, id, actingUserID uuid.UUID) (*models.Invitation, error) {
	return s.resolve(ctx, id, actingUserID, models.InvitationCancelled)
}

func (s *InvitationService) resolve(ctx context.Context, id, actingUserID uuid.UUID, to models.InvitationStatus) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}

	allowed := inv.InviteeID
	if to == models.InvitationCancelled {
		allowed = inv.InviterID
	}
	if actingUserID != allowed {
		return nil, fmt.Errorf("%w: cannot %s this invitation", ErrForbidden, verbFor(to))
	}
	if inv.Status.Terminal() {
		return nil, fmt.Errorf("%w: invitation is %s", ErrAlreadyResolved, inv.Status)
	}

	now := s.now()
	if s.ttl.InvitationExpired(inv, now) {
		to = models.InvitationExpired
	}

	updated, err := scanInvitation(s.db.QueryRow(ctx,
		`UPDATE invitations
		 SET status = $2, resolved_at = $3
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+invitationColumns,
		id, string(to), now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("resolve invitation: %w", err)
	}

	s.events.Publish(ctx, invitationEvent(models.EventInvitationResolved, updated))
	if to == models.InvitationExpired {
		return nil, ErrExpired
	}
	return updated, nil
}

func verbFor(status models.InvitationStatus) string {
	if status == models.InvitationCancelled {
		return "cancel"
	}
	return "decline"
}

// SweepExpired moves every lapsed pending invitation to expired. Terminal rows
// are never touched, so concurrent and repeated runs are harmless.
func (s *InvitationService) SweepExpired(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE invitations
		 SET status = 'expired', resolved_at = $1
		 WHERE status = 'pending' AND expires_at <= $1
		 RETURNING `+invitationColumns,
		s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep invitations: %w", err)
	}
	defer rows.Close()

	var expired []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return 0, fmt.Errorf("scan expired invitation: %w", err)
		}
		expired = append(expired, inv)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate expired invitations: %w", err)
	}

	for _, inv := range expired {
		s.events.Publish(ctx, invitationEvent(models.EventInvitationResolved, inv))
	}
	if len(expired) > 0 {
		logging.Info("Expired pending invitations", map[string]interface{}{"count": len(expired)})
	}
	return len(expired), nil
}
