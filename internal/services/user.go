package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

const userColumns = `id, name, email, password_hash, wins, draws, losses, deleted, created_at, updated_at`

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

func scanUser(row Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Wins, &u.Draws, &u.Losses, &u.Deleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ValidateRegistration checks the shape of a new account.
func ValidateRegistration(name, email, password string) error {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 32 {
		return validationErrorf("name must be 3 to 32 characters")
	}
	if strings.ContainsAny(name, " \t@") {
		return validationErrorf("name must not contain spaces or @")
	}
	if at := strings.Index(email, "@"); at < 1 || at == len(email)-1 {
		return validationErrorf("email is invalid")
	}
	if len(password) < 8 || len(password) > 72 {
		return validationErrorf("password must be 8 to 72 bytes")
	}
	return nil
}

func (s *UserService) Create(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		strings.TrimSpace(params.Name), strings.TrimSpace(params.Email), params.PasswordHash,
	))
	if isUniqueViolation(err) {
		return nil, ErrNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted = FALSE`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// GetByLogin finds an active user by name or email, case-insensitively.
func (s *UserService) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE (LOWER(name) = LOWER($1) OR LOWER(email) = LOWER($1)) AND deleted = FALSE`,
		strings.TrimSpace(login),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by login: %w", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, params models.UserListParams) ([]models.User, error) {
	f := filter{conds: []string{"deleted = FALSE"}}
	if prefix := strings.TrimSpace(params.NamePrefix); prefix != "" {
		f.add("LOWER(name) LIKE ?", escapeLike(strings.ToLower(prefix))+"%")
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users`+f.where()+f.window(params.Page, "name", "id"),
		f.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u.Public())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// SoftDelete hides the user and cancels their pending invitations. Games are kept.
func (s *UserService) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	result, err := tx.Exec(ctx,
		`UPDATE users SET deleted = TRUE, updated_at = NOW() WHERE id = $1 AND deleted = FALSE`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`UPDATE invitations
		 SET status = 'cancelled', resolved_at = NOW()
		 WHERE status = 'pending' AND (inviter_id = $1 OR invitee_id = $1)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("cancelling invitations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit user delete: %w", err)
	}
	committed = true
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
