package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HammerMeetNail/chessticulate/internal/models"
)

func userRowValues(u *models.User) []any {
	return []any{u.ID, u.Name, u.Email, u.PasswordHash, u.Wins, u.Draws, u.Losses, u.Deleted, u.CreatedAt, u.UpdatedAt}
}

func testUser(name string) *models.User {
	return &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		email    string
		password string
		wantErr  bool
	}{
		{"valid", "alice", "alice@example.com", "password123", false},
		{"short name", "al", "alice@example.com", "password123", true},
		{"long name", strings.Repeat("a", 33), "alice@example.com", "password123", true},
		{"name with space", "al ice", "alice@example.com", "password123", true},
		{"name with at", "al@ice", "alice@example.com", "password123", true},
		{"email missing at", "alice", "alice.example.com", "password123", true},
		{"email leading at", "alice", "@example.com", "password123", true},
		{"email trailing at", "alice", "alice@", "password123", true},
		{"short password", "alice", "alice@example.com", "short", true},
		{"long password", "alice", "alice@example.com", strings.Repeat("p", 73), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegistration(tt.user, tt.email, tt.password)
			if tt.wantErr {
				if KindOf(err) != KindValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestUserService_Create(t *testing.T) {
	want := testUser("alice")
	var gotArgs []any
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "INSERT INTO users") {
				t.Fatalf("unexpected sql: %s", sql)
			}
			gotArgs = args
			return rowFromValues(userRowValues(want)...)
		},
	}

	user, err := NewUserService(db).Create(context.Background(), models.CreateUserParams{
		Name:         "  alice ",
		Email:        "alice@example.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != want.ID {
		t.Errorf("ID = %s, want %s", user.ID, want.ID)
	}
	if gotArgs[0] != "alice" {
		t.Errorf("expected trimmed name, got %q", gotArgs[0])
	}
}

func TestUserService_Create_NameTaken(t *testing.T) {
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return errRow(&pgconn.PgError{Code: "23505"})
		},
	}

	_, err := NewUserService(db).Create(context.Background(), models.CreateUserParams{Name: "alice", Email: "a@b.c"})
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestUserService_GetByID(t *testing.T) {
	want := testUser("bob")
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "deleted = FALSE") {
				t.Errorf("expected deleted users to be excluded: %s", sql)
			}
			if args[0] != want.ID {
				return errRow(pgx.ErrNoRows)
			}
			return rowFromValues(userRowValues(want)...)
		},
	}
	service := NewUserService(db)

	user, err := service.GetByID(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "bob" {
		t.Errorf("Name = %q, want bob", user.Name)
	}

	if _, err := service.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserService_GetByLogin(t *testing.T) {
	want := testUser("carol")
	var gotLogin any
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "LOWER(name) = LOWER($1) OR LOWER(email) = LOWER($1)") {
				t.Errorf("unexpected sql: %s", sql)
			}
			gotLogin = args[0]
			return rowFromValues(userRowValues(want)...)
		},
	}

	user, err := NewUserService(db).GetByLogin(context.Background(), " Carol@Example.com ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != want.ID {
		t.Errorf("ID = %s, want %s", user.ID, want.ID)
	}
	if gotLogin != "Carol@Example.com" {
		t.Errorf("login arg = %q", gotLogin)
	}
}

func TestUserService_List(t *testing.T) {
	a, b := testUser("dan"), testUser("dana")
	var gotSQL string
	var gotArgs []any
	rows := &fakeRows{rows: [][]any{userRowValues(a), userRowValues(b)}}
	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			gotSQL, gotArgs = sql, args
			return rows, nil
		},
	}

	users, err := NewUserService(db).List(context.Background(), models.UserListParams{
		NamePrefix: "Da_",
		Page:       models.Page{Limit: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	for _, u := range users {
		if u.Email != "" {
			t.Errorf("expected email to be hidden in listings, got %q", u.Email)
		}
	}
	if !strings.Contains(gotSQL, "WHERE deleted = FALSE AND LOWER(name) LIKE $1") {
		t.Errorf("unexpected where clause: %s", gotSQL)
	}
	if gotArgs[0] != `da\_%` {
		t.Errorf("prefix arg = %q, want escaped pattern", gotArgs[0])
	}
	if !rows.closed {
		t.Error("expected rows to be closed")
	}
}

func TestUserService_SoftDelete(t *testing.T) {
	id := uuid.New()
	var execs []string
	tx := &fakeTx{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			execs = append(execs, sql)
			return fakeCommandTag{rowsAffected: 1}, nil
		},
	}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	if err := NewUserService(db).SoftDelete(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(execs))
	}
	if !strings.Contains(execs[1], "status = 'cancelled'") {
		t.Errorf("expected pending invitations to be cancelled: %s", execs[1])
	}
	if !tx.committed {
		t.Error("expected commit")
	}
}

func TestUserService_SoftDelete_NotFound(t *testing.T) {
	tx := &fakeTx{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			return fakeCommandTag{rowsAffected: 0}, nil
		},
	}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	err := NewUserService(db).SoftDelete(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Error("expected rollback without commit")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}
