package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/handlers"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type fakeValidator struct {
	tokens map[string]uuid.UUID
}

func (v *fakeValidator) ValidateToken(_ context.Context, token string) (*services.TokenClaims, error) {
	id, ok := v.tokens[token]
	if !ok {
		return nil, services.ErrTokenInvalid
	}
	return &services.TokenClaims{UserID: id, TokenID: token}, nil
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	userID := uuid.New()
	am := NewAuthMiddleware(&fakeValidator{tokens: map[string]uuid.UUID{"good": userID}})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   bool
	}{
		{"no header", "", http.StatusOK, false},
		{"basic auth ignored", "Basic abc", http.StatusOK, false},
		{"valid bearer", "Bearer good", http.StatusOK, true},
		{"lowercase scheme", "bearer good", http.StatusOK, true},
		{"invalid bearer", "Bearer bad", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawUser bool
			handler := am.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, ok := handlers.CurrentUserID(r.Context())
				sawUser = ok && id == userID
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/games", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if sawUser != tt.wantUser {
				t.Errorf("user in context = %v, want %v", sawUser, tt.wantUser)
			}
		})
	}
}

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	am := NewAuthMiddleware(nil)
	called := false
	handler := am.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	if rr.Code != http.StatusUnauthorized || called {
		t.Fatalf("expected 401 without calling handler, got %d called=%v", rr.Code, called)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req = req.WithContext(handlers.SetClaimsInContext(req.Context(), &services.TokenClaims{UserID: uuid.New()}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !called {
		t.Fatalf("expected authenticated request to pass, got %d", rr.Code)
	}
}
