package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/services"
)

func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d (body %s)", status, rr.Code, rr.Body.String())
	}
	if ct := rr.Result().Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected content type application/json, got %q", ct)
	}

	var response ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if code != "" && response.Code != code {
		t.Fatalf("expected code %q, got %q (%s)", code, response.Code, response.Error)
	}
}

// asUser attaches claims for userID to req.
func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	ctx := SetClaimsInContext(req.Context(), &services.TokenClaims{UserID: userID, TokenID: "test-jti"})
	return req.WithContext(ctx)
}
