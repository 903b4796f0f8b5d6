package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type contextKey string

const claimsContextKey contextKey = "claims"

func SetClaimsInContext(ctx context.Context, claims *services.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func GetClaimsFromContext(ctx context.Context) *services.TokenClaims {
	claims, _ := ctx.Value(claimsContextKey).(*services.TokenClaims)
	return claims
}

// CurrentUserID returns the authenticated user's id, if any.
func CurrentUserID(ctx context.Context) (uuid.UUID, bool) {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		return uuid.Nil, false
	}
	return claims.UserID, true
}
