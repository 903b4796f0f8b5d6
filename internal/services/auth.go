package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
)

const (
	bcryptCost       = 12
	revokedKeyPrefix = "revoked:"
	tokenIssuer      = "chessticulate"
)

// TokenClaims is the verified content of an access token.
type TokenClaims struct {
	UserID    uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}

type AuthService struct {
	redis  RedisClient
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(redis RedisClient, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		redis:  redis,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) VerifyPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IssueToken signs an HS256 access token for userID.
func (s *AuthService) IssueToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID.String(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature and expiry, then checks the revocation list.
// A revocation lookup failure is logged and the token is accepted.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}

	revoked, err := s.redis.Exists(ctx, revokedKeyPrefix+claims.ID)
	if err != nil {
		logging.Warn("Token revocation check failed", map[string]interface{}{"error": err.Error()})
	} else if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrTokenInvalid)
	}

	return &TokenClaims{UserID: userID, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// RevokeToken blocks the token until it would have expired anyway.
func (s *AuthService) RevokeToken(ctx context.Context, claims *TokenClaims) error {
	remaining := claims.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, revokedKeyPrefix+claims.TokenID, "1", remaining); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// Authenticate checks a password against the stored hash without revealing which part was wrong.
func (s *AuthService) Authenticate(ctx context.Context, users UserServiceInterface, login, password string) (string, time.Time, error) {
	user, err := users.GetByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if !s.VerifyPassword(user.PasswordHash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.IssueToken(user.ID)
}
