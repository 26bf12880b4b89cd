package auth

import (
	"context"
	"time"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token with the configured lifetime.
	GenerateToken(ctx context.Context, userID int64) (string, error)

	// GenerateTokenWithLifetime creates a signed access token that expires
	// after lifetime. Used for the short-lived WebSocket token.
	GenerateTokenWithLifetime(ctx context.Context, userID int64, lifetime time.Duration) (string, error)

	// ValidateToken validates an access token and extracts its claims.
	// Returns ErrExpiredToken, ErrWrongTokenType or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateRefreshToken creates a signed refresh token. Refresh tokens
	// have a longer lifetime and are only accepted by ValidateRefreshToken.
	GenerateRefreshToken(ctx context.Context, userID int64) (string, error)

	// ValidateRefreshToken validates a refresh token and extracts its claims.
	// Returns ErrExpiredRefreshToken, ErrWrongTokenType or ErrInvalidRefreshToken on failure.
	ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error)

	// AccessTokenLifetime reports the lifetime GenerateToken uses.
	AccessTokenLifetime() time.Duration
}

// Claims represents the validated contents of a token.
type Claims struct {
	UserID    int64
	TokenType string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
