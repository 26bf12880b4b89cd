package mocks

import (
	"context"
	"time"

	"github.com/phrazzld/taskstream-api/internal/service/auth"
)

// MockJWTService implements auth.JWTService for testing
type MockJWTService struct {
	GenerateTokenFn             func(ctx context.Context, userID int64) (string, error)
	GenerateTokenWithLifetimeFn func(ctx context.Context, userID int64, lifetime time.Duration) (string, error)
	ValidateTokenFn             func(ctx context.Context, tokenString string) (*auth.Claims, error)
	GenerateRefreshTokenFn      func(ctx context.Context, userID int64) (string, error)
	ValidateRefreshTokenFn      func(ctx context.Context, tokenString string) (*auth.Claims, error)

	// Default values used when functions aren't explicitly defined
	Token        string
	RefreshToken string
	Err          error
	ValidateErr  error
	Claims       *auth.Claims
	Lifetime     time.Duration
}

var _ auth.JWTService = (*MockJWTService)(nil)

// GenerateToken implements the auth.JWTService interface
func (m *MockJWTService) GenerateToken(ctx context.Context, userID int64) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, userID)
	}
	return m.Token, m.Err
}

// GenerateTokenWithLifetime implements the auth.JWTService interface
func (m *MockJWTService) GenerateTokenWithLifetime(
	ctx context.Context,
	userID int64,
	lifetime time.Duration,
) (string, error) {
	if m.GenerateTokenWithLifetimeFn != nil {
		return m.GenerateTokenWithLifetimeFn(ctx, userID, lifetime)
	}
	return m.Token, m.Err
}

// ValidateToken implements the auth.JWTService interface
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return m.Claims, m.ValidateErr
}

// GenerateRefreshToken implements the auth.JWTService interface
func (m *MockJWTService) GenerateRefreshToken(ctx context.Context, userID int64) (string, error) {
	if m.GenerateRefreshTokenFn != nil {
		return m.GenerateRefreshTokenFn(ctx, userID)
	}
	return m.RefreshToken, m.Err
}

// ValidateRefreshToken implements the auth.JWTService interface
func (m *MockJWTService) ValidateRefreshToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if m.ValidateRefreshTokenFn != nil {
		return m.ValidateRefreshTokenFn(ctx, tokenString)
	}
	return m.Claims, m.ValidateErr
}

// AccessTokenLifetime implements the auth.JWTService interface
func (m *MockJWTService) AccessTokenLifetime() time.Duration {
	if m.Lifetime == 0 {
		return 30 * time.Minute
	}
	return m.Lifetime
}
