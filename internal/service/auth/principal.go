package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/taskstream-api/internal/store"
)

// Principal is the authenticated identity behind a token.
type Principal struct {
	UserID int64
	Email  string
}

// Label is the human-readable name used in notices, falling back to the id.
func (p *Principal) Label() string {
	if p.Email != "" {
		return p.Email
	}
	return fmt.Sprintf("user %d", p.UserID)
}

// PrincipalResolver turns an access token into the user it was issued for.
type PrincipalResolver struct {
	tokens JWTService
	users  store.UserStore
}

// NewPrincipalResolver creates a resolver over the token service and user store.
func NewPrincipalResolver(tokens JWTService, users store.UserStore) *PrincipalResolver {
	return &PrincipalResolver{tokens: tokens, users: users}
}

// ResolveToken validates token and loads its user.
// Returns ErrMissingToken for an empty token, the token validation error for a
// bad token, and ErrUnknownPrincipal when the user has been removed.
func (r *PrincipalResolver) ResolveToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := r.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("failed to load token subject: %w", err)
	}

	return &Principal{UserID: user.ID, Email: user.Email}, nil
}
