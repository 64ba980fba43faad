// Package authgate is the Auth Gate contract: verify a bearer token and
// hand back the principal's kind and id. It never issues tokens, never
// touches a password, and never talks to a user store — account
// registration and login live outside this core.
package authgate

import (
	"context"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal identifies the caller a verified token belongs to.
type Principal struct {
	ID   uuid.UUID
	Role types.UserRole
}

// Verifier is the contract the HTTP middleware depends on.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// JWTVerifier verifies HS256 tokens minted elsewhere against a shared
// secret. It trusts user_id/role/exp claims at face value; nothing in
// this core issues its own tokens.
type JWTVerifier struct {
	secret string
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

var (
	ErrInvalidToken = types.Unauthorized("invalid token")
	ErrExpiredToken = types.Unauthorized("expired token")
)

func (v *JWTVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return []byte(v.secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("%w: missing or invalid user_id claim", ErrInvalidToken)
	}

	roleStr, _ := claims["role"].(string)
	role := types.UserRole(roleStr)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: missing or invalid role claim", ErrInvalidToken)
	}

	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	if time.Now().UTC().After(time.Unix(int64(expFloat), 0)) {
		return nil, ErrExpiredToken
	}

	return &Principal{ID: userID, Role: role}, nil
}

type principalCtxKey struct{}

// WithPrincipal attaches a verified caller to the request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// FromContext returns the caller attached by the auth middleware, or nil
// for an unauthenticated request.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*Principal)
	return p
}
