// Package auth resolves the signed-in user from the hosted auth platform's
// access tokens and wraps the platform's admin API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned for any token that does not identify a
// signed-in user.
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the access-token claims issued by the auth platform.
type Claims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	AppMetadata map[string]any `json:"app_metadata"`
	Role        string         `json:"role"` // "authenticated" or "anon"
	SessionID   string         `json:"session_id"`
	IsAnonymous bool           `json:"is_anonymous"`
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Verifier checks token signatures against the platform's published keys.
type Verifier struct {
	keyfunc jwt.Keyfunc
	logger  *slog.Logger
}

// NewJWKSVerifier fetches signing keys from jwksURL. The key set is cached
// and refreshed in the background until ctx ends.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("create JWKS client: %w", err)
	}
	v := newVerifier(jwks.Keyfunc, logger)
	v.logger.Info("JWT verifier initialized", "jwks_url", jwksURL)
	return v, nil
}

func newVerifier(kf jwt.Keyfunc, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{keyfunc: kf, logger: logger.With("component", "auth")}
}

// VerifyToken validates a token and returns its claims. Anonymous tokens,
// tokens without a subject and tokens signed with anything but RS256 or
// ES256 are rejected.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}))
	if err != nil {
		v.logger.Debug("token parse failed", "error", err)
		return nil, ErrUnauthorized
	}
	if !token.Valid {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		v.logger.Error("failed to extract claims from token")
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, ErrUnauthorized
	}
	if claims.Role != "authenticated" {
		v.logger.Debug("token has invalid role", "role", claims.Role, "user_id", claims.Subject)
		return nil, ErrUnauthorized
	}
	if _, err := claims.UserID(); err != nil {
		v.logger.Debug("token subject is not a user id", "sub", claims.Subject)
		return nil, ErrUnauthorized
	}
	return claims, nil
}
