package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// ErrNoToken is returned by a TokenSource when nobody is signed in.
var ErrNoToken = errors.New("no session token")

// TokenSource yields the current access token.
type TokenSource interface {
	Token() (string, error)
}

// SessionIdentity resolves the current user from the stored session token.
type SessionIdentity struct {
	tokens   TokenSource
	verifier TokenVerifier
	logger   *slog.Logger
}

var _ backend.Identity = (*SessionIdentity)(nil)

// NewSessionIdentity creates an identity backed by tokens.
func NewSessionIdentity(tokens TokenSource, verifier TokenVerifier, logger *slog.Logger) *SessionIdentity {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionIdentity{tokens: tokens, verifier: verifier, logger: logger.With("component", "identity")}
}

// CurrentUser implements backend.Identity. A missing, expired or invalid
// token means nobody is signed in.
func (s *SessionIdentity) CurrentUser(context.Context) (uuid.UUID, bool) {
	token, err := s.tokens.Token()
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			s.logger.Warn("failed to read session token", "error", err)
		}
		return uuid.Nil, false
	}

	claims, err := s.verifier.VerifyToken(token)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
