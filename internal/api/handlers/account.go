package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/auth"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/email"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

// DiagnosticLog is the local log of recovered failures.
type DiagnosticLog interface {
	Diagnostics(ctx context.Context) ([]storage.Diagnostic, error)
	ClearDiagnostics(ctx context.Context) error
}

// GetDiagnostics handles GET /api/diagnostics.
func GetDiagnostics(diag DiagnosticLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := diag.Diagnostics(r.Context())
		if err != nil {
			slog.Error("failed to read diagnostics", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to read diagnostics")
			return
		}
		if entries == nil {
			entries = []storage.Diagnostic{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// ClearDiagnostics handles DELETE /api/diagnostics.
func ClearDiagnostics(diag DiagnosticLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := diag.ClearDiagnostics(r.Context()); err != nil {
			slog.Error("failed to clear diagnostics", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to clear diagnostics")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// TokenStore keeps the session's access token on the device.
type TokenStore interface {
	SetToken(token string) error
	Clear() error
}

// Reloader re-reads state that depends on who is signed in and returns the
// new unread count.
type Reloader interface {
	Reload(ctx context.Context) int
}

// SignIn handles PUT /api/session with body {"access_token": "..."}. The
// token is verified before it is stored, then the user's state is reloaded.
func SignIn(tokens TokenStore, verifier auth.TokenVerifier, session Reloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AccessToken string `json:"access_token"`
		}
		if err := decodeJSON(r, &body); err != nil || body.AccessToken == "" {
			writeError(w, http.StatusBadRequest, "Body must contain an access_token")
			return
		}

		claims, err := verifier.VerifyToken(body.AccessToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		if err := tokens.SetToken(body.AccessToken); err != nil {
			slog.Error("failed to store session token", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to store session")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": claims.Subject,
			"unread":  session.Reload(r.Context()),
		})
	}
}

// SignOut handles DELETE /api/session.
func SignOut(tokens TokenStore, session Reloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := tokens.Clear(); err != nil {
			slog.Error("failed to clear session token", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to clear session")
			return
		}
		session.Reload(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

// AccountDeleter removes an account on the auth platform.
type AccountDeleter interface {
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// WelcomeMailer sends the welcome message.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, to email.Address) error
}

// verifiedClaims authenticates the caller from its bearer token. It writes
// the error response itself and reports whether the caller may continue.
func verifiedClaims(w http.ResponseWriter, r *http.Request, verifier auth.TokenVerifier) (*auth.Claims, bool) {
	token, ok := auth.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return nil, false
	}
	claims, err := verifier.VerifyToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid bearer token")
		return nil, false
	}
	return claims, true
}

// DeleteAccount handles POST /functions/delete-account. Callers can only
// delete their own account.
func DeleteAccount(verifier auth.TokenVerifier, admin AccountDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := verifiedClaims(w, r, verifier)
		if !ok {
			return
		}
		id, err := claims.UserID()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		if err := admin.DeleteUser(r.Context(), id); err != nil {
			slog.Error("failed to delete account", "user_id", id, "error", err)
			writeError(w, http.StatusBadGateway, "Failed to delete account")
			return
		}

		slog.Info("account deleted", "user_id", id)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// WelcomeEmail handles POST /functions/welcome-email. The message goes to
// the address in the caller's token; an optional {"name": "..."} body sets
// the greeting.
func WelcomeEmail(verifier auth.TokenVerifier, mailer WelcomeMailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mailer == nil {
			writeError(w, http.StatusServiceUnavailable, "Email is not configured")
			return
		}
		claims, ok := verifiedClaims(w, r, verifier)
		if !ok {
			return
		}
		if claims.Email == "" {
			writeError(w, http.StatusBadRequest, "Account has no email address")
			return
		}

		var body struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		err := mailer.SendWelcome(r.Context(), email.Address{Email: claims.Email, Name: body.Name})
		if err != nil {
			var httpErr *email.HTTPError
			if errors.As(err, &httpErr) {
				slog.Error("welcome email rejected", "status", httpErr.StatusCode, "error", err)
			} else {
				slog.Error("failed to send welcome email", "error", err)
			}
			writeError(w, http.StatusBadGateway, "Failed to send welcome email")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
