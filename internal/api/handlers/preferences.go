package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/prefs"
)

type preferenceResponse struct {
	Key   prefs.Key `json:"key"`
	Value *bool     `json:"value"` // null when unset
}

type preferenceRequest struct {
	Value *bool `json:"value"`
}

// GetPreferences handles GET /api/preferences. It returns every preference
// that currently has a value.
func GetPreferences(store *prefs.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.All(r.Context()))
	}
}

// GetPreference handles GET /api/preferences/{key}.
func GetPreference(store *prefs.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := preferenceKey(w, r)
		if !ok {
			return
		}

		resp := preferenceResponse{Key: key}
		if v, set := store.Get(r.Context(), key); set {
			resp.Value = &v
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SetPreference handles PUT /api/preferences/{key} with body {"value": bool}.
func SetPreference(store *prefs.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := preferenceKey(w, r)
		if !ok {
			return
		}

		var body preferenceRequest
		if err := decodeJSON(r, &body); err != nil || body.Value == nil {
			writeError(w, http.StatusBadRequest, "Body must be {\"value\": true|false}")
			return
		}

		err := store.Set(r.Context(), key, *body.Value)
		switch {
		case errors.Is(err, prefs.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "Sign in to change this preference")
			return
		case err != nil:
			slog.Error("failed to set preference", "key", key, "error", err)
			writeError(w, http.StatusBadGateway, "Failed to save preference")
			return
		}

		writeJSON(w, http.StatusOK, preferenceResponse{Key: key, Value: body.Value})
	}
}

func preferenceKey(w http.ResponseWriter, r *http.Request) (prefs.Key, bool) {
	raw, err := urlParam(r, "key")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	key := prefs.Key(raw)
	if !key.Valid() {
		writeError(w, http.StatusNotFound, "Unknown preference")
		return "", false
	}
	return key, true
}
