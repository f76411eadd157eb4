package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/haptics"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/microcopy"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/notifications"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/presence"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/push"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/session"
)

type hapticsResponse struct {
	Enabled   bool `json:"enabled"`
	Supported bool `json:"supported"`
}

// GetHaptics handles GET /api/haptics.
func GetHaptics(engine *haptics.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hapticsResponse{Enabled: engine.Enabled(), Supported: engine.Supported()})
	}
}

// SetHaptics handles PUT /api/haptics with body {"enabled": bool}. The new
// state applies immediately; persisting it happens in the background.
func SetHaptics(engine *haptics.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeJSON(r, &body); err != nil || body.Enabled == nil {
			writeError(w, http.StatusBadRequest, "Body must be {\"enabled\": true|false}")
			return
		}

		engine.Toggle(r.Context(), *body.Enabled)
		writeJSON(w, http.StatusOK, hapticsResponse{Enabled: engine.Enabled(), Supported: engine.Supported()})
	}
}

// TriggerHaptic handles POST /api/haptics/{intensity}.
func TriggerHaptic(engine *haptics.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := urlParam(r, "intensity")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		intensity, err := haptics.ParseIntensity(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"played": engine.Trigger(intensity)})
	}
}

type pushResponse struct {
	Permission push.Permission `json:"permission"`
	Granted    bool            `json:"granted"`
}

// GetPush handles GET /api/push.
func GetPush(c *push.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := c.Permission()
		writeJSON(w, http.StatusOK, pushResponse{Permission: p, Granted: p == push.PermissionGranted})
	}
}

// RequestPushPermission handles POST /api/push/permission.
func RequestPushPermission(c *push.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		granted := c.RequestPermission(r.Context())
		writeJSON(w, http.StatusOK, pushResponse{Permission: c.Permission(), Granted: granted})
	}
}

// SubscribePush handles POST /api/push/subscribe. It answers 409 when no
// subscription could be obtained.
func SubscribePush(c *push.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := c.SubscribeToPush(r.Context())
		if sub == nil {
			writeError(w, http.StatusConflict, "Push subscription unavailable")
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

type notifyRequest struct {
	Title string `json:"title"`
	push.NotificationOptions
}

// ShowNotification handles POST /api/push/notify.
func ShowNotification(c *push.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body notifyRequest
		if err := decodeJSON(r, &body); err != nil || body.Title == "" {
			writeError(w, http.StatusBadRequest, "Body must contain a title")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"shown": c.ShowLocalNotification(body.Title, body.NotificationOptions)})
	}
}

// GetUnread handles GET /api/notifications/unread.
func GetUnread(counter *notifications.Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"unread": counter.Count()})
	}
}

// GetMicrocopy handles GET /api/microcopy/{key}?fallback=.
func GetMicrocopy(cache *microcopy.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := urlParam(r, "key")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		text := cache.Text(key, r.URL.Query().Get("fallback"))
		writeJSON(w, http.StatusOK, map[string]string{
			"key":    key,
			"text":   text,
			"locale": string(cache.Locale()),
		})
	}
}

// GetLocale handles GET /api/locale.
func GetLocale(cache *microcopy.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"locale": string(cache.Locale())})
	}
}

// SetLocale handles PUT /api/locale with body {"locale": "de"|"en"}.
func SetLocale(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Locale string `json:"locale"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		locale, err := microcopy.ParseLocale(body.Locale)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.SetLocale(r.Context(), locale); err != nil {
			// The switch already applies for this run.
			slog.Warn("failed to persist locale", "locale", locale, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"locale": string(locale)})
	}
}

type presenceResponse struct {
	Online        int        `json:"online"`
	WindowMinutes int        `json:"window_minutes"`
	LastPoll      *time.Time `json:"last_poll,omitempty"`
}

// GetPresence handles GET /api/presence.
func GetPresence(e *presence.Estimator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := presenceResponse{
			Online:        e.Count(),
			WindowMinutes: int(e.Window() / time.Minute),
		}
		if t := e.LastPoll(); !t.IsZero() {
			resp.LastPoll = &t
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
