package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/api/handlers"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/auth"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/config"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/email"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/session"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

// Deps are what the router serves.
type Deps struct {
	Session  *session.Session
	Store    *storage.Store
	Tokens   handlers.TokenStore
	Verifier auth.TokenVerifier
	Admin    handlers.AccountDeleter
	Mailer   *email.Client // nil when email is not configured
	Config   *config.Config
}

// NewRouter creates the HTTP router for the UI shell bridge and the account
// functions.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestLogger)
	r.Use(Recovery(deps.Store))
	r.Use(CORS(deps.Config.Server.AllowedOrigins))

	s := deps.Session

	r.Route("/api", func(api chi.Router) {
		api.Get("/preferences", handlers.GetPreferences(s.Prefs))
		api.Get("/preferences/{key}", handlers.GetPreference(s.Prefs))
		api.Put("/preferences/{key}", handlers.SetPreference(s.Prefs))

		api.Get("/haptics", handlers.GetHaptics(s.Haptics))
		api.Put("/haptics", handlers.SetHaptics(s.Haptics))
		api.Post("/haptics/{intensity}", handlers.TriggerHaptic(s.Haptics))

		api.Get("/push", handlers.GetPush(s.Push))
		api.Post("/push/permission", handlers.RequestPushPermission(s.Push))
		api.Post("/push/subscribe", handlers.SubscribePush(s.Push))
		api.Post("/push/notify", handlers.ShowNotification(s.Push))

		api.Get("/notifications/unread", handlers.GetUnread(s.Unread))

		api.Get("/microcopy/{key}", handlers.GetMicrocopy(s.Microcopy))
		api.Get("/locale", handlers.GetLocale(s.Microcopy))
		api.Put("/locale", handlers.SetLocale(s))

		api.Get("/presence", handlers.GetPresence(s.Presence))

		api.Put("/session", handlers.SignIn(deps.Tokens, deps.Verifier, s))
		api.Delete("/session", handlers.SignOut(deps.Tokens, s))

		api.Get("/diagnostics", handlers.GetDiagnostics(deps.Store))
		api.Delete("/diagnostics", handlers.ClearDiagnostics(deps.Store))
	})

	var mailer handlers.WelcomeMailer
	if deps.Mailer != nil {
		mailer = deps.Mailer
	}
	r.Route("/functions", func(fn chi.Router) {
		fn.Post("/delete-account", handlers.DeleteAccount(deps.Verifier, deps.Admin))
		fn.Post("/welcome-email", handlers.WelcomeEmail(deps.Verifier, mailer))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
