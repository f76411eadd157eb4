package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend/backendtest"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/session"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

// newTestStore creates an in-memory SQLite store with migrations applied. It
// registers a cleanup function to close the database when the test
// completes.
func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := storage.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return storage.NewStore(db)
}

// newTestSession opens a session over b and closes it when the test ends.
func newTestSession(t *testing.T, identity backend.Identity, b *backendtest.Backend) *session.Session {
	t.Helper()

	s, err := session.Open(context.Background(), session.Deps{
		Identity: identity,
		Records:  b,
		Realtime: b,
		Device:   newTestStore(t),
	}, session.Options{})
	if err != nil {
		t.Fatalf("opening session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// serve routes one request through a chi router that only knows pattern.
func serve(t *testing.T, method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decode unmarshals the recorded response body into a value of type T.
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}
