package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/cors"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before delegating to the underlying
// ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs every HTTP request with method, path, status code, and
// duration using the slog structured logger.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

// DiagnosticRecorder keeps a bounded log of unexpected failures.
type DiagnosticRecorder interface {
	RecordDiagnostic(ctx context.Context, d storage.Diagnostic) error
}

// RecoveryResponse is sent instead of a bare 500 so the shell can offer the
// user a way out.
type RecoveryResponse struct {
	Error   string   `json:"error"`
	Actions []string `json:"actions"`
}

// Recovery recovers from panics within HTTP handlers. It logs the panic and
// its stack, appends it to the diagnostic log when recorder is non-nil, and
// answers 500 with a RecoveryResponse offering reload and home actions.
func Recovery(recorder DiagnosticRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := string(debug.Stack())
				slog.Error("panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"stack", stack,
				)

				if recorder != nil {
					d := storage.Diagnostic{
						Message: fmt.Sprint(rec),
						Stack:   stack,
						Path:    r.URL.Path,
					}
					if err := recorder.RecordDiagnostic(context.WithoutCancel(r.Context()), d); err != nil {
						slog.Warn("failed to record diagnostic", "error", err)
					}
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(RecoveryResponse{
					Error:   "Something went wrong",
					Actions: []string{"reload", "home"},
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the UI shell's origins to call the bridge.
func CORS(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	})
	return c.Handler
}
