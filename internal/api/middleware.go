package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/mapflag/mapflag-client/internal/http/response"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const contextKeyLanguage contextKey = "language"

// withLanguage attaches the first Accept-Language tag to the request context.
func withLanguage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lang := firstLanguage(r.Header.Get("Accept-Language")); lang != "" {
			r = r.WithContext(context.WithValue(r.Context(), contextKeyLanguage, lang))
		}
		next.ServeHTTP(w, r)
	})
}

// getLanguage returns the language attached by withLanguage, or "".
func getLanguage(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKeyLanguage).(string); ok {
		return lang
	}
	return ""
}

// firstLanguage returns the first tag of an Accept-Language header without its weight.
func firstLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}

// recoverer turns a handler panic into a logged 500 with the usual JSON error body.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel comparison on a recovered value
					panic(rec)
				}
				logger.Error("handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()))
				response.HandleError(w, fmt.Errorf("panic: %v", rec), nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
