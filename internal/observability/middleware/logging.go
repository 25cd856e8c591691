// Package middleware holds HTTP middleware tied to the observability stack,
// kept separate from internal/proxy so request logging configuration isn't
// coupled to routing.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
// Of the headers only the request's Content-Type is logged, and bodies are
// never logged, to avoid leaking credentials that pass through this proxy.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"Content-Type"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false,
	})
}
