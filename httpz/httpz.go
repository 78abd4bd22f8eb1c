// Package httpz provides the HTTP handler of the status page application: a frontend page that reports whether it
// can reach its backend, and the backend API it talks to.
//
// It is named httpz to avoid a name conflict with the standard library's http package.
package httpz

import (
	"context"
	"net/http"
	"time"
)

const (
	DefaultTitle   = "DevOps Assignment"
	DefaultMessage = "You've successfully integrated the backend!"
)

// Use when setting something though the request context.
type ctxRequestKey int

const (
	_ ctxRequestKey = iota
	ctxKeyEnvironment
)

// Options configures the application. The zero value serves the default page and a healthy backend.
type Options struct {
	// Title is the heading of the frontend page. Defaults to DefaultTitle.
	Title string

	// Message is returned by /api/message. Defaults to DefaultMessage.
	Message string

	// APIBaseURL is where the frontend finds the backend. Empty means the same origin.
	APIBaseURL string

	// HealthDelay delays every /api/health response.
	HealthDelay time.Duration

	// BackendDisabled makes the API respond with 503 Service Unavailable.
	BackendDisabled bool
}

type environment struct {
	options Options
}

// setContextValue returns a middleware handler that sets a value in the request context.
func setContextValue(key any, value any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = context.WithValue(ctx, key, value)
			next.ServeHTTP(w, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}
