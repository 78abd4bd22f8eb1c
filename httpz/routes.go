package httpz

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/jackc/pagecheck/lib/bee"
	"github.com/jackc/pagecheck/view"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

var errBackendDisabled = &bee.StatusError{StatusCode: http.StatusServiceUnavailable, Message: "backend is disabled"}

// NewHandler returns an http.Handler that serves the frontend page at / and the backend API under /api.
func NewHandler(logger *zerolog.Logger, options Options) (http.Handler, error) {
	if options.Title == "" {
		options.Title = DefaultTitle
	}
	if options.Message == "" {
		options.Message = DefaultMessage
	}

	router := chi.NewRouter()

	env := &environment{
		options: options,
	}

	router.Use(middleware.Compress(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)

	router.Use(hlog.NewHandler(*logger))
	router.Use(hlog.RequestIDHandler("request_id", "x-request-id"))
	router.Use(hlog.MethodHandler("method"))
	router.Use(hlog.URLHandler("url"))
	router.Use(hlog.RemoteAddrHandler("remote_ip"))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP request")
	}))

	router.Use(middleware.Recoverer)

	router.Use(setContextValue(ctxKeyEnvironment, env))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		env := ctx.Value(ctxKeyEnvironment).(*environment)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := view.StatusPage(view.StatusPageParams{Title: env.options.Title, APIBaseURL: env.options.APIBaseURL}).Render(ctx, w)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to render status page")
		}
	})

	hb := &bee.HandlerBuilder[*environment]{
		CtxKeyEnv:     ctxKeyEnvironment,
		ErrorHandlers: []bee.ErrorHandler{bee.JSONStatusErrorHandler},
	}

	router.Route("/api", func(router chi.Router) {
		router.Use(handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
			handlers.OptionStatusCode(http.StatusNoContent),
		))

		router.Method(http.MethodGet, "/health", hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, env *environment) error {
			if env.options.BackendDisabled {
				return errBackendDisabled
			}

			if env.options.HealthDelay > 0 {
				timer := time.NewTimer(env.options.HealthDelay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			}

			return bee.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		}))

		router.Method(http.MethodGet, "/message", hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, env *environment) error {
			if env.options.BackendDisabled {
				return errBackendDisabled
			}

			return bee.JSON(w, http.StatusOK, map[string]string{"message": env.options.Message})
		}))
	})

	return router, nil
}
