package bee_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pagecheck/lib/bee"
	"github.com/stretchr/testify/require"
)

func TestHandlerBuilderHandlerSetsEtag(t *testing.T) {
	hb := &bee.HandlerBuilder[struct{}]{}
	handler := hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, _ struct{}) error {
		w.Write([]byte("Hello, world"))
		return nil
	})

	r := httptest.NewRequest("GET", "/", nil)
	responseRecorder := httptest.NewRecorder()
	handler.ServeHTTP(responseRecorder, r)

	require.Equal(t, "Hello, world", responseRecorder.Body.String())
	require.Equal(t, `W/"SufDtqwL7_Zx76jPVzhhUcBuWMpTp42D82EHMWzsEl8="`, responseRecorder.Header().Get("ETag"))
}

func TestHandlerBuilderHandlerNotModified(t *testing.T) {
	hb := &bee.HandlerBuilder[struct{}]{}
	handler := hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, _ struct{}) error {
		w.Write([]byte("Hello, world"))
		return nil
	})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("If-None-Match", `W/"SufDtqwL7_Zx76jPVzhhUcBuWMpTp42D82EHMWzsEl8="`)
	responseRecorder := httptest.NewRecorder()
	handler.ServeHTTP(responseRecorder, r)

	require.Equal(t, http.StatusNotModified, responseRecorder.Code)
	require.Empty(t, responseRecorder.Body.String())
}

func TestHandlerBuilderHandlerPassesEnv(t *testing.T) {
	type ctxKey struct{}
	hb := &bee.HandlerBuilder[string]{CtxKeyEnv: ctxKey{}}
	handler := hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, env string) error {
		w.Write([]byte(env))
		return nil
	})

	r := httptest.NewRequest("GET", "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, "from env"))
	responseRecorder := httptest.NewRecorder()
	handler.ServeHTTP(responseRecorder, r)

	require.Equal(t, "from env", responseRecorder.Body.String())
}

func TestHandlerBuilderHandlerJSON(t *testing.T) {
	hb := &bee.HandlerBuilder[struct{}]{}
	handler := hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, _ struct{}) error {
		return bee.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r := httptest.NewRequest("GET", "/api/health", nil)
	responseRecorder := httptest.NewRecorder()
	handler.ServeHTTP(responseRecorder, r)

	require.Equal(t, http.StatusOK, responseRecorder.Code)
	require.Equal(t, "application/json", responseRecorder.Header().Get("Content-Type"))
	require.JSONEq(t, `{"status": "healthy"}`, responseRecorder.Body.String())
	require.NotEmpty(t, responseRecorder.Header().Get("ETag"))
}

func TestHandlerBuilderErrorHandlers(t *testing.T) {
	hb := &bee.HandlerBuilder[struct{}]{
		ErrorHandlers: []bee.ErrorHandler{bee.JSONStatusErrorHandler},
	}
	handler := hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, _ struct{}) error {
		w.Write([]byte("partial response that must be discarded"))
		return &bee.StatusError{StatusCode: http.StatusServiceUnavailable, Message: "backend disabled"}
	})

	r := httptest.NewRequest("GET", "/api/health", nil)
	responseRecorder := httptest.NewRecorder()
	handler.ServeHTTP(responseRecorder, r)

	require.Equal(t, http.StatusServiceUnavailable, responseRecorder.Code)
	require.JSONEq(t, `{"error": "backend disabled"}`, responseRecorder.Body.String())
	require.Empty(t, responseRecorder.Header().Get("ETag"))
}

func TestHandlerBuilderUnhandledError(t *testing.T) {
	hb := &bee.HandlerBuilder[struct{}]{
		ErrorHandlers: []bee.ErrorHandler{bee.JSONStatusErrorHandler},
	}
	handler := hb.New(func(ctx context.Context, w http.ResponseWriter, r *http.Request, _ struct{}) error {
		return errors.New("something broke")
	})

	r := httptest.NewRequest("GET", "/", nil)
	responseRecorder := httptest.NewRecorder()
	handler.ServeHTTP(responseRecorder, r)

	require.Equal(t, http.StatusInternalServerError, responseRecorder.Code)
	require.Equal(t, "Internal Server Error\n", responseRecorder.Body.String())
}
