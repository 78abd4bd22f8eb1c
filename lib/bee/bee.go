// Package bee provides a simple HTTP handler with functionality that is inconvenient to implement in middleware.
//
// It provides two primary features. First, is easier error handling. Handlers can return errors which will be handled
// by a list of error handlers that will be called when an error occurs. Second, it automatically sets the ETag header
// based on the digest of the response body.
//
// These features are related because the response body must be buffered in its entirety. For error handling an error
// may occur after some of the response has been written and the response needs to be replaced. For ETag the response
// body must be buffered so that the digest can be calculated and set in the headers.
package bee

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

var bufPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

type bufferedResponseWriter struct {
	w          http.ResponseWriter
	b          *bytes.Buffer
	statusCode int
}

func (brw *bufferedResponseWriter) Header() http.Header {
	return brw.w.Header()
}

func (brw *bufferedResponseWriter) Write(p []byte) (int, error) {
	return brw.b.Write(p)
}

func (brw *bufferedResponseWriter) WriteHeader(statusCode int) {
	brw.statusCode = statusCode
}

func (brw *bufferedResponseWriter) Reset() {
	brw.b.Reset()
	brw.statusCode = 0
}

type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error) (bool, error)

// HandlerBuilder is used to build Handlers with shared functionality. HandlerBuilder must not be mutated after any
// methods have been called.
type HandlerBuilder[T any] struct {
	// Key used to get the env from the request context. If nil then a zero value T is passed as the env to the handler.
	CtxKeyEnv any

	// ErrorHandlers are called one at a time until one returns true. If none return true or one returns an error then a
	// generic HTTP 500 error is returned.
	ErrorHandlers []ErrorHandler
}

// New returns a new http.Handler that calls fn. If fn returns an error then the error is passed to the ErrorHandlers.
func (hb *HandlerBuilder[T]) New(fn func(ctx context.Context, w http.ResponseWriter, r *http.Request, env T) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		b := bufPool.Get().(*bytes.Buffer)
		defer func() {
			b.Reset()
			bufPool.Put(b)
		}()

		brw := &bufferedResponseWriter{
			w: w,
			b: b,
		}

		env, _ := ctx.Value(hb.CtxKeyEnv).(T)

		err := fn(ctx, brw, r, env)
		if err != nil {
			brw.Reset()
			handled := false
			for _, eh := range hb.ErrorHandlers {
				handled, err = eh(brw, r, err)
				if err != nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if handled {
					break
				}
			}
			if !handled {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		// Even though the net/http package will set the Content-Type header if it is not set, we do it here so that
		// Content-Type is available for middleware such as chi/middleware/Compress.
		if brw.Header().Get("Content-Type") == "" {
			brw.Header().Set("Content-Type", http.DetectContentType(brw.b.Bytes()))
		}

		if r.Method == http.MethodGet && brw.Header().Get("ETag") == "" && (brw.statusCode == 0 || brw.statusCode == http.StatusOK) {
			bodyDigest := sha256.Sum256(brw.b.Bytes())
			etag := `W/"` + base64.URLEncoding.EncodeToString(bodyDigest[:]) + `"`

			if r.Header.Get("If-None-Match") == etag {
				brw.w.WriteHeader(http.StatusNotModified)
				return
			}

			brw.w.Header().Set("ETag", etag)
		}

		if brw.statusCode != 0 {
			brw.w.WriteHeader(brw.statusCode)
		}
		brw.b.WriteTo(brw.w)
	})
}

// StatusError is an error that should be reported to the client with StatusCode.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// JSON writes v as a JSON response with statusCode.
func JSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// JSONStatusErrorHandler handles *StatusError by responding with {"error": message} and the error's status code.
func JSONStatusErrorHandler(w http.ResponseWriter, r *http.Request, err error) (bool, error) {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false, nil
	}

	return true, JSON(w, statusErr.StatusCode, map[string]string{"error": statusErr.Message})
}
