// Package middleware holds the chi middleware chain shared by every project
// sandbox's router: panic recovery, request metrics, and bearer-token auth.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/internal/credentials"
	"github.com/pesaplay/mpesa-sim/internal/httperror"
	"github.com/pesaplay/mpesa-sim/internal/monitor"
)

type ContextKey string

const ProjectIDContextKey ContextKey = "project_id"

// RecoverHandler recovers from panics in a sandbox's handlers and turns them
// into an InternalError response instead of killing the sandbox's listener.
func RecoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}

			if errors.Is(err, http.ErrAbortHandler) {
				panic(err)
			}

			ctx := req.Context()
			log.Ctx(ctx).WithStack(err).Error(err)
			httperror.InternalError(ctx, "", err, nil).Render(rw)
		}()

		next.ServeHTTP(rw, req)
	})
}

// MetricsRequestHandler times every request handled by a sandbox and reports
// it to the monitor service, keyed by chi's matched route pattern.
func MetricsRequestHandler(monitorService monitor.MonitorServiceInterface) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			mw := chimw.NewWrapResponseWriter(rw, req.ProtoMajor)
			then := time.Now()
			next.ServeHTTP(mw, req)

			duration := time.Since(then)

			route := req.URL.Path
			if rctx := chimw.GetReqID(req.Context()); rctx != "" {
				route = req.URL.Path
			}

			labels := monitor.HTTPRequestLabels{
				Status: fmt.Sprintf("%d", mw.Status()),
				Route:  route,
				Method: req.Method,
			}

			err := monitorService.MonitorHTTPRequestDuration(duration, labels)
			if err != nil {
				log.Ctx(req.Context()).Errorf("Error trying to monitor request time: %s", err)
			}
		})
	}
}

// TokenValidator is implemented by both credentials.Store and its cached
// wrapper, so the middleware can be wired to whichever the sandbox uses.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

// AuthenticateMiddleware validates the "Bearer <token>" Authorization header
// issued by the /oauth/v1/generate endpoint against the credential store's
// token cache.
func AuthenticateMiddleware(store TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			authHeader := req.Header.Get("Authorization")
			if authHeader == "" {
				httperror.Unauthorized("", "AUTH_HEADER_MISSING", nil, nil).Render(rw)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httperror.Unauthorized("", "AUTH_HEADER_MALFORMED", nil, nil).Render(rw)
				return
			}

			ctx := req.Context()
			token := parts[1]
			projectID, err := store.ValidateToken(ctx, token)
			if err != nil {
				if !errors.Is(err, credentials.ErrTokenInvalid) && !errors.Is(err, credentials.ErrTokenExpired) {
					log.Ctx(ctx).Errorf("error validating access token: %s", err)
				}
				httperror.Unauthorized("", "AUTH_TOKEN_INVALID", nil, nil).Render(rw)
				return
			}

			ctx = context.WithValue(ctx, ProjectIDContextKey, projectID)
			req = req.WithContext(ctx)

			next.ServeHTTP(rw, req)
		})
	}
}
