// Package apilog wraps a project sandbox's router so every inbound request
// is persisted as a data.ApiLog row and republished on the event bus, giving
// the desktop shell a live request log without the handlers themselves
// knowing anything about logging.
package apilog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/eventbus"
	"github.com/pesaplay/mpesa-sim/internal/simulator/middleware"
)

const maxLoggedBodyBytes = 1 << 20 // 1 MiB

// Middleware persists one ApiLog row per request and emits EventNewAPILog.
// It is mounted on every project sandbox route except "/".
type Middleware struct {
	dbConnectionPool db.DBConnectionPool
	apiLogs          *data.APILogModel
	bus              eventbus.Bus
}

func NewMiddleware(dbConnectionPool db.DBConnectionPool, models *data.Models, bus eventbus.Bus) *Middleware {
	return &Middleware{dbConnectionPool: dbConnectionPool, apiLogs: models.APILogs, bus: bus}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			next.ServeHTTP(rw, req)
			return
		}

		started := time.Now()

		var requestBody []byte
		if req.Body != nil {
			requestBody, _ = io.ReadAll(io.LimitReader(req.Body, maxLoggedBodyBytes))
			req.Body = io.NopCloser(bytes.NewReader(requestBody))
		}
		requestHeaders, _ := json.Marshal(req.Header)

		recorder := chimw.NewWrapResponseWriter(rw, req.ProtoMajor)
		bodyCapture := &responseBodyCapture{ResponseWriter: recorder}

		next.ServeHTTP(bodyCapture, req)

		duration := time.Since(started)
		route := chi.RouteContext(req.Context()).RoutePattern()
		if route == "" {
			route = req.URL.Path
		}

		projectID, _ := req.Context().Value(middleware.ProjectIDContextKey).(int64)

		responseHeaders, _ := json.Marshal(recorder.Header())

		insert := data.ApiLogInsert{
			ProjectID:       projectID,
			Method:          req.Method,
			Path:            route,
			StatusCode:      recorder.Status(),
			RequestBody:     bodyAsLoggable(requestBody),
			RequestHeaders:  requestHeaders,
			ResponseBody:    bodyAsLoggable(bodyCapture.captured.Bytes()),
			ResponseHeaders: responseHeaders,
			DurationMs:      duration.Milliseconds(),
		}
		if desc, ok := bodyCapture.internalErrorDesc(); ok {
			insert.ErrorDesc = &desc
		}

		ctx := context.Background()
		apiLog, err := m.apiLogs.Insert(ctx, m.dbConnectionPool, insert)
		if err != nil {
			log.Ctx(req.Context()).Errorf("persisting api log: %s", err)
			return
		}

		if err := m.bus.EmitAll(eventbus.EventNewAPILog, apiLog); err != nil {
			log.Ctx(req.Context()).Errorf("emitting new-api-log event: %s", err)
		}
	})
}

// responseBodyCapture tees everything written through it into an in-memory
// buffer (bounded the same as the request body) so the final response can be
// persisted alongside the request that produced it.
type responseBodyCapture struct {
	chimw.WrapResponseWriter
	captured bytes.Buffer
}

func (c *responseBodyCapture) Write(p []byte) (int, error) {
	if c.captured.Len() < maxLoggedBodyBytes {
		remaining := maxLoggedBodyBytes - c.captured.Len()
		if remaining > len(p) {
			remaining = len(p)
		}
		c.captured.Write(p[:remaining])
	}
	return c.WrapResponseWriter.Write(p)
}

// internalErrorDesc reports the body as an error description when the
// response was a server error, for quick scanning in the log viewer.
func (c *responseBodyCapture) internalErrorDesc() (string, bool) {
	if c.Status() < 500 {
		return "", false
	}
	return c.captured.String(), c.captured.Len() > 0
}

// bodyAsLoggable returns body verbatim when it's valid UTF-8 JSON-safe text,
// otherwise a short placeholder: logging raw binary bytes as JSON text would
// either break the column's encoding or bloat storage for no benefit.
func bodyAsLoggable(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if !utf8.Valid(body) {
		return json.RawMessage(placeholderFor(len(body)))
	}
	var js json.RawMessage
	if json.Valid(body) {
		js = json.RawMessage(body)
		return js
	}
	encoded, _ := json.Marshal(string(body))
	return json.RawMessage(encoded)
}

func placeholderFor(n int) string {
	encoded, _ := json.Marshal("<binary data: " + strconv.Itoa(n) + " bytes>")
	return string(encoded)
}
