// Package httperror is the single vehicle for turning an internal error into
// the wire error shape described in the simulator's external interface:
// {errorCode, errorMessage, requestId}. Handlers return an *HTTPError instead
// of writing the response body directly.
package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/support/log"
	"github.com/stellar/go-stellar-sdk/support/render/httpjson"
)

// HTTPError is the JSON body returned to API clients. Err and RequestID are
// never serialized verbatim into ErrorMessage; RequestID is filled in by
// Render so every response, even ones built before the request ID was known,
// carries it.
type HTTPError struct {
	StatusCode   int            `json:"-"`
	ErrorMessage string         `json:"errorMessage"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
	Err          error          `json:"-"`
}

// ReportErrorFunc reports an unexpected error to the crash tracker.
type ReportErrorFunc func(ctx context.Context, err error, msg string)

type reportError struct {
	fn ReportErrorFunc
}

var defaultReportErrorFunc = reportError{
	fn: func(ctx context.Context, err error, msg string) {
		if msg != "" {
			err = fmt.Errorf("%s: %w", msg, err)
		}
		log.Ctx(ctx).WithStack(err).Errorf("%+v", err)
	},
}

// SetDefaultReportErrorFunc wires InternalError up to the crash tracker.
func SetDefaultReportErrorFunc(fn ReportErrorFunc) {
	defaultReportErrorFunc.fn = fn
}

func (e *HTTPError) Error() string {
	return e.ErrorMessage
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) WithErrorCode(code string) *HTTPError {
	e.ErrorCode = code
	return e
}

func (e *HTTPError) WithRequestID(requestID string) *HTTPError {
	e.RequestID = requestID
	return e
}

// Render writes the error as JSON. If no request ID was set, one is minted
// so clients always have something to report back.
func (e *HTTPError) Render(w http.ResponseWriter) {
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	httpjson.RenderStatus(w, e.StatusCode, e, httpjson.JSON)
}

func New(statusCode int, msg string, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" && originalErr != nil && len(extras) == 0 {
		var hErr *HTTPError
		if errors.As(originalErr, &hErr) && hErr.StatusCode == statusCode {
			return hErr
		}
	}
	return &HTTPError{
		StatusCode:   statusCode,
		ErrorMessage: msg,
		ErrorCode:    code,
		Extras:       extras,
		Err:          originalErr,
	}
}

func NotFound(msg, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "Resource not found."
	}
	return New(http.StatusNotFound, msg, code, originalErr, extras)
}

func Conflict(msg, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "The resource already exists."
	}
	return New(http.StatusConflict, msg, code, originalErr, extras)
}

func BadRequest(msg, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "The request was invalid in some way."
	}
	return New(http.StatusBadRequest, msg, code, originalErr, extras)
}

func Unauthorized(msg, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "Not authorized."
	}
	return New(http.StatusUnauthorized, msg, code, originalErr, extras)
}

func Forbidden(msg, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "You don't have permission to perform this action."
	}
	return New(http.StatusForbidden, msg, code, originalErr, extras)
}

func InternalError(ctx context.Context, msg string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "An internal error occurred while processing this request."
	}
	defaultReportErrorFunc.fn(ctx, originalErr, msg)
	return New(http.StatusInternalServerError, msg, "INTERNAL_ERROR", originalErr, extras)
}

func UnprocessableEntity(msg, code string, originalErr error, extras map[string]any) *HTTPError {
	if msg == "" {
		msg = "Unprocessable entity."
	}
	return New(http.StatusUnprocessableEntity, msg, code, originalErr, extras)
}
