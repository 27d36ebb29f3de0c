// Package asyncpipeline expresses the two-phase ack/execute/callback
// contract shared by STK Push and B2C behind a single generic handler,
// reimplementing the original PpgAsyncRequest trait idiomatically: an
// interface plus type parameters instead of an impl-Trait future return.
package asyncpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/internal/crashtracker"
	"github.com/pesaplay/mpesa-sim/internal/httperror"
	"github.com/pesaplay/mpesa-sim/internal/simulator/middleware"
)

// AsyncOperation is implemented once per simulated two-phase API (STK Push,
// B2C). Req is the inbound wire request, Ack the synchronous response body,
// and Job the state threaded from Init into the background Execute step.
type AsyncOperation[Req any, Ack any, Job any, Payload any] interface {
	// Init validates req and returns the synchronous ack plus the job state
	// the background step needs, or an ApiError to surface immediately.
	Init(ctx context.Context, req Req, conversationID string, apiKeyProjectID int64) (Ack, Job, *httperror.HTTPError)
	// Execute runs in a spawned goroutine after the ack has been sent.
	Execute(ctx context.Context, job Job) (Payload, error)
	// IntoCallbackPayload derives the callback body to send when Execute
	// fails, so the callback still carries a well-formed ResultCode.
	IntoCallbackPayload(err error, job Job) Payload
	CallbackURL(job Job) *string
	OriginatorID(job Job) string
	ExtractTransactionID(payload Payload) *string
	APIName() string
}

// Dispatch is the seam HandleAsync uses to deliver the final payload; it's
// internal/callback.Orchestrator.HandleCallback in production code, reduced
// here to decouple this package from the callback package's concrete types.
type Dispatch func(ctx context.Context, callbackURL string, conversationID string, originatorID string, transactionID *string, payload any)

// HandleAsync is the generic chi handler wired for both STK Push and B2C. It
// validates nothing itself beyond decoding the request body — bearer-token
// validation happens in the middleware chain in front of it.
func HandleAsync[Req any, Ack any, Job any, Payload any](
	op AsyncOperation[Req, Ack, Job, Payload],
	crashTracker crashtracker.Client,
	dispatch Dispatch,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httperror.BadRequest("malformed request body", "BAD_REQUEST", err, nil).Render(w)
			return
		}

		projectID, _ := ctx.Value(middleware.ProjectIDContextKey).(int64)
		conversationID := NewConversationID()

		ack, job, apiErr := op.Init(ctx, req, conversationID, projectID)
		if apiErr != nil {
			apiErr.Render(w)
			return
		}

		writeJSON(w, http.StatusOK, ack)

		// The background task outlives the request: it captures only the
		// job value and context-free dependencies, never the ResponseWriter.
		go runExecute(op, crashTracker, dispatch, conversationID, job)
	}
}

func runExecute[Req any, Ack any, Job any, Payload any](
	op AsyncOperation[Req, Ack, Job, Payload],
	crashTracker crashtracker.Client,
	dispatch Dispatch,
	conversationID string,
	job Job,
) {
	ctx := context.Background()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic executing %s job: %v", op.APIName(), rec)
			if crashTracker != nil {
				crashTracker.LogAndReportErrors(ctx, err, "")
			} else {
				log.Error(err)
			}
		}
	}()

	payload, err := op.Execute(ctx, job)
	if err != nil {
		payload = op.IntoCallbackPayload(err, job)
	}

	callbackURL := op.CallbackURL(job)
	if callbackURL == nil || *callbackURL == "" {
		return
	}

	transactionID := op.ExtractTransactionID(payload)
	dispatch(ctx, *callbackURL, conversationID, op.OriginatorID(job), transactionID, payload)
}

// NewConversationID mints the opaque internal conversation id threaded
// through Init/Execute/callback delivery.
func NewConversationID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
