package callback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/crashtracker"
	"github.com/pesaplay/mpesa-sim/internal/data"
)

// HandleCallbackParams describes one callback to create and deliver.
type HandleCallbackParams struct {
	ProjectID      int64
	CallbackType   data.CallbackType
	URL            string
	ConversationID string
	OriginatorID   *string
	TransactionID  *string
	Payload        any
}

// Orchestrator runs the create → dispatch → update_dispatch_status lifecycle
// for one callback, reimplementing the original three-step flow over
// data.CallbackLogModel. It never returns an error to its caller: it's
// always invoked fire-and-forget from a spawned background job, so failures
// are recorded in CallbackLog.error instead.
type Orchestrator struct {
	dbConnectionPool db.DBConnectionPool
	callbackLogs     *data.CallbackLogModel
	dispatcher       *Dispatcher
	crashTracker     crashtracker.Client
}

func NewOrchestrator(dbConnectionPool db.DBConnectionPool, models *data.Models, dispatcher *Dispatcher, crashTracker crashtracker.Client) *Orchestrator {
	return &Orchestrator{
		dbConnectionPool: dbConnectionPool,
		callbackLogs:     models.CallbackLogs,
		dispatcher:       dispatcher,
		crashTracker:     crashTracker,
	}
}

// HandleCallback creates the CallbackLog row, dispatches it, and records the
// outcome. Intended to run inside the panic-recovering background-job
// wrapper; a panic here is caught by that wrapper, not by HandleCallback
// itself.
func (o *Orchestrator) HandleCallback(ctx context.Context, params HandleCallbackParams) {
	payloadJSON, err := json.Marshal(params.Payload)
	if err != nil {
		log.Ctx(ctx).Errorf("marshaling callback payload: %s", err)
		return
	}

	callbackLog, err := o.callbackLogs.Insert(ctx, o.dbConnectionPool, data.CallbackLogInsert{
		ProjectID:      params.ProjectID,
		ConversationID: params.ConversationID,
		OriginatorID:   params.OriginatorID,
		TransactionID:  params.TransactionID,
		URL:            params.URL,
		CallbackType:   params.CallbackType,
		Payload:        payloadJSON,
	})
	if err != nil {
		log.Ctx(ctx).Errorf("creating callback log: %s", err)
		return
	}

	resp, dispatchErr := o.dispatcher.Dispatch(ctx, params.URL, params.Payload)
	if dispatchErr != nil {
		errMsg := dispatchErr.Error()
		if updateErr := o.callbackLogs.UpdateDeliveryOutcome(ctx, o.dbConnectionPool, callbackLog.ID, data.CallbackFailed, nil, nil, nil, &errMsg); updateErr != nil {
			log.Ctx(ctx).Errorf("recording failed callback delivery: %s", updateErr)
		}
		return
	}

	responseHeaders, err := json.Marshal(resp.FinalHeaders)
	if err != nil {
		log.Ctx(ctx).Errorf("marshaling callback response headers: %s", err)
		responseHeaders = nil
	}
	statusCode := resp.FinalStatusCode
	body := resp.FinalBody
	if updateErr := o.callbackLogs.UpdateDeliveryOutcome(ctx, o.dbConnectionPool, callbackLog.ID, data.CallbackDelivered, &statusCode, &body, responseHeaders, nil); updateErr != nil {
		log.Ctx(ctx).Errorf("recording delivered callback: %s", updateErr)
	}
}

// RunRecovered wraps fn so a panic becomes a logged+reported error instead
// of crashing the goroutine it runs in, used for every fire-and-forget job
// spawned off a request handler (callback dispatch, async pipeline execute
// steps, STK auto-resolution).
func RunRecovered(ctx context.Context, crashTracker crashtracker.Client, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in background job %q: %v", name, r)
			if crashTracker != nil {
				crashTracker.LogAndReportErrors(ctx, err, "")
			} else {
				log.Ctx(ctx).Error(err)
			}
		}
	}()
	fn()
}
