package httphandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/internal/callback"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/httperror"
	"github.com/pesaplay/mpesa-sim/internal/ledger"
	"github.com/pesaplay/mpesa-sim/internal/simulator"
	"github.com/pesaplay/mpesa-sim/internal/utils"
)

type c2bRegisterRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

type c2bRegisterResponse struct {
	ResponseCode               string `json:"ResponseCode"`
	OriginatorCoversationID     string `json:"OriginatorCoversationID"`
	ResponseDescription        string `json:"ResponseDescription"`
}

// C2BRegisterHandler implements POST /mpesa/c2b/v1/registerurl: synchronous,
// idempotent exactly once per paybill/till (both URLs must be unset).
func C2BRegisterHandler(state *simulator.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req c2bRegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			httperror.BadRequest("malformed request body", "BAD_REQUEST", err, nil).Render(w)
			return
		}
		if !govalidator.IsURL(req.ConfirmationURL) || !govalidator.IsURL(req.ValidationURL) {
			httperror.BadRequest("ConfirmationURL and ValidationURL must be valid URLs.", "INVALID_URL", nil, nil).Render(w)
			return
		}
		responseType := data.ResponseType(req.ResponseType)
		if responseType != data.ResponseTypeCompleted && responseType != data.ResponseTypeCancelled {
			httperror.BadRequest("ResponseType must be Completed or Cancelled.", "INVALID_RESPONSE_TYPE", nil, nil).Render(w)
			return
		}

		project, err := state.Project(ctx)
		if err != nil {
			httperror.InternalError(ctx, "loading project", err, nil).Render(w)
			return
		}
		business, err := state.Business(ctx, project)
		if err != nil {
			httperror.InternalError(ctx, "loading business", err, nil).Render(w)
			return
		}

		accountID, setErr := setC2BAccountURLs(ctx, state, business.ID, req.ShortCode, req.ValidationURL, req.ConfirmationURL, responseType)
		if setErr != nil {
			if errors.Is(setErr, data.ErrRecordNotFound) {
				httperror.NotFound("No paybill or till registered with this short code.", "SHORTCODE_NOT_FOUND", nil, nil).Render(w)
				return
			}
			if errors.Is(setErr, data.ErrRecordExists) {
				httperror.BadRequest("Validation and confirmation URLs are already registered for this short code.", "UrlsAlreadyRegistered", nil, nil).Render(w)
				return
			}
			httperror.InternalError(ctx, "registering c2b urls", setErr, nil).Render(w)
			return
		}
		_ = accountID

		writeJSON(w, http.StatusOK, c2bRegisterResponse{
			ResponseCode:           "000000",
			OriginatorCoversationID: uuid.NewString(),
			ResponseDescription:    "Success",
		})
	}
}

// setC2BAccountURLs tries the paybill table first, then till, since a
// ShortCode can belong to either.
func setC2BAccountURLs(ctx context.Context, state *simulator.State, businessID int64, shortCode, validationURL, confirmationURL string, responseType data.ResponseType) (int64, error) {
	paybill, err := state.Models.PaybillAccounts.GetByNumber(ctx, state.DBConnectionPool, businessID, shortCode)
	if err == nil {
		return paybill.AccountID, state.Models.PaybillAccounts.SetURLs(ctx, state.DBConnectionPool, paybill.AccountID, validationURL, confirmationURL, responseType)
	}
	if !errors.Is(err, data.ErrRecordNotFound) {
		return 0, err
	}

	till, err := state.Models.TillAccounts.GetByNumber(ctx, state.DBConnectionPool, businessID, shortCode)
	if err != nil {
		return 0, err
	}
	return till.AccountID, state.Models.TillAccounts.SetURLs(ctx, state.DBConnectionPool, till.AccountID, validationURL, confirmationURL, responseType)
}

type c2bSimulateRequest struct {
	ShortCode     string `json:"ShortCode"`
	CommandID     string `json:"CommandID"`
	Amount        int64  `json:"Amount"`
	Msisdn        string `json:"Msisdn"`
	BillRefNumber string `json:"BillRefNumber"`
}

type c2bCallbackPayload struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
}

type c2bValidationResult struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type c2bSimulateResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// C2BSimulateHandler implements POST /mpesa/c2b/v1/simulate: synchronously
// acknowledges the request, then drives Validation (awaited) and, only on a
// ResultCode "0" validation response, Confirmation + the ledger transfer.
func C2BSimulateHandler(state *simulator.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req c2bSimulateRequest
		if err := decodeJSON(r, &req); err != nil {
			httperror.BadRequest("malformed request body", "BAD_REQUEST", err, nil).Render(w)
			return
		}
		if req.Amount <= 0 {
			httperror.BadRequest("Amount must be a positive integer.", "INVALID_AMOUNT", nil, nil).Render(w)
			return
		}
		phone, err := validateKenyanMSISDN(req.Msisdn)
		if err != nil {
			httperror.BadRequest("Msisdn must be a valid Kenyan MSISDN.", "INVALID_PHONE", err, nil).Render(w)
			return
		}

		project, err := state.Project(ctx)
		if err != nil {
			httperror.InternalError(ctx, "loading project", err, nil).Render(w)
			return
		}
		business, err := state.Business(ctx, project)
		if err != nil {
			httperror.InternalError(ctx, "loading business", err, nil).Render(w)
			return
		}

		transactionType, validationURL, confirmationURL, toAccountID, err := resolveC2BDestination(ctx, state, business.ID, req)
		if err != nil {
			if errors.Is(err, data.ErrRecordNotFound) {
				httperror.NotFound("No paybill or till registered with this short code.", "SHORTCODE_NOT_FOUND", nil, nil).Render(w)
				return
			}
			httperror.InternalError(ctx, "resolving c2b destination", err, nil).Render(w)
			return
		}

		payer, err := state.Models.Users.GetByPhone(ctx, state.DBConnectionPool, phone)
		if err != nil {
			if errors.Is(err, data.ErrRecordNotFound) {
				httperror.NotFound("No user registered with this phone number.", "USER_NOT_FOUND", nil, nil).Render(w)
				return
			}
			httperror.InternalError(ctx, "resolving c2b payer", err, nil).Render(w)
			return
		}

		writeJSON(w, http.StatusOK, c2bSimulateResponse{ResponseCode: "0", ResponseDescription: "Accept the service request successfully."})

		conversationID := uuid.NewString()
		transID := uuid.NewString()
		payload := c2bCallbackPayload{
			TransactionType:   transactionType,
			TransID:           transID,
			TransTime:         timeNowCompact(),
			TransAmount:       utils.FormatAmount(req.Amount),
			BusinessShortCode: req.ShortCode,
			BillRefNumber:     req.BillRefNumber,
			MSISDN:            phone,
		}

		go callback.RunRecovered(context.Background(), state.CrashTracker, "c2b_validation_and_confirmation", func() {
			runC2BValidationAndConfirmation(state, project, payer.AccountID, toAccountID, req.Amount*100, conversationID, validationURL, confirmationURL, payload)
		})
	}
}

func resolveC2BDestination(ctx context.Context, state *simulator.State, businessID int64, req c2bSimulateRequest) (transactionType string, validationURL string, confirmationURL string, toAccountID int64, err error) {
	paybill, pErr := state.Models.PaybillAccounts.GetByNumber(ctx, state.DBConnectionPool, businessID, req.ShortCode)
	if pErr == nil {
		return "Pay Bill", strOrEmpty(paybill.ValidationURL), strOrEmpty(paybill.ConfirmationURL), paybill.AccountID, nil
	}
	if !errors.Is(pErr, data.ErrRecordNotFound) {
		return "", "", "", 0, pErr
	}

	till, tErr := state.Models.TillAccounts.GetByNumber(ctx, state.DBConnectionPool, businessID, req.ShortCode)
	if tErr != nil {
		return "", "", "", 0, tErr
	}
	return "Buy Goods", strOrEmpty(till.ValidationURL), strOrEmpty(till.ConfirmationURL), till.AccountID, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// runC2BValidationAndConfirmation is the background continuation of a C2B
// simulate call: it waits on the merchant's Validation response before
// deciding whether to move money and fire Confirmation, matching the spec's
// "no ledger write, no Confirmation, on non-zero/timeout Validation" rule.
func runC2BValidationAndConfirmation(state *simulator.State, project *data.Project, fromAccountID, toAccountID, amountCents int64, conversationID, validationURL, confirmationURL string, payload c2bCallbackPayload) {
	ctx := context.Background()

	if validationURL != "" {
		resp, err := state.Dispatcher.Dispatch(ctx, validationURL, payload)
		if err != nil || !validationApproved(resp) {
			log.Errorf("c2b validation rejected or failed for conversation %s: %v", conversationID, err)
			return
		}
	}

	txn, err := runTransfer(ctx, state, &fromAccountID, toAccountID, amountCents, "c2b")
	if err != nil {
		if !errors.Is(err, ledger.ErrInsufficientFunds) {
			log.Errorf("c2b transfer failed for conversation %s: %v", conversationID, err)
		}
		return
	}
	state.DomainEvents.TransactionCommitted(txn)

	if confirmationURL == "" {
		return
	}
	callback.RunRecovered(ctx, state.CrashTracker, "c2b_confirmation_callback", func() {
		originatorID := payload.BillRefNumber
		transactionID := txn.ID
		state.Callbacks.HandleCallback(ctx, callback.HandleCallbackParams{
			ProjectID:      project.ID,
			CallbackType:   data.CallbackTypeC2BConfirmation,
			URL:            confirmationURL,
			ConversationID: conversationID,
			OriginatorID:   &originatorID,
			TransactionID:  &transactionID,
			Payload:        payload,
		})
	})
}

func validationApproved(resp *callback.DispatchResponse) bool {
	if resp == nil {
		return false
	}
	var result c2bValidationResult
	if err := decodeBody(resp.FinalBody, &result); err != nil {
		return false
	}
	return result.ResultCode == "0"
}
