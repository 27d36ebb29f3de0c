package httphandler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/nyaruka/phonenumbers"

	"github.com/pesaplay/mpesa-sim/internal/asyncpipeline"
	"github.com/pesaplay/mpesa-sim/internal/callback"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/httperror"
	"github.com/pesaplay/mpesa-sim/internal/ledger"
	"github.com/pesaplay/mpesa-sim/internal/simulator"
	"github.com/pesaplay/mpesa-sim/internal/stkregistry"
)

// STK Daraja result codes, the subset this simulator actually produces.
const (
	resultCodeSuccess            = 0
	resultCodeInsufficientFunds  = 1
	resultCodeCancelled          = 1032
	resultCodeTimeoutOrOffline   = 1037
	resultCodeWrongPINOrFailed   = 2001
	resultCodeUnknownErrorOccurs = 9999
)

var stkFailureCodes = []int{resultCodeInsufficientFunds, resultCodeCancelled, resultCodeTimeoutOrOffline, resultCodeWrongPINOrFailed, resultCodeUnknownErrorOccurs}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushAck struct {
	MerchantRequestID  string `json:"MerchantRequestID"`
	CheckoutRequestID  string `json:"CheckoutRequestID"`
	ResponseCode       string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage    string `json:"CustomerMessage"`
}

type stkCallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type stkCallbackMetadata struct {
	Item []stkCallbackItem `json:"Item"`
}

type stkCallback struct {
	MerchantRequestID string               `json:"MerchantRequestID"`
	CheckoutRequestID string               `json:"CheckoutRequestID"`
	ResultCode        int                  `json:"ResultCode"`
	ResultDesc        string               `json:"ResultDesc"`
	CallbackMetadata  *stkCallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type stkCallbackBody struct {
	StkCallback stkCallback `json:"stkCallback"`
}

type stkCallbackPayload struct {
	Body stkCallbackBody `json:"Body"`
}

type stkPushJob struct {
	project           *data.Project
	payerAccountID    int64
	payerPhone        string
	payerPIN          string
	payeeAccountID    int64
	amountCents       int64
	callbackURL       string
	merchantRequestID string
	checkoutRequestID string
	accountReference  string
}

// stkPushOperation implements asyncpipeline.AsyncOperation for STK Push.
type stkPushOperation struct {
	state *simulator.State
}

func STKPushHandler(state *simulator.State) http.HandlerFunc {
	dispatch := func(ctx context.Context, callbackURL, conversationID, originatorID string, transactionID *string, payload any) {
		callback.RunRecovered(ctx, state.CrashTracker, "stk_push_callback", func() {
			state.Callbacks.HandleCallback(ctx, callback.HandleCallbackParams{
				ProjectID:      state.ProjectID,
				CallbackType:   data.CallbackTypeSTKPush,
				URL:            callbackURL,
				ConversationID: conversationID,
				OriginatorID:   &originatorID,
				TransactionID:  transactionID,
				Payload:        payload,
			})
		})
	}
	return asyncpipeline.HandleAsync[stkPushRequest, stkPushAck, *stkPushJob, stkCallbackPayload](
		&stkPushOperation{state: state}, state.CrashTracker, dispatch)
}

func (op *stkPushOperation) APIName() string { return "stk_push" }

func (op *stkPushOperation) Init(ctx context.Context, req stkPushRequest, conversationID string, apiKeyProjectID int64) (stkPushAck, *stkPushJob, *httperror.HTTPError) {
	if req.CallBackURL == "" || !govalidator.IsURL(req.CallBackURL) {
		return stkPushAck{}, nil, httperror.BadRequest("CallBackURL is required and must be a valid URL.", "INVALID_CALLBACK_URL", nil, nil)
	}
	if req.Amount <= 0 {
		return stkPushAck{}, nil, httperror.BadRequest("Amount must be a positive integer.", "INVALID_AMOUNT", nil, nil)
	}
	phone, err := validateKenyanMSISDN(req.PhoneNumber)
	if err != nil {
		return stkPushAck{}, nil, httperror.BadRequest("PhoneNumber must be a valid Kenyan MSISDN.", "INVALID_PHONE", err, nil)
	}

	payer, err := op.state.Models.Users.GetByPhone(ctx, op.state.DBConnectionPool, phone)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return stkPushAck{}, nil, httperror.NotFound("No user registered with this phone number.", "USER_NOT_FOUND", nil, nil)
		}
		return stkPushAck{}, nil, httperror.InternalError(ctx, "resolving STK payer", err, nil)
	}

	business, err := op.state.Models.Businesses.GetByShortCode(ctx, op.state.DBConnectionPool, req.BusinessShortCode)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return stkPushAck{}, nil, httperror.NotFound("No business registered with this short code.", "BUSINESS_NOT_FOUND", nil, nil)
		}
		return stkPushAck{}, nil, httperror.InternalError(ctx, "resolving STK payee business", err, nil)
	}

	project, err := op.state.Project(ctx)
	if err != nil {
		return stkPushAck{}, nil, httperror.InternalError(ctx, "loading project", err, nil)
	}

	checkoutRequestID := stkregistry.GenerateCheckoutRequestID()
	merchantRequestID := stkregistry.GenerateMerchantRequestID()

	job := &stkPushJob{
		project:           project,
		payerAccountID:    payer.AccountID,
		payerPhone:        payer.Phone,
		payerPIN:          payer.PIN,
		payeeAccountID:    business.UtilityAccID,
		amountCents:       req.Amount * 100,
		callbackURL:       req.CallBackURL,
		merchantRequestID: merchantRequestID,
		checkoutRequestID: checkoutRequestID,
		accountReference:  req.AccountReference,
	}

	ack := stkPushAck{
		MerchantRequestID:   merchantRequestID,
		CheckoutRequestID:   checkoutRequestID,
		ResponseCode:        "0",
		ResponseDescription: "Success.",
		CustomerMessage:     "Success.",
	}
	return ack, job, nil
}

func (op *stkPushOperation) Execute(ctx context.Context, job *stkPushJob) (stkCallbackPayload, error) {
	responses := op.state.Registry.RegisterID(job.checkoutRequestID)

	resultCode := op.resolveResultCode(ctx, job, responses)

	if resultCode == resultCodeSuccess {
		txn, err := op.transfer(ctx, job)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				resultCode = resultCodeInsufficientFunds
			} else {
				return op.failurePayload(job, resultCodeUnknownErrorOccurs), fmt.Errorf("executing stk transfer: %w", err)
			}
		} else {
			return op.successPayload(job, txn), nil
		}
	}

	return op.failurePayload(job, resultCode), nil
}

func (op *stkPushOperation) resolveResultCode(ctx context.Context, job *stkPushJob, responses <-chan stkregistry.UserResponse) int {
	mode := job.project.SimulationMode

	if mode == data.SimulationRealistic {
		deadline := time.Duration(job.project.StkDelayMs+job.project.SafetyWindowMs) * time.Millisecond
		resp := op.state.Registry.Await(ctx, job.checkoutRequestID, responses, deadline)
		switch resp.Kind {
		case stkregistry.ResponseAccepted:
			if resp.PIN != job.payerPIN {
				return resultCodeWrongPINOrFailed
			}
			return resultCodeSuccess
		case stkregistry.ResponseCancelled:
			return resultCodeCancelled
		case stkregistry.ResponseTimeout, stkregistry.ResponseOffline:
			return resultCodeTimeoutOrOffline
		case stkregistry.ResponseFailed:
			return resultCodeWrongPINOrFailed
		default:
			return resultCodeUnknownErrorOccurs
		}
	}

	time.Sleep(time.Duration(job.project.StkDelayMs) * time.Millisecond)

	switch mode {
	case data.SimulationAlwaysSuccess:
		return resultCodeSuccess
	case data.SimulationAlwaysFail:
		return stkFailureCodes[rand.Intn(len(stkFailureCodes))]
	case data.SimulationRandom:
		codes := append([]int{resultCodeSuccess}, stkFailureCodes...)
		return codes[rand.Intn(len(codes))]
	default:
		return resultCodeUnknownErrorOccurs
	}
}

func (op *stkPushOperation) transfer(ctx context.Context, job *stkPushJob) (*data.Transaction, error) {
	return runTransfer(ctx, op.state, &job.payerAccountID, job.payeeAccountID, job.amountCents, "stk_push")
}

func (op *stkPushOperation) successPayload(job *stkPushJob, txn *data.Transaction) stkCallbackPayload {
	op.state.DomainEvents.TransactionCommitted(txn)
	return stkCallbackPayload{Body: stkCallbackBody{StkCallback: stkCallback{
		MerchantRequestID: job.merchantRequestID,
		CheckoutRequestID: job.checkoutRequestID,
		ResultCode:        resultCodeSuccess,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &stkCallbackMetadata{Item: []stkCallbackItem{
			{Name: "Amount", Value: job.amountCents / 100},
			{Name: "MpesaReceiptNumber", Value: txn.ID},
			{Name: "TransactionDate", Value: timeNowCompact()},
			{Name: "PhoneNumber", Value: job.payerPhone},
		}},
	}}}
}

func (op *stkPushOperation) failurePayload(job *stkPushJob, resultCode int) stkCallbackPayload {
	return stkCallbackPayload{Body: stkCallbackBody{StkCallback: stkCallback{
		MerchantRequestID: job.merchantRequestID,
		CheckoutRequestID: job.checkoutRequestID,
		ResultCode:        resultCode,
		ResultDesc:        resultDescFor(resultCode),
	}}}
}

func (op *stkPushOperation) IntoCallbackPayload(err error, job *stkPushJob) stkCallbackPayload {
	return op.failurePayload(job, resultCodeUnknownErrorOccurs)
}

func (op *stkPushOperation) CallbackURL(job *stkPushJob) *string {
	return &job.callbackURL
}

func (op *stkPushOperation) OriginatorID(job *stkPushJob) string {
	return job.accountReference
}

func (op *stkPushOperation) ExtractTransactionID(payload stkCallbackPayload) *string {
	for _, item := range payload.Body.StkCallback.CallbackMetadata.itemsOrNil() {
		if item.Name == "MpesaReceiptNumber" {
			if id, ok := item.Value.(string); ok {
				return &id
			}
		}
	}
	return nil
}

func (m *stkCallbackMetadata) itemsOrNil() []stkCallbackItem {
	if m == nil {
		return nil
	}
	return m.Item
}

func resultDescFor(code int) string {
	switch code {
	case resultCodeInsufficientFunds:
		return "The balance is insufficient for the transaction."
	case resultCodeCancelled:
		return "Request cancelled by user."
	case resultCodeTimeoutOrOffline:
		return "DS timeout user cannot be reached."
	case resultCodeWrongPINOrFailed:
		return "The initiator information is invalid."
	default:
		return "The service request failed."
	}
}

// validateKenyanMSISDN parses phone as a Kenyan mobile number and returns it
// normalized to E.164 (no leading '+'), per the Daraja convention of
// 2547XXXXXXXX.
func validateKenyanMSISDN(phone string) (string, error) {
	parsed, err := phonenumbers.Parse(phone, "KE")
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("not a valid Kenyan number")
	}
	if phonenumbers.GetNumberType(parsed) != phonenumbers.MOBILE {
		return "", fmt.Errorf("not a mobile number")
	}
	formatted := phonenumbers.Format(parsed, phonenumbers.E164)
	return formatted[1:], nil
}

func timeNowCompact() string {
	return time.Now().Format("20060102150405")
}
