package httphandler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"github.com/pesaplay/mpesa-sim/internal/asyncpipeline"
	"github.com/pesaplay/mpesa-sim/internal/callback"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/httperror"
	"github.com/pesaplay/mpesa-sim/internal/ledger"
	"github.com/pesaplay/mpesa-sim/internal/simulator"
)

type b2cRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

type b2cAck struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

type b2cResultParameter struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

type b2cResult struct {
	ResultType               int                   `json:"ResultType"`
	ResultCode               int                   `json:"ResultCode"`
	ResultDesc               string                `json:"ResultDesc"`
	OriginatorConversationID string                `json:"OriginatorConversationID"`
	ConversationID           string                `json:"ConversationID"`
	TransactionID            string                `json:"TransactionID"`
	ResultParameters         *b2cResultParameterSet `json:"ResultParameters,omitempty"`
}

type b2cResultParameterSet struct {
	ResultParameter []b2cResultParameter `json:"ResultParameter"`
}

type b2cCallbackPayload struct {
	Result b2cResult `json:"Result"`
}

type b2cJob struct {
	project                  *data.Project
	sourceAccountID          int64
	payeeAccountID           int64
	payeePhone               string
	amountCents              int64
	resultURL                string
	originatorConversationID string
	conversationID           string
	occasion                 string
}

type b2cOperation struct {
	state *simulator.State
}

func B2CHandler(state *simulator.State) http.HandlerFunc {
	dispatch := func(ctx context.Context, callbackURL, conversationID, originatorID string, transactionID *string, payload any) {
		callback.RunRecovered(ctx, state.CrashTracker, "b2c_callback", func() {
			state.Callbacks.HandleCallback(ctx, callback.HandleCallbackParams{
				ProjectID:      state.ProjectID,
				CallbackType:   data.CallbackTypeB2CResult,
				URL:            callbackURL,
				ConversationID: conversationID,
				OriginatorID:   &originatorID,
				TransactionID:  transactionID,
				Payload:        payload,
			})
		})
	}
	return asyncpipeline.HandleAsync[b2cRequest, b2cAck, *b2cJob, b2cCallbackPayload](
		&b2cOperation{state: state}, state.CrashTracker, dispatch)
}

func (op *b2cOperation) APIName() string { return "b2c" }

func (op *b2cOperation) Init(ctx context.Context, req b2cRequest, conversationID string, apiKeyProjectID int64) (b2cAck, *b2cJob, *httperror.HTTPError) {
	if req.ResultURL == "" || !govalidator.IsURL(req.ResultURL) {
		return b2cAck{}, nil, httperror.BadRequest("ResultURL is required and must be a valid URL.", "INVALID_RESULT_URL", nil, nil)
	}
	if req.Amount <= 0 {
		return b2cAck{}, nil, httperror.BadRequest("Amount must be a positive integer.", "INVALID_AMOUNT", nil, nil)
	}
	phone, err := validateKenyanMSISDN(req.PartyB)
	if err != nil {
		return b2cAck{}, nil, httperror.BadRequest("PartyB must be a valid Kenyan MSISDN.", "INVALID_PHONE", err, nil)
	}

	business, err := op.state.Models.Businesses.GetByShortCode(ctx, op.state.DBConnectionPool, req.PartyA)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return b2cAck{}, nil, httperror.NotFound("No business registered with this short code.", "BUSINESS_NOT_FOUND", nil, nil)
		}
		return b2cAck{}, nil, httperror.InternalError(ctx, "resolving b2c source business", err, nil)
	}

	payee, err := op.state.Models.Users.GetByPhone(ctx, op.state.DBConnectionPool, phone)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return b2cAck{}, nil, httperror.NotFound("No user registered with this phone number.", "USER_NOT_FOUND", nil, nil)
		}
		return b2cAck{}, nil, httperror.InternalError(ctx, "resolving b2c payee", err, nil)
	}

	project, err := op.state.Project(ctx)
	if err != nil {
		return b2cAck{}, nil, httperror.InternalError(ctx, "loading project", err, nil)
	}

	originatorConversationID := uuid.NewString()

	job := &b2cJob{
		project:                  project,
		sourceAccountID:          business.UtilityAccID,
		payeeAccountID:           payee.AccountID,
		payeePhone:               payee.Phone,
		amountCents:              req.Amount * 100,
		resultURL:                req.ResultURL,
		originatorConversationID: originatorConversationID,
		conversationID:           conversationID,
		occasion:                 req.Occasion,
	}

	ack := b2cAck{
		ConversationID:           conversationID,
		OriginatorConversationID: originatorConversationID,
		ResponseCode:             "0",
		ResponseDescription:      "Accept the service request successfully.",
	}
	return ack, job, nil
}

func (op *b2cOperation) Execute(ctx context.Context, job *b2cJob) (b2cCallbackPayload, error) {
	time.Sleep(time.Duration(job.project.StkDelayMs) * time.Millisecond)

	resultCode := resultCodeSuccess
	switch job.project.SimulationMode {
	case data.SimulationAlwaysSuccess, data.SimulationRealistic:
		resultCode = resultCodeSuccess
	case data.SimulationAlwaysFail:
		resultCode = stkFailureCodes[rand.Intn(len(stkFailureCodes))]
	case data.SimulationRandom:
		codes := append([]int{resultCodeSuccess}, stkFailureCodes...)
		resultCode = codes[rand.Intn(len(codes))]
	}

	if resultCode == resultCodeSuccess {
		txn, err := op.transfer(ctx, job)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				resultCode = resultCodeInsufficientFunds
			} else {
				return op.failurePayload(job, resultCodeUnknownErrorOccurs), fmt.Errorf("executing b2c transfer: %w", err)
			}
		} else {
			return op.successPayload(ctx, job, txn), nil
		}
	}

	return op.failurePayload(job, resultCode), nil
}

func (op *b2cOperation) transfer(ctx context.Context, job *b2cJob) (*data.Transaction, error) {
	return runTransfer(ctx, op.state, &job.sourceAccountID, job.payeeAccountID, job.amountCents, "b2c")
}

func (op *b2cOperation) successPayload(ctx context.Context, job *b2cJob, txn *data.Transaction) b2cCallbackPayload {
	op.state.DomainEvents.TransactionCommitted(txn)

	// B2CWorkingAccountAvailableFunds/B2CUtilityAccountAvailableFunds both
	// read the same Utility account balance here since the simulator keeps
	// one funding account per business rather than Daraja's separate working
	// and utility accounts.
	var sourceBalanceCents int64
	if account, err := op.state.Models.Accounts.GetByID(ctx, op.state.DBConnectionPool, job.sourceAccountID); err == nil {
		sourceBalanceCents = account.BalanceCents
	}
	sourceBalance := sourceBalanceCents / 100

	return b2cCallbackPayload{Result: b2cResult{
		ResultType:               0,
		ResultCode:               resultCodeSuccess,
		ResultDesc:               "The service request is processed successfully.",
		OriginatorConversationID: job.originatorConversationID,
		ConversationID:           job.conversationID,
		TransactionID:            txn.ID,
		ResultParameters: &b2cResultParameterSet{ResultParameter: []b2cResultParameter{
			{Key: "TransactionAmount", Value: job.amountCents / 100},
			{Key: "TransactionReceipt", Value: txn.ID},
			{Key: "B2CWorkingAccountAvailableFunds", Value: sourceBalance},
			{Key: "B2CUtilityAccountAvailableFunds", Value: sourceBalance},
			{Key: "B2CRecipientIsRegisteredCustomer", Value: "Y"},
			{Key: "TransactionCompletedDateTime", Value: timeNowCompact()},
		}},
	}}
}

func (op *b2cOperation) failurePayload(job *b2cJob, resultCode int) b2cCallbackPayload {
	return b2cCallbackPayload{Result: b2cResult{
		ResultType:               1,
		ResultCode:               resultCode,
		ResultDesc:               resultDescFor(resultCode),
		OriginatorConversationID: job.originatorConversationID,
		ConversationID:           job.conversationID,
	}}
}

func (op *b2cOperation) IntoCallbackPayload(err error, job *b2cJob) b2cCallbackPayload {
	return op.failurePayload(job, resultCodeUnknownErrorOccurs)
}

func (op *b2cOperation) CallbackURL(job *b2cJob) *string {
	return &job.resultURL
}

func (op *b2cOperation) OriginatorID(job *b2cJob) string {
	return job.occasion
}

func (op *b2cOperation) ExtractTransactionID(payload b2cCallbackPayload) *string {
	if payload.Result.TransactionID == "" {
		return nil
	}
	id := payload.Result.TransactionID
	return &id
}
