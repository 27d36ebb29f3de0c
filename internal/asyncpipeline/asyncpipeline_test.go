package asyncpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaplay/mpesa-sim/internal/httperror"
)

type fakeRequest struct {
	Amount int `json:"amount"`
}

type fakeAck struct {
	CheckoutRequestID string `json:"checkout_request_id"`
}

type fakeJob struct {
	amount      int
	callbackURL *string
	fail        bool
}

type fakePayload struct {
	TransactionID string
	Succeeded     bool
}

type fakeOperation struct {
	callbackURL *string
	fail        bool
}

var errExecuteFailed = errors.New("execute failed")

func (f *fakeOperation) Init(_ context.Context, req fakeRequest, _ string, _ int64) (fakeAck, fakeJob, *httperror.HTTPError) {
	return fakeAck{CheckoutRequestID: "ws_CO_test"}, fakeJob{amount: req.Amount, callbackURL: f.callbackURL, fail: f.fail}, nil
}

func (f *fakeOperation) Execute(_ context.Context, job fakeJob) (fakePayload, error) {
	if job.fail {
		return fakePayload{}, errExecuteFailed
	}
	return fakePayload{TransactionID: "txn-1", Succeeded: true}, nil
}

func (f *fakeOperation) IntoCallbackPayload(err error, job fakeJob) fakePayload {
	return fakePayload{Succeeded: false}
}

func (f *fakeOperation) CallbackURL(job fakeJob) *string { return job.callbackURL }
func (f *fakeOperation) OriginatorID(job fakeJob) string { return "originator-1" }
func (f *fakeOperation) ExtractTransactionID(payload fakePayload) *string {
	if payload.TransactionID == "" {
		return nil
	}
	id := payload.TransactionID
	return &id
}
func (f *fakeOperation) APIName() string { return "FakeAPI" }

func TestHandleAsyncDispatchesCallbackOnSuccess(t *testing.T) {
	done := make(chan struct{}, 1)
	var gotURL, gotOriginator string
	var gotTransactionID *string
	var gotPayload any

	dispatch := func(ctx context.Context, callbackURL, conversationID, originatorID string, transactionID *string, payload any) {
		gotURL = callbackURL
		gotOriginator = originatorID
		gotTransactionID = transactionID
		gotPayload = payload
		done <- struct{}{}
	}

	callbackURL := "https://example.com/callback"
	op := &fakeOperation{callbackURL: &callbackURL}

	handler := HandleAsync[fakeRequest, fakeAck, fakeJob, fakePayload](op, nil, dispatch)

	body, _ := json.Marshal(fakeRequest{Amount: 100})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rw := httptest.NewRecorder()

	handler(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var ack fakeAck
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &ack))
	assert.Equal(t, "ws_CO_test", ack.CheckoutRequestID)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background Execute never dispatched a callback")
	}

	assert.Equal(t, callbackURL, gotURL)
	assert.Equal(t, "originator-1", gotOriginator)
	require.NotNil(t, gotTransactionID)
	assert.Equal(t, "txn-1", *gotTransactionID)
	payload, ok := gotPayload.(fakePayload)
	require.True(t, ok)
	assert.True(t, payload.Succeeded)
}

func TestHandleAsyncSkipsDispatchWithoutCallbackURL(t *testing.T) {
	called := make(chan struct{}, 1)
	dispatch := func(ctx context.Context, callbackURL, conversationID, originatorID string, transactionID *string, payload any) {
		called <- struct{}{}
	}

	op := &fakeOperation{callbackURL: nil}
	handler := HandleAsync[fakeRequest, fakeAck, fakeJob, fakePayload](op, nil, dispatch)

	body, _ := json.Marshal(fakeRequest{Amount: 50})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rw := httptest.NewRecorder()

	handler(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	select {
	case <-called:
		t.Fatal("dispatch ran despite no callback URL being set")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleAsyncDispatchesFailurePayloadWhenExecuteErrors(t *testing.T) {
	done := make(chan struct{}, 1)
	var gotPayload any

	dispatch := func(ctx context.Context, callbackURL, conversationID, originatorID string, transactionID *string, payload any) {
		gotPayload = payload
		done <- struct{}{}
	}

	callbackURL := "https://example.com/callback"
	op := &fakeOperation{callbackURL: &callbackURL, fail: true}
	handler := HandleAsync[fakeRequest, fakeAck, fakeJob, fakePayload](op, nil, dispatch)

	body, _ := json.Marshal(fakeRequest{Amount: 10})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rw := httptest.NewRecorder()

	handler(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background Execute never dispatched a callback")
	}

	payload, ok := gotPayload.(fakePayload)
	require.True(t, ok)
	assert.False(t, payload.Succeeded)
}
