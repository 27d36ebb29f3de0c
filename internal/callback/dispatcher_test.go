package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchSucceedsOnFirstAttempt(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	dispatcher := NewDispatcher(DispatchConfig{Timeout: time.Second, MaxAttempts: 3})
	resp, err := dispatcher.Dispatch(context.Background(), server.URL, map[string]string{"ResultCode": "0"})

	require.NoError(t, err)
	assert.Equal(t, uint(1), resp.AttemptsMade)
	assert.Equal(t, http.StatusOK, resp.FinalStatusCode)
	assert.Equal(t, "0", received["ResultCode"])
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(DispatchConfig{Timeout: time.Second, MaxAttempts: 5})
	resp, err := dispatcher.Dispatch(context.Background(), server.URL, map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, uint(3), resp.AttemptsMade)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

// A server that always fails exhausts MaxAttempts and returns an error,
// the scenario a project with an unreachable callback URL hits.
func TestDispatchExhaustsRetriesOnPersistentFailure(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(DispatchConfig{Timeout: time.Second, MaxAttempts: 3})
	resp, err := dispatcher.Dispatch(context.Background(), server.URL, map[string]string{})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestDispatchReturnsErrorForUnrecoverableRequest(t *testing.T) {
	dispatcher := NewDispatcher(DispatchConfig{Timeout: time.Second, MaxAttempts: 3})
	_, err := dispatcher.Dispatch(context.Background(), "://not-a-url", map[string]string{})
	assert.Error(t, err)
}
