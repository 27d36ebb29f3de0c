package stkregistry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	checkoutRequestID, responses := registry.Register()
	require.True(t, strings.HasPrefix(checkoutRequestID, "ws_CO_"))

	registry.Resolve(checkoutRequestID, UserResponse{Kind: ResponseAccepted, PIN: "1234"})

	resp := registry.Await(context.Background(), checkoutRequestID, responses, time.Second)
	assert.Equal(t, ResponseAccepted, resp.Kind)
	assert.Equal(t, "1234", resp.PIN)
}

func TestResolveUnknownIDIsANoop(t *testing.T) {
	registry := NewRegistry()
	assert.NotPanics(t, func() {
		registry.Resolve("does-not-exist", UserResponse{Kind: ResponseAccepted})
	})
}

func TestAwaitTimesOutAndEvictsEntry(t *testing.T) {
	registry := NewRegistry()
	checkoutRequestID, responses := registry.Register()

	resp := registry.Await(context.Background(), checkoutRequestID, responses, 10*time.Millisecond)
	assert.Equal(t, ResponseTimeout, resp.Kind)

	// A late resolve against the now-evicted id must not block or panic.
	done := make(chan struct{})
	go func() {
		registry.Resolve(checkoutRequestID, UserResponse{Kind: ResponseAccepted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resolve blocked on an evicted checkout_request_id")
	}
}

func TestAwaitReturnsTimeoutOnContextCancellation(t *testing.T) {
	registry := NewRegistry()
	checkoutRequestID, responses := registry.Register()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := registry.Await(ctx, checkoutRequestID, responses, time.Second)
	assert.Equal(t, ResponseTimeout, resp.Kind)
}

func TestRegisterIDUsesTheGivenID(t *testing.T) {
	registry := NewRegistry()
	responses := registry.RegisterID("ws_CO_fixed")

	registry.Resolve("ws_CO_fixed", UserResponse{Kind: ResponseCancelled, Message: "user cancelled"})

	resp := registry.Await(context.Background(), "ws_CO_fixed", responses, time.Second)
	assert.Equal(t, ResponseCancelled, resp.Kind)
	assert.Equal(t, "user cancelled", resp.Message)
}

func TestGenerateMerchantRequestIDShape(t *testing.T) {
	id := GenerateMerchantRequestID()
	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 5)
	assert.Len(t, parts[1], 8)
	assert.Len(t, parts[2], 1)
}
