// Package callback delivers asynchronous Daraja callbacks (STK, B2C, C2B
// validation/confirmation) to a project's registered URL, retrying on
// failure, and records the outcome in CallbackLog.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// DispatchConfig tunes one Dispatcher. Timeout bounds a single HTTP
// attempt; MaxAttempts bounds the whole dispatch including the first try.
type DispatchConfig struct {
	Timeout     time.Duration
	MaxAttempts uint
}

var DefaultDispatchConfig = DispatchConfig{
	Timeout:     30 * time.Second,
	MaxAttempts: 5,
}

// DispatchResponse is the final successful attempt's result.
type DispatchResponse struct {
	FinalStatusCode int
	FinalBody       string
	FinalHeaders    map[string]string
	AttemptsMade    uint
}

// Dispatcher POSTs a JSON payload to a callback URL with exponential
// backoff and jitter, grounded on the same retry-go usage as the teacher's
// Circle payment dispatcher.
type Dispatcher struct {
	httpClient *http.Client
	config     DispatchConfig
}

func NewDispatcher(config DispatchConfig) *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// backoffWithJitter implements the spec's exact backoff law:
// 2^attempt * 500ms + uniform(0, 250ms). retry-go counts attempts from 1.
func backoffWithJitter(attempt uint, _ error, _ *retry.Config) time.Duration {
	backoff := time.Duration(1<<attempt) * 500 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	return backoff + jitter
}

// Dispatch POSTs payload as JSON to url, retrying non-2xx responses and
// network errors per DispatchConfig.MaxAttempts.
func (d *Dispatcher) Dispatch(ctx context.Context, url string, payload any) (*DispatchResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling callback payload: %w", err)
	}

	var result *DispatchResponse
	var attemptsMade uint

	err = retry.Do(
		func() error {
			attemptsMade++
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if reqErr != nil {
				return retry.Unrecoverable(fmt.Errorf("building callback request: %w", reqErr))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, doErr := d.httpClient.Do(req)
			if doErr != nil {
				return fmt.Errorf("network/timeout error dispatching callback: %w", doErr)
			}
			defer resp.Body.Close()

			respBody, _ := io.ReadAll(resp.Body)

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("callback delivery failed with status %d", resp.StatusCode)
			}

			result = &DispatchResponse{
				FinalStatusCode: resp.StatusCode,
				FinalBody:       string(respBody),
				FinalHeaders:    headersToMap(resp.Header),
				AttemptsMade:    attemptsMade,
			}
			return nil
		},
		retry.Attempts(d.config.MaxAttempts),
		retry.DelayType(backoffWithJitter),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("dispatching callback to %s after %d attempts: %w", url, attemptsMade, err)
	}

	return result, nil
}

// headersToMap lossily decodes response headers into a flat string map,
// reimplementing the original headers_to_json_value helper idiomatically
// over http.Header instead of a HeaderMap.
func headersToMap(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}
