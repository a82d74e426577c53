package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/resolve-gateway/internal/resilience"
)

// Hosts for the Resolve charge API. Sandbox is selected when the gateway runs
// in test mode.
const (
	liveHost    = "https://app.resolvepay.com"
	sandboxHost = "https://app-sandbox.resolvepay.com"
)

// APIError is a well-formed error response from the Resolve API, as opposed to
// a transport failure. Callers distinguish the two when writing audit notes.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// CaptureResult is the successful response of a capture call. Number is the
// Resolve-side identifier of the captured charge.
type CaptureResult struct {
	Number string `json:"number"`
}

// Client talks to the Resolve charge API. The underlying HTTP client applies
// the timeout and circuit breaker; no call is ever retried because capture is
// not idempotent on the provider side.
type Client struct {
	HTTP resilience.HTTPClient
	// BaseURL overrides host selection, used by tests.
	BaseURL string
}

// Capture performs a single capture call for the charge. A transport failure
// is returned as-is; an error body from the API is returned as *APIError.
func (c *Client) Capture(ctx context.Context, chargeID, merchantID, apiKey string, sandbox bool) (CaptureResult, error) {
	endpoint := fmt.Sprintf("%s/api/charges/%s/capture", c.host(sandbox), strings.TrimSpace(chargeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("resolve: build request: %w", err)
	}
	req.SetBasicAuth(merchantID, apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return CaptureResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CaptureResult{}, fmt.Errorf("resolve: read response: %w", err)
	}

	var body struct {
		Number string `json:"number"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return CaptureResult{}, fmt.Errorf("resolve: decode response: %w", err)
	}
	if body.Error != nil {
		return CaptureResult{}, &APIError{Message: body.Error.Message}
	}
	return CaptureResult{Number: body.Number}, nil
}

func (c *Client) host(sandbox bool) string {
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	if sandbox {
		return sandboxHost
	}
	return liveHost
}
