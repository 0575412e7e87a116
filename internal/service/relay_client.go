package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jamsync/internal/transport/ws"
)

// RelayClient pushes updates to a relay running in another process through
// its POST /broadcast endpoint.
type RelayClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewRelayClient creates a relay client. Requests give up after timeout.
func NewRelayClient(baseURL, secret string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Push sends {type, sessionId, ...payload} to the relay.
func (c *RelayClient) Push(ctx context.Context, sessionID, msgType string, payload interface{}) error {
	body, err := ws.EncodeEnvelope(sessionID, msgType, payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/broadcast", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Bridge-Secret", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("relay error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	log.Debugw("relay push", "jam", sessionID, "type", msgType, "status", resp.StatusCode)
	return nil
}
