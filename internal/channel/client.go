package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client is the HTTP implementation of Collaborator against the
// external channel service's JSON API.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewClient creates a channel client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// SetHeader sets a header sent with every request (API keys etc.).
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout overrides the default request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

type openSessionRequest struct {
	Debits []BalanceChange `json:"debits"`
}

type openSessionResponse struct {
	SessionID string `json:"session_id"`
}

type collectSignaturesRequest struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

type finalizeSettlementRequest struct {
	Credits []BalanceChange `json:"credits"`
}

func (c *Client) OpenSession(ctx context.Context, debits []BalanceChange) (string, error) {
	body, err := c.post(ctx, "/sessions", openSessionRequest{Debits: debits})
	if err != nil {
		return "", &SessionError{Op: "openSession", Reason: err.Error()}
	}

	var resp openSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &SessionError{Op: "openSession", Reason: fmt.Sprintf("decode response: %v", err)}
	}
	if resp.SessionID == "" {
		return "", &SessionError{Op: "openSession", Reason: "empty session id"}
	}

	log.Debug().Str("session_id", resp.SessionID).Int("debits", len(debits)).Msg("channel session opened")
	return resp.SessionID, nil
}

func (c *Client) CollectSignatures(ctx context.Context, sessionID string, timeout time.Duration) error {
	endpoint := fmt.Sprintf("/sessions/%s/signatures", sessionID)
	if _, err := c.post(ctx, endpoint, collectSignaturesRequest{TimeoutMs: timeout.Milliseconds()}); err != nil {
		return &TimeoutError{SessionID: sessionID, Timeout: timeout}
	}
	return nil
}

func (c *Client) FinalizeSettlement(ctx context.Context, sessionID string, credits []BalanceChange) error {
	endpoint := fmt.Sprintf("/sessions/%s/settlement", sessionID)
	if _, err := c.post(ctx, endpoint, finalizeSettlementRequest{Credits: credits}); err != nil {
		return &SettlementError{SessionID: sessionID, Reason: err.Error()}
	}

	log.Debug().Str("session_id", sessionID).Int("credits", len(credits)).Msg("settlement finalized")
	return nil
}

func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("/sessions/%s", sessionID)
	if _, err := c.request(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return &SessionError{Op: "endSession", Reason: err.Error()}
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.request(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
}

func (c *Client) request(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("channel service returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return responseBody, nil
}
