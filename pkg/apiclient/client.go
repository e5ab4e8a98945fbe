// Package apiclient provides an HTTP client for the InsightTiers server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jmakwana01/InsightTiers/internal/contentgate"
	"github.com/jmakwana01/InsightTiers/pkg/server"
	"github.com/jmakwana01/InsightTiers/pkg/txflow"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

// Client communicates with the InsightTiers server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a server API client. Transactions wait for receipts, so
// the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// ErrorResponse is the standard error format.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-200 response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err if it is an *APIError, else 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Session returns the current session.
func (c *Client) Session(ctx context.Context) (*server.SessionResponse, error) {
	var result server.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Connect asks the server's wallet for accounts and loads chain state.
func (c *Client) Connect(ctx context.Context) (*server.SessionResponse, error) {
	return c.sessionAction(ctx, "/api/connect")
}

// Disconnect drops the server's session.
func (c *Client) Disconnect(ctx context.Context) (*server.SessionResponse, error) {
	return c.sessionAction(ctx, "/api/disconnect")
}

// Refresh re-reads chain state for the connected account.
func (c *Client) Refresh(ctx context.Context) (*server.SessionResponse, error) {
	return c.sessionAction(ctx, "/api/refresh")
}

func (c *Client) sessionAction(ctx context.Context, path string) (*server.SessionResponse, error) {
	var result server.SessionResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Quote prices a purchase of amount native units.
func (c *Client) Quote(ctx context.Context, amount units.Amount) (*server.QuoteResponse, error) {
	var result server.QuoteResponse
	path := "/api/quote?amount=" + url.QueryEscape(amount.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Purchase buys tokens for amount native units.
func (c *Client) Purchase(ctx context.Context, amount units.Amount) (*txflow.PurchaseResult, error) {
	var result txflow.PurchaseResult
	if err := c.do(ctx, http.MethodPost, "/api/purchase", server.AmountRequest{Amount: amount}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StakeError is a failed stake together with how far it got.
type StakeError struct {
	APIError
	Result txflow.StakeResult
}

func (e *StakeError) Unwrap() error { return &e.APIError }

// Stake approves and stakes amount tokens. On failure the error is a
// *StakeError carrying the saga state.
func (c *Client) Stake(ctx context.Context, amount units.Amount) (*txflow.StakeResult, error) {
	body, err := json.Marshal(server.AmountRequest{Amount: amount})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, http.MethodPost, "/api/stake", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var errResp server.StakeErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return nil, &StakeError{
				APIError: APIError{StatusCode: resp.StatusCode, Message: errResp.Error},
				Result:   errResp.Result,
			}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var result txflow.StakeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding stake response: %w", err)
	}
	return &result, nil
}

// Tiers fetches the tier table. A non-zero stake adds a projection.
func (c *Client) Tiers(ctx context.Context, stake units.Amount) (*server.TiersResponse, error) {
	path := "/api/tiers"
	if !stake.IsZero() {
		path += "?stake=" + url.QueryEscape(stake.String())
	}
	var result server.TiersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Notices fetches recent transaction outcomes.
func (c *Client) Notices(ctx context.Context) (*server.NoticesResponse, error) {
	var result server.NoticesResponse
	if err := c.do(ctx, http.MethodGet, "/api/notices", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Content fetches gated content for tier, by name or number.
func (c *Client) Content(ctx context.Context, tier string) (*contentgate.ContentResponse, error) {
	var result contentgate.ContentResponse
	if err := c.do(ctx, http.MethodGet, "/content/"+url.PathEscape(tier), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
