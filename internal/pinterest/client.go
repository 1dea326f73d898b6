// Package pinterest is the ad-platform v5 client: campaigns, ad groups,
// pins, promoted ads, media uploads, boards, and campaign analytics.
package pinterest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/ratelimit"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.pinterest.com/v5"

// TokenRefresher exchanges a rejected access token for a fresh one,
// persisting the new bundle as a side effect.
type TokenRefresher func(ctx context.Context) (string, error)

// Client is a per-tenant ad API client holding one access token. Calls
// within a tenant task are serial, so there is no internal locking.
type Client struct {
	baseURL    string
	token      string
	httpClient httpretry.HTTPDoer
	limiter    *ratelimit.Limiter

	refresh   TokenRefresher
	refreshed bool
}

// NewClient creates a client with the given access token. limiter may be
// nil.
func NewClient(baseURL, accessToken string, limiter *ratelimit.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   accessToken,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 60 * time.Second,
		}, 3),
		limiter: limiter,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// SetToken swaps the access token after a refresh.
func (c *Client) SetToken(token string) { c.token = token }

// SetTokenRefresher installs the callback invoked when the platform
// rejects the current token mid-run. One refresh attempt per client.
func (c *Client) SetTokenRefresher(fn TokenRefresher) { c.refresh = fn }

// doRequest performs an authenticated request. host selects the rate
// budget: "pinterest" for ordinary calls, "pinterest-pin" for pin
// creation which the platform throttles harder. A 401 on a token the
// expiry check considered valid means it was revoked or rotated out of
// band; the refresher is invoked once and the call retried before the
// error surfaces.
func (c *Client) doRequest(ctx context.Context, method, endpoint, host string, body interface{}) ([]byte, error) {
	op := "pinterest." + method + " " + endpoint

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, host); err != nil {
				return nil, err
			}
		}

		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, joberr.New(joberr.Transient, op, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, joberr.New(joberr.Transient, op, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && c.refresh != nil && !c.refreshed {
			c.refreshed = true
			token, rerr := c.refresh(ctx)
			if rerr == nil {
				c.token = token
				continue
			}
			return nil, joberr.New(joberr.AuthExpired, op, rerr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, joberr.FromStatus(resp.StatusCode, op, string(respBody))
		}
		return respBody, nil
	}
}
