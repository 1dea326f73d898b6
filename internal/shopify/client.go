// Package shopify is the commerce-platform client shared by all pipelines.
// It speaks the Admin REST API for reads and the GraphQL Admin API for
// tag-filtered queries, inventory writes, and collection reorders.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/ratelimit"
)

// Client is a per-tenant commerce API client. All calls are serial within
// one tenant task, so the client carries no internal locking.
type Client struct {
	baseURL    string // https://<shop-domain>, overridable for tests
	apiVersion string
	token      string
	httpClient httpretry.HTTPDoer
	limiter    *ratelimit.Limiter
}

// NewClient creates a client for one shop. limiter may be nil.
func NewClient(shopDomain, accessToken, apiVersion string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:    "https://" + shopDomain,
		apiVersion: apiVersion,
		token:      accessToken,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 30 * time.Second,
		}, 3),
		limiter: limiter,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// SetBaseURL overrides the shop URL (useful for testing)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// doREST performs an authenticated Admin REST request. It returns the
// response body and the Link header, which carries the page_info cursor
// for paginated endpoints.
func (c *Client) doREST(ctx context.Context, method, path string, body interface{}) ([]byte, string, error) {
	op := "shopify." + method + " " + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "shopify"); err != nil {
			return nil, "", err
		}
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	reqURL := fmt.Sprintf("%s/admin/api/%s%s", c.baseURL, c.apiVersion, path)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", joberr.New(joberr.Transient, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", joberr.FromStatus(resp.StatusCode, op, string(respBody))
	}
	return respBody, resp.Header.Get("Link"), nil
}

// doGraphQL performs one Admin GraphQL call and unmarshals data into out.
func (c *Client) doGraphQL(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	op := "shopify.graphql"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "shopify"); err != nil {
			return err
		}
	}

	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	reqURL := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return joberr.New(joberr.Transient, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return joberr.FromStatus(resp.StatusCode, op, string(respBody))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return joberr.Newf(joberr.Validation, op, "graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageURL extracts the rel="next" URL from a Link header, or "".
func nextPageURL(link string) string {
	m := nextLinkRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

// doRESTURL fetches an absolute URL produced by cursor pagination.
func (c *Client) doRESTURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	op := "shopify.GET " + rawURL

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "shopify"); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", joberr.New(joberr.Transient, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", joberr.FromStatus(resp.StatusCode, op, string(respBody))
	}
	return respBody, resp.Header.Get("Link"), nil
}

// graphqlUserError converts a mutation userError into a validation error.
func graphqlUserError(op, msg string) error {
	return joberr.Newf(joberr.Validation, op, "user error: %s", msg)
}

func productGID(id int64) string {
	return fmt.Sprintf("gid://shopify/Product/%d", id)
}

func collectionGID(id string) string {
	return "gid://shopify/Collection/" + id
}
