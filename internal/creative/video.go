package creative

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/ratelimit"
)

// VideoClient calls the async video-generation API: submit an operation,
// poll it to completion, download the artifact.
type VideoClient struct {
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	pollBudget   time.Duration
	httpClient   httpretry.HTTPDoer
	limiter      *ratelimit.Limiter
}

// NewVideoClient creates a video client. limiter may be nil.
func NewVideoClient(baseURL, apiKey, model string, pollInterval, pollBudget time.Duration, limiter *ratelimit.Limiter) *VideoClient {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if pollBudget <= 0 {
		pollBudget = 5 * time.Minute
	}
	return &VideoClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 60 * time.Second,
		}, 2),
		limiter: limiter,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *VideoClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// GenerateVideo produces a 9:16 video for the prompt, optionally
// conditioned on the product image, and returns the raw video bytes.
func (c *VideoClient) GenerateVideo(ctx context.Context, prompt string, conditioningImage []byte) ([]byte, error) {
	opName, err := c.submit(ctx, prompt, conditioningImage)
	if err != nil {
		return nil, err
	}
	uri, err := c.waitForOperation(ctx, opName)
	if err != nil {
		return nil, err
	}
	return c.downloadVideo(ctx, uri)
}

func (c *VideoClient) submit(ctx context.Context, prompt string, conditioningImage []byte) (string, error) {
	op := "creative.submitVideo"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "openai"); err != nil {
			return "", err
		}
	}

	instance := map[string]interface{}{"prompt": prompt}
	if len(conditioningImage) > 0 {
		instance["image"] = map[string]interface{}{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(conditioningImage),
			"mimeType":           "image/jpeg",
		}
	}
	payload := map[string]interface{}{
		"instances":  []interface{}{instance},
		"parameters": map[string]interface{}{"aspectRatio": "9:16"},
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.model)
	body, err := c.doJSON(ctx, op, http.MethodPost, url, jsonBody)
	if err != nil {
		return "", err
	}

	var result struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Name == "" {
		return "", joberr.Newf(joberr.Validation, op, "video API returned no operation name")
	}
	return result.Name, nil
}

// waitForOperation polls the long-running operation until done, failed,
// or the poll budget is exhausted. Returns the artifact URI.
func (c *VideoClient) waitForOperation(ctx context.Context, opName string) (string, error) {
	op := "creative.waitForOperation"
	deadline := time.Now().Add(c.pollBudget)

	for {
		body, err := c.doJSON(ctx, op, http.MethodGet, c.baseURL+"/"+opName, nil)
		if err != nil {
			return "", err
		}

		var status struct {
			Done  bool `json:"done"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
			Response struct {
				GenerateVideoResponse struct {
					GeneratedSamples []struct {
						Video struct {
							URI string `json:"uri"`
						} `json:"video"`
					} `json:"generatedSamples"`
				} `json:"generateVideoResponse"`
			} `json:"response"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if status.Done {
			if status.Error != nil {
				return "", joberr.Newf(joberr.Validation, op, "video generation failed: %s", status.Error.Message)
			}
			samples := status.Response.GenerateVideoResponse.GeneratedSamples
			if len(samples) == 0 || samples[0].Video.URI == "" {
				return "", joberr.Newf(joberr.Validation, op, "video operation completed without artifact")
			}
			return samples[0].Video.URI, nil
		}

		if time.Now().After(deadline) {
			return "", joberr.Newf(joberr.Transient, op, "video operation %s not done within %s", opName, c.pollBudget)
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
}

func (c *VideoClient) downloadVideo(ctx context.Context, uri string) ([]byte, error) {
	op := "creative.downloadVideo"
	return c.doRaw(ctx, op, uri)
}

func (c *VideoClient) doJSON(ctx context.Context, op, method, url string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewBuffer(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, joberr.New(joberr.Transient, op, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, joberr.Newf(joberr.QuotaExceeded, op, "video API rate limited: %s", string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, joberr.FromStatus(resp.StatusCode, op, string(respBody))
	}
	return respBody, nil
}

func (c *VideoClient) doRaw(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, joberr.FromStatus(resp.StatusCode, op, string(body))
	}
	return io.ReadAll(resp.Body)
}
