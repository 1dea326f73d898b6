// Package creative calls the AI APIs that generate winner-campaign
// assets: an image-edit endpoint and an async video-generation endpoint.
// A 429 or quota response surfaces as joberr.QuotaExceeded so the winner
// scaler can stop generating that modality for the rest of the run.
package creative

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/ratelimit"
)

// ImageSize is the generation size closest to the 2:3 pin format; the
// result is cropped/resized to exactly 1000x1500 downstream.
const ImageSize = "1024x1536"

// ImageClient calls the image-edit API.
type ImageClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient httpretry.HTTPDoer
	limiter    *ratelimit.Limiter
}

// NewImageClient creates an image client. limiter may be nil.
func NewImageClient(baseURL, apiKey, model string, limiter *ratelimit.Limiter) *ImageClient {
	return &ImageClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 120 * time.Second,
		}, 2),
		limiter: limiter,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *ImageClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type imageData struct {
	B64JSON string `json:"b64_json"`
	URL     string `json:"url"`
}

type imageResponse struct {
	Data []imageData `json:"data"`
}

// GenerateImage produces one creative image for the prompt. When
// referenceImage is non-empty the edit endpoint is used with it as the
// source; otherwise the pure text-to-image endpoint is used. Returns the
// raw image bytes.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string, referenceImage []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "openai"); err != nil {
			return nil, err
		}
	}
	if len(referenceImage) > 0 {
		return c.editImage(ctx, prompt, referenceImage)
	}
	return c.textToImage(ctx, prompt)
}

func (c *ImageClient) editImage(ctx context.Context, prompt string, referenceImage []byte) ([]byte, error) {
	op := "creative.editImage"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "reference.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(referenceImage); err != nil {
		return nil, fmt.Errorf("failed to write reference image: %w", err)
	}
	writer.WriteField("model", c.model)
	writer.WriteField("prompt", prompt)
	writer.WriteField("size", ImageSize)
	writer.WriteField("quality", "high")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.readImageResponse(ctx, op, req)
}

func (c *ImageClient) textToImage(ctx context.Context, prompt string) ([]byte, error) {
	op := "creative.textToImage"

	payload := map[string]interface{}{
		"model":   c.model,
		"prompt":  prompt,
		"size":    ImageSize,
		"quality": "high",
		"n":       1,
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.readImageResponse(ctx, op, req)
}

func (c *ImageClient) readImageResponse(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, joberr.New(joberr.Transient, op, err)
	}
	// The body sniff only applies to error responses: a success payload may
	// quote a quota marker (warnings, echoed prompts) without being one.
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode >= 400 && isQuotaBody(string(respBody))) {
		return nil, joberr.Newf(joberr.QuotaExceeded, op, "image API rate limited: %s", string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, joberr.FromStatus(resp.StatusCode, op, string(respBody))
	}

	var parsed imageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, joberr.Newf(joberr.Validation, op, "image API returned no data")
	}

	if parsed.Data[0].B64JSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		return decoded, nil
	}
	if parsed.Data[0].URL != "" {
		return c.download(ctx, parsed.Data[0].URL)
	}
	return nil, joberr.Newf(joberr.Validation, op, "image API returned neither base64 nor URL")
}

// download fetches a result URL. The URL is pre-signed; no auth header.
func (c *ImageClient) download(ctx context.Context, url string) ([]byte, error) {
	op := "creative.download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
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

// isQuotaBody catches quota errors that arrive with a 4xx other than 429.
func isQuotaBody(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "insufficient_quota") ||
		strings.Contains(lower, "billing_hard_limit_reached")
}
