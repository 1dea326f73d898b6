package pinterest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ignite/podpilot/internal/joberr"
)

// RegisterMedia registers a video upload and returns the upload handle.
func (c *Client) RegisterMedia(ctx context.Context, mediaType string) (*MediaUpload, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/media", "pinterest",
		map[string]string{"media_type": mediaType})
	if err != nil {
		return nil, err
	}
	var upload MediaUpload
	if err := json.Unmarshal(body, &upload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &upload, nil
}

// UploadMedia posts the video bytes to the signed upload URL as a
// multipart form. The upload parameters from registration become form
// fields, with the file last as the signed-URL contract requires.
func (c *Client) UploadMedia(ctx context.Context, upload *MediaUpload, video []byte) error {
	op := "pinterest.UploadMedia"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, val := range upload.UploadParameters {
		if err := writer.WriteField(key, val); err != nil {
			return fmt.Errorf("failed to write form field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", "video.mp4")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(video); err != nil {
		return fmt.Errorf("failed to write video bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upload.UploadURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return joberr.New(joberr.Transient, op, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return joberr.FromStatus(resp.StatusCode, op, string(respBody))
	}
	return nil
}

// MediaStatus returns the processing status of a registered media id.
func (c *Client) MediaStatus(ctx context.Context, mediaID string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/media/"+mediaID, "pinterest", nil)
	if err != nil {
		return "", err
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return status.Status, nil
}

// WaitForMedia polls the media status until it succeeds, fails, or the
// deadline passes.
func (c *Client) WaitForMedia(ctx context.Context, mediaID string, pollInterval, budget time.Duration) error {
	op := "pinterest.WaitForMedia"
	deadline := time.Now().Add(budget)

	for {
		status, err := c.MediaStatus(ctx, mediaID)
		if err != nil {
			return err
		}
		switch status {
		case "succeeded":
			return nil
		case "failed":
			return joberr.Newf(joberr.Validation, op, "media %s processing failed", mediaID)
		}
		if time.Now().After(deadline) {
			return joberr.Newf(joberr.Transient, op, "media %s not ready within %s", mediaID, budget)
		}
		timer := time.NewTimer(pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
