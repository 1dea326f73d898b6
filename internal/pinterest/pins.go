package pinterest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ignite/podpilot/internal/joberr"
)

// CreatePin creates an organic pin. Pin creation uses the stricter
// "pinterest-pin" rate budget.
func (c *Client) CreatePin(ctx context.Context, pin *PinCreate) (*Pin, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/pins", "pinterest-pin", pin)
	if err != nil {
		return nil, err
	}
	var created Pin
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &created, nil
}

// ImagePinSource builds a media source from a hosted image URL.
func ImagePinSource(imageURL string) MediaSource {
	return MediaSource{SourceType: "image_url", URL: imageURL}
}

// Base64PinSource builds a media source from in-memory image bytes.
func Base64PinSource(b64, contentType string) MediaSource {
	return MediaSource{SourceType: "image_base64", Data: b64, ContentType: contentType}
}

// VideoPinSource builds a media source from a registered video id. The
// cover image is required by the platform for video pins.
func VideoPinSource(mediaID, coverImageURL string) MediaSource {
	return MediaSource{SourceType: "video_id", MediaID: mediaID, CoverImageURL: coverImageURL}
}

// CreateAd promotes a pin by creating an ad in the ad group. While the
// pin's video is still transcoding the platform rejects the call; that
// case surfaces as ErrStillTranscoding so callers can wait and retry.
func (c *Client) CreateAd(ctx context.Context, adAccountID string, ad *AdCreate) (string, error) {
	endpoint := fmt.Sprintf("/ad_accounts/%s/ads", adAccountID)
	if ad.Status == "" {
		ad.Status = "ACTIVE"
	}
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, "pinterest", []*AdCreate{ad})
	if err != nil {
		var je *joberr.Error
		if errors.As(err, &je) && je.Err != nil && isTranscodingError(je.Err.Error()) {
			return "", ErrStillTranscoding
		}
		return "", err
	}
	return firstItemID(body)
}

// PauseAd pauses one promoted ad.
func (c *Client) PauseAd(ctx context.Context, adAccountID, adID string) error {
	endpoint := fmt.Sprintf("/ad_accounts/%s/ads", adAccountID)
	_, err := c.doRequest(ctx, http.MethodPatch, endpoint, "pinterest", []map[string]interface{}{
		{"id": adID, "status": "PAUSED"},
	})
	return err
}

// ListBoards returns the user's boards.
func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/boards?page_size=100", "pinterest", nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Items []Board `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return page.Items, nil
}
