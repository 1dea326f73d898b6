package pinterest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ListCampaigns returns the ad account's campaigns, optionally filtered
// by entity statuses, following bookmarks to the end.
func (c *Client) ListCampaigns(ctx context.Context, adAccountID string, statuses ...string) ([]Campaign, error) {
	params := url.Values{}
	params.Set("page_size", "100")
	for _, s := range statuses {
		params.Add("entity_statuses", s)
	}

	var all []Campaign
	bookmark := ""
	for {
		if bookmark != "" {
			params.Set("bookmark", bookmark)
		}
		endpoint := fmt.Sprintf("/ad_accounts/%s/campaigns?%s", adAccountID, params.Encode())
		body, err := c.doRequest(ctx, http.MethodGet, endpoint, "pinterest", nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			Items    []Campaign `json:"items"`
			Bookmark string     `json:"bookmark"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		all = append(all, page.Items...)
		if page.Bookmark == "" {
			return all, nil
		}
		bookmark = page.Bookmark
	}
}

// GetCampaign returns one campaign.
func (c *Client) GetCampaign(ctx context.Context, adAccountID, campaignID string) (*Campaign, error) {
	endpoint := fmt.Sprintf("/ad_accounts/%s/campaigns/%s", adAccountID, campaignID)
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, "pinterest", nil)
	if err != nil {
		return nil, err
	}
	var campaign Campaign
	if err := json.Unmarshal(body, &campaign); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &campaign, nil
}

// patchCampaigns issues the batch campaign update with a single entry.
func (c *Client) patchCampaigns(ctx context.Context, adAccountID string, update map[string]interface{}) error {
	endpoint := fmt.Sprintf("/ad_accounts/%s/campaigns", adAccountID)
	_, err := c.doRequest(ctx, http.MethodPatch, endpoint, "pinterest", []map[string]interface{}{update})
	return err
}

// UpdateCampaignBudget sets the campaign's daily spend cap, in
// micro-currency.
func (c *Client) UpdateCampaignBudget(ctx context.Context, adAccountID, campaignID string, dailySpendCapMicro int64) error {
	return c.patchCampaigns(ctx, adAccountID, map[string]interface{}{
		"id":              campaignID,
		"daily_spend_cap": dailySpendCapMicro,
	})
}

// PauseCampaign pauses the campaign on the platform.
func (c *Client) PauseCampaign(ctx context.Context, adAccountID, campaignID string) error {
	return c.patchCampaigns(ctx, adAccountID, map[string]interface{}{
		"id":     campaignID,
		"status": "PAUSED",
	})
}

// CreateCampaign creates a campaign and returns its id.
func (c *Client) CreateCampaign(ctx context.Context, adAccountID string, campaign *Campaign) (string, error) {
	endpoint := fmt.Sprintf("/ad_accounts/%s/campaigns", adAccountID)
	campaign.AdAccountID = adAccountID
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, "pinterest", []*Campaign{campaign})
	if err != nil {
		return "", err
	}
	return firstItemID(body)
}

// ListAdGroups returns the campaign's ad groups.
func (c *Client) ListAdGroups(ctx context.Context, adAccountID, campaignID string) ([]AdGroup, error) {
	params := url.Values{}
	params.Set("campaign_ids", campaignID)
	params.Set("page_size", "100")
	endpoint := fmt.Sprintf("/ad_accounts/%s/ad_groups?%s", adAccountID, params.Encode())

	body, err := c.doRequest(ctx, http.MethodGet, endpoint, "pinterest", nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Items []AdGroup `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return page.Items, nil
}

// FirstActiveAdGroup returns the campaign's first ACTIVE ad group, or nil.
func (c *Client) FirstActiveAdGroup(ctx context.Context, adAccountID, campaignID string) (*AdGroup, error) {
	groups, err := c.ListAdGroups(ctx, adAccountID, campaignID)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Status == "ACTIVE" {
			return &groups[i], nil
		}
	}
	return nil, nil
}

// CreateAdGroup creates an ad group and returns its id.
func (c *Client) CreateAdGroup(ctx context.Context, adAccountID string, group *AdGroup) (string, error) {
	endpoint := fmt.Sprintf("/ad_accounts/%s/ad_groups", adAccountID)
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, "pinterest", []*AdGroup{group})
	if err != nil {
		return "", err
	}
	return firstItemID(body)
}

// firstItemID pulls the id of the first item from a batch response.
func firstItemID(body []byte) (string, error) {
	var page itemsEnvelope
	if err := json.Unmarshal(body, &page); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(page.Items) == 0 {
		return "", fmt.Errorf("empty items in response")
	}
	id, _ := page.Items[0]["id"].(string)
	if id == "" {
		return "", fmt.Errorf("missing id in response item")
	}
	return id, nil
}

// NewDefaultAdGroup builds the ad group the ad-sync pipeline creates when
// a campaign has none: automatic bidding, click-through billing, and a
// modest micro-currency daily budget.
func NewDefaultAdGroup(campaignID, name string) *AdGroup {
	return &AdGroup{
		CampaignID:            campaignID,
		Name:                  name,
		Status:                "ACTIVE",
		BudgetInMicroCurrency: DollarsToMicro(10),
		BillableEvent:         "CLICKTHROUGH",
		BidStrategyType:       "AUTOMATIC_BID",
		AutoTargetingEnabled:  true,
	}
}

// isTranscodingError reports whether an ad-creation error body indicates
// the video is still being processed by the platform.
func isTranscodingError(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "transcod") ||
		strings.Contains(lower, "still processing") ||
		strings.Contains(lower, "media is processing")
}
