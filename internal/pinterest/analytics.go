package pinterest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CampaignAnalytics fetches per-campaign totals for the window. The
// TOTAL granularity collapses each campaign to one row.
func (c *Client) CampaignAnalytics(ctx context.Context, adAccountID string, campaignIDs []string, start, end time.Time) ([]AnalyticsRow, error) {
	params := url.Values{}
	params.Set("campaign_ids", strings.Join(campaignIDs, ","))
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("columns", strings.Join([]string{ColSpendMicro, ColConversions, ColConversionsValue}, ","))
	params.Set("granularity", "TOTAL")

	endpoint := fmt.Sprintf("/ad_accounts/%s/campaigns/analytics?%s", adAccountID, params.Encode())
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, "pinterest", nil)
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	rows := make([]AnalyticsRow, 0, len(raw))
	for _, entry := range raw {
		row := AnalyticsRow{
			CampaignID:       asString(entry["CAMPAIGN_ID"]),
			SpendMicro:       asInt64(entry[ColSpendMicro]),
			Conversions:      asFloat(entry[ColConversions]),
			ConversionsValue: asInt64(entry[ColConversionsValue]),
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func asInt64(v interface{}) int64 {
	f, _ := v.(float64)
	return int64(f)
}
