package pinterest

import (
	"errors"
	"math"
)

// Campaign is an ad-platform campaign as returned by the v5 API.
// Monetary fields are micro-currency integers on the wire.
type Campaign struct {
	ID                  string                 `json:"id,omitempty"`
	AdAccountID         string                 `json:"ad_account_id,omitempty"`
	Name                string                 `json:"name,omitempty"`
	Status              string                 `json:"status,omitempty"`
	ObjectiveType       string                 `json:"objective_type,omitempty"`
	DailySpendCap       int64                  `json:"daily_spend_cap,omitempty"`
	TrackingURLs        map[string]interface{} `json:"tracking_urls,omitempty"`
	StartTime           int64                  `json:"start_time,omitempty"`
	CreatedTime         int64                  `json:"created_time,omitempty"`
	UpdatedTime         int64                  `json:"updated_time,omitempty"`
	SummaryStatus       string                 `json:"summary_status,omitempty"`
	IsAutomatedCampaign bool                   `json:"is_automated_campaign,omitempty"`
}

// AdGroup is an ad group under a campaign. The winner scaler clones most
// of these fields from the original campaign's first ad group.
type AdGroup struct {
	ID                       string                 `json:"id,omitempty"`
	CampaignID               string                 `json:"campaign_id,omitempty"`
	Name                     string                 `json:"name,omitempty"`
	Status                   string                 `json:"status,omitempty"`
	BudgetInMicroCurrency    int64                  `json:"budget_in_micro_currency,omitempty"`
	BillableEvent            string                 `json:"billable_event,omitempty"`
	BidStrategyType          string                 `json:"bid_strategy_type,omitempty"`
	TargetingSpec            map[string]interface{} `json:"targeting_spec,omitempty"`
	OptimizationGoalMetadata map[string]interface{} `json:"optimization_goal_metadata,omitempty"`
	AutoTargetingEnabled     bool                   `json:"auto_targeting_enabled,omitempty"`
	PacingDeliveryType       string                 `json:"pacing_delivery_type,omitempty"`
}

// MediaSource selects how a pin's media is supplied. Exactly one of URL,
// Base64 data, or a registered video id is set.
type MediaSource struct {
	SourceType    string `json:"source_type"` // image_url | image_base64 | video_id
	URL           string `json:"url,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	Data          string `json:"data,omitempty"`
	MediaID       string `json:"media_id,omitempty"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
}

// PinCreate is the request body for organic pin creation.
type PinCreate struct {
	BoardID     string      `json:"board_id"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Link        string      `json:"link,omitempty"`
	MediaSource MediaSource `json:"media_source"`
}

// Pin is the created pin.
type Pin struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`
	Link    string `json:"link"`
}

// AdCreate is one entry of the batch ad-creation body.
type AdCreate struct {
	AdGroupID      string `json:"ad_group_id"`
	PinID          string `json:"pin_id"`
	CreativeType   string `json:"creative_type"` // REGULAR | VIDEO
	Status         string `json:"status,omitempty"`
	DestinationURL string `json:"destination_url,omitempty"`
}

// Ad is a created (promoted) ad.
type Ad struct {
	ID        string `json:"id"`
	AdGroupID string `json:"ad_group_id"`
	PinID     string `json:"pin_id"`
	Status    string `json:"status"`
}

// Board is an organic board pins are created on.
type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MediaUpload is the handle returned by media registration. The video
// bytes are posted to UploadURL with UploadParameters as form fields.
type MediaUpload struct {
	MediaID          string            `json:"media_id"`
	MediaType        string            `json:"media_type"`
	UploadURL        string            `json:"upload_url"`
	UploadParameters map[string]string `json:"upload_parameters"`
}

// Analytics column names requested from the reporting endpoint.
const (
	ColSpendMicro       = "SPEND_IN_MICRO_DOLLAR"
	ColConversions      = "TOTAL_CONVERSIONS"
	ColConversionsValue = "TOTAL_CONVERSIONS_VALUE_IN_MICRO_DOLLAR"
)

// AnalyticsRow is one campaign's totals for the requested window.
type AnalyticsRow struct {
	CampaignID       string
	SpendMicro       int64
	Conversions      float64
	ConversionsValue int64 // micro-currency
}

// Spend returns the spend in dollars.
func (r *AnalyticsRow) Spend() float64 { return MicroToDollars(r.SpendMicro) }

// ROAS returns conversion value over spend; zero spend yields zero.
func (r *AnalyticsRow) ROAS() float64 {
	if r.SpendMicro == 0 {
		return 0
	}
	return float64(r.ConversionsValue) / float64(r.SpendMicro)
}

// DollarsToMicro converts a dollar amount to the wire's micro-currency.
func DollarsToMicro(d float64) int64 {
	return int64(math.Round(d * 1_000_000))
}

// MicroToDollars converts micro-currency to dollars.
func MicroToDollars(m int64) float64 {
	return float64(m) / 1_000_000
}

// ErrStillTranscoding is returned by ad creation while the platform has
// not finished processing a freshly uploaded video. Callers back off and
// retry a bounded number of times.
var ErrStillTranscoding = errors.New("pinterest: video still transcoding")

type itemsEnvelope struct {
	Items    []map[string]interface{} `json:"items"`
	Bookmark string                   `json:"bookmark"`
}
