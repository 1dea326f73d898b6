package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreativeType distinguishes winner campaign modalities.
type CreativeType string

const (
	CreativeVideo CreativeType = "video"
	CreativeImage CreativeType = "image"
)

// LinkType is the destination a winner campaign's pins point at.
type LinkType string

const (
	LinkProduct    LinkType = "product"
	LinkCollection LinkType = "collection"
)

// SalesSnapshot captures the aggregate values a winner was identified on.
type SalesSnapshot struct {
	Sales3D  int `json:"sales_3d"`
	Sales7D  int `json:"sales_7d"`
	Sales10D int `json:"sales_10d"`
	Sales14D int `json:"sales_14d"`
}

// WinnerProduct is a product that cleared the winner thresholds.
type WinnerProduct struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	ProductID          string
	CollectionID       string
	Title              string
	Handle             string
	CollectionHandle   string
	ImageURL           string
	Snapshot           SalesSnapshot
	BucketsPassed      int
	OriginalCampaignID string
	IsActive           bool
	IdentifiedAt       time.Time
}

// WinnerScalingSettings controls winner identification and the per-winner
// campaign refill loop.
type WinnerScalingSettings struct {
	TenantID uuid.UUID
	Enabled  bool

	// Identification thresholds per sales bucket, and how many buckets
	// must pass (1-4).
	Threshold3D        int
	Threshold7D        int
	Threshold10D       int
	Threshold14D       int
	MinBucketsRequired int

	// Per-modality campaign caps. A legacy single cap is split evenly
	// across modalities on read (video takes the remainder).
	MaxVideoCampaigns int
	MaxImageCampaigns int

	// Which link destinations to create campaigns for. Both enabled
	// means an A/B pair per creative batch.
	ProductLinksEnabled    bool
	CollectionLinksEnabled bool

	CreativesPerCampaign int
}

// SplitLegacyCap distributes a single legacy campaign cap across the two
// modalities: image gets the floor, video the remainder.
func SplitLegacyCap(total int) (video, image int) {
	image = total / 2
	video = total - image
	return video, image
}

// WinnerCampaign is a campaign spawned for a winner product.
type WinnerCampaign struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	WinnerID            uuid.UUID
	PinterestCampaignID string
	AdGroupID           string
	CreativeType        CreativeType
	CreativeCount       int
	LinkType            LinkType
	Status              string
	GeneratedAssets     []string
	CreatedAt           time.Time
}

// WinnerScalingLog is the audit row for one winner-scaler decision.
type WinnerScalingLog struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	WinnerID  *uuid.UUID
	ProductID string
	Action    string
	Detail    string
	CreatedAt time.Time
}
