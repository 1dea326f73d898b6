package domain

import (
	"time"

	"github.com/google/uuid"
)

// PinterestAuth is a tenant's OAuth token bundle for the ad platform.
// RefreshToken may be empty for manually provisioned tokens.
type PinterestAuth struct {
	TenantID     uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token has passed its expiry,
// with a small safety margin.
func (a *PinterestAuth) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt.Add(-2*time.Minute))
}

// AdAccount is one of the tenant's ad accounts. Exactly one account per
// tenant is marked selected; the pipelines only operate on that one.
type AdAccount struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	AdAccountID string
	Name        string
	Selected    bool
}

// CampaignStatus values mirrored from the ad platform.
const (
	CampaignActive   = "ACTIVE"
	CampaignPaused   = "PAUSED"
	CampaignArchived = "ARCHIVED"
)

// Campaign is the locally mirrored ad-platform campaign metadata.
// DailyBudget is stored in dollars; the wire format is micro-currency.
type Campaign struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	PinterestCampaignID string
	Name                string
	Status              string
	DailyBudget         float64
	IsWinnerCampaign    bool
	UpdatedAt           time.Time
}

// SyncLog is an immutable record of one product-pin creation attempt.
// At most one non-paused row exists per (tenant, campaign, product).
type SyncLog struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CampaignID string
	ProductID  string
	BoardID    string
	PinID      string
	AdID       string
	AdGroupID  string
	Success    bool
	Error      string
	Paused     bool
	SyncedAt   time.Time
}
