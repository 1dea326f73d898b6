// Package domain defines the typed records the job fleet persists and
// exchanges. Rows loaded from the store are validated here; a missing
// required field is a validation failure, not a zero value.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is one print-on-demand store operator. Created by the web tier;
// read-only to the jobs.
type Tenant struct {
	ID          uuid.UUID
	Name        string
	ShopDomain  string // e.g. "example.myshopify.com"
	AccessToken string
	Active      bool
	CreatedAt   time.Time
}

// TenantRules holds the per-tenant lifecycle thresholds driving the
// replacement engine.
type TenantRules struct {
	TenantID uuid.UUID

	// Lifecycle phase boundaries, in days since the product entered
	// the collection.
	StartPhaseDays int
	PostPhaseDays  int

	// Initial-phase thresholds on first-7-days sales.
	MinSalesDay7Delete  int
	MinSalesDay7Replace int

	// Post-phase per-bucket thresholds and the minimum count of
	// buckets that must pass.
	Avg3OK       int
	Avg7OK       int
	Avg10OK      int
	Avg14OK      int
	MinOKBuckets int

	// Products at or below this lifetime total when replaced get their
	// inventory zeroed (LOSER handling).
	LoserThreshold int

	// QueueTag marks replacement candidates (default "QK").
	QueueTag string

	OptimizerEnabled bool
	TestMode         bool
}

// DefaultQueueTag is applied when a tenant has not configured one.
const DefaultQueueTag = "QK"

// EffectiveQueueTag returns the configured queue tag or the default.
func (r *TenantRules) EffectiveQueueTag() string {
	if r.QueueTag == "" {
		return DefaultQueueTag
	}
	return r.QueueTag
}

// TrackedCollection is a commerce collection the tenant has elected to track.
type TrackedCollection struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CollectionID string // platform collection id
	CreatedAt    time.Time
}

// CampaignBatchAssignment binds product batches of a collection to an ad
// campaign. The central driver of the replacement and ad-sync pipelines.
type CampaignBatchAssignment struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CampaignID   string // pinterest campaign id
	CollectionID string // commerce collection id
	BatchIndices []int
	BatchSize    int
	BoardID      string // pinterest board receiving this campaign's pins
	CreatedAt    time.Time
}

// DefaultBatchSize is the batch width when an assignment does not set one.
const DefaultBatchSize = 25

// EffectiveBatchSize returns the assignment batch size or the default.
func (a *CampaignBatchAssignment) EffectiveBatchSize() int {
	if a.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return a.BatchSize
}
