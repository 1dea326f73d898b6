// Package adsync mirrors campaign batch assignments onto the ad
// platform: new products in a batch become pins and promoted ads,
// products that fell out of their batch get their ads paused, and
// campaigns paused on the platform get their assignments unbound.
package adsync

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/imageutil"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/pinterest"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/shopify"
)

// Store is the persistence surface the syncer needs.
type Store interface {
	GetTenantsWithAssignments(ctx context.Context) ([]*domain.Tenant, error)
	GetAssignments(ctx context.Context, tenantID uuid.UUID) ([]*domain.CampaignBatchAssignment, error)
	GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error)
	GetSelectedAdAccount(ctx context.Context, tenantID uuid.UUID) (*domain.AdAccount, error)
	HasActiveSyncLog(ctx context.Context, tenantID uuid.UUID, campaignID, productID string) (bool, error)
	InsertSyncLog(ctx context.Context, l *domain.SyncLog) error
	GetActiveSyncLogs(ctx context.Context, tenantID uuid.UUID, campaignID string) ([]*domain.SyncLog, error)
	MarkSyncLogPaused(ctx context.Context, id uuid.UUID) error
	UpdateCampaignStatus(ctx context.Context, tenantID uuid.UUID, campaignID, status string) error
	DeleteProductSalesForCollections(ctx context.Context, tenantID uuid.UUID, collectionIDs []string) (int64, error)
	DeleteAssignmentsForCampaign(ctx context.Context, tenantID uuid.UUID, campaignID string) (int64, error)
}

// Ads is the ad-platform surface the syncer needs.
type Ads interface {
	GetCampaign(ctx context.Context, adAccountID, campaignID string) (*pinterest.Campaign, error)
	FirstActiveAdGroup(ctx context.Context, adAccountID, campaignID string) (*pinterest.AdGroup, error)
	CreateAdGroup(ctx context.Context, adAccountID string, group *pinterest.AdGroup) (string, error)
	CreatePin(ctx context.Context, pin *pinterest.PinCreate) (*pinterest.Pin, error)
	CreateAd(ctx context.Context, adAccountID string, ad *pinterest.AdCreate) (string, error)
	PauseAd(ctx context.Context, adAccountID, adID string) error
}

// Commerce is the commerce-platform surface the syncer needs.
type Commerce interface {
	GetCollectionProducts(ctx context.Context, collectionID string) ([]shopify.Product, error)
	GetSmartCollection(ctx context.Context, collectionID string) (*shopify.SmartCollection, error)
}

// Auth refreshes expired ad-platform tokens.
type Auth interface {
	EnsureFresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error)
}

// Syncer is the ad-sync pipeline.
type Syncer struct {
	Store    Store
	Commerce func(t *domain.Tenant) Commerce
	Ads      func(auth *domain.PinterestAuth) Ads
	Auth     Auth
	// Images downloads product images for pin media.
	Images httpretry.HTTPDoer
	FanOut int
	Now    func() time.Time
}

// runCounters aggregates JobRun metadata across tenant tasks.
type runCounters struct {
	pinsCreated      int64
	pinsFailed       int64
	adsPaused        int64
	campaignsCleaned int64
}

// Run fans the syncer out over every tenant with assignments.
func (s *Syncer) Run(ctx context.Context, result *jobs.Result) error {
	tenants, err := s.Store.GetTenantsWithAssignments(ctx)
	if err != nil {
		return err
	}
	log.Printf("[AdSync] processing %d tenants", len(tenants))

	counters := &runCounters{}
	err = jobs.FanOut(ctx, tenants, s.FanOut, result, func(ctx context.Context, tenant *domain.Tenant) error {
		return s.processTenant(ctx, tenant, result, counters)
	})

	result.SetMeta("pins_created", atomic.LoadInt64(&counters.pinsCreated))
	result.SetMeta("pins_failed", atomic.LoadInt64(&counters.pinsFailed))
	result.SetMeta("ads_paused", atomic.LoadInt64(&counters.adsPaused))
	result.SetMeta("campaigns_cleaned", atomic.LoadInt64(&counters.campaignsCleaned))
	return err
}

func (s *Syncer) processTenant(ctx context.Context, tenant *domain.Tenant, result *jobs.Result, counters *runCounters) error {
	op := "adsync.processTenant"

	auth, err := s.Store.GetPinterestAuth(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if auth == nil {
		return joberr.Newf(joberr.Validation, op, "tenant %s has no ad-platform connection", tenant.Name)
	}
	auth, err = s.Auth.EnsureFresh(ctx, auth)
	if err != nil {
		return err
	}

	account, err := s.Store.GetSelectedAdAccount(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if account == nil {
		return joberr.Newf(joberr.Validation, op, "tenant %s has no selected ad account", tenant.Name)
	}

	assignments, err := s.Store.GetAssignments(ctx, tenant.ID)
	if err != nil {
		return err
	}

	// Assignments group by campaign: phase 2 needs the union of product
	// ids across every batch feeding the campaign.
	byCampaign := make(map[string][]*domain.CampaignBatchAssignment)
	var campaignOrder []string
	for _, a := range assignments {
		if _, seen := byCampaign[a.CampaignID]; !seen {
			campaignOrder = append(campaignOrder, a.CampaignID)
		}
		byCampaign[a.CampaignID] = append(byCampaign[a.CampaignID], a)
	}

	ads := s.Ads(auth)
	commerce := s.Commerce(tenant)

	for _, campaignID := range campaignOrder {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processCampaign(ctx, tenant, ads, commerce, account.AdAccountID, campaignID, byCampaign[campaignID], counters); err != nil {
			log.Printf("[AdSync] %s: campaign %s failed: %v", tenant.Name, campaignID, err)
			result.AddError("%s: campaign %s: %v", tenant.Name, campaignID, err)
		}
	}
	return nil
}

func (s *Syncer) processCampaign(ctx context.Context, tenant *domain.Tenant, ads Ads, commerce Commerce,
	adAccountID, campaignID string, assignments []*domain.CampaignBatchAssignment, counters *runCounters) error {

	campaign, err := ads.GetCampaign(ctx, adAccountID, campaignID)
	if err != nil {
		if joberr.Is(err, joberr.NotFound) {
			log.Printf("[AdSync] %s: campaign %s no longer exists, skipping", tenant.Name, campaignID)
			return nil
		}
		return err
	}

	if campaign.Status == domain.CampaignPaused {
		return s.cleanupPausedCampaign(ctx, tenant, campaignID, assignments, counters)
	}
	if campaign.Status != domain.CampaignActive {
		log.Printf("[AdSync] %s: campaign %s is %s, skipping", tenant.Name, campaignID, campaign.Status)
		return nil
	}

	adGroupID, err := s.resolveAdGroup(ctx, ads, adAccountID, campaign)
	if err != nil {
		return err
	}

	// Phase 1: forward sync. synced collects every product id currently
	// present in the campaign's batches, whether or not a pin was created
	// this run.
	synced := make(map[string]bool)
	for _, assignment := range assignments {
		if err := s.syncAssignment(ctx, tenant, ads, commerce, adAccountID, adGroupID, assignment, synced, counters); err != nil {
			return err
		}
	}

	// Phase 2: reverse sync. Ads for products no longer in any batch get
	// paused, and their log rows marked so re-runs skip them.
	return s.pauseStaleAds(ctx, tenant, ads, adAccountID, campaignID, synced, counters)
}

// resolveAdGroup returns the campaign's first active ad group, creating a
// default one when the campaign has none.
func (s *Syncer) resolveAdGroup(ctx context.Context, ads Ads, adAccountID string, campaign *pinterest.Campaign) (string, error) {
	group, err := ads.FirstActiveAdGroup(ctx, adAccountID, campaign.ID)
	if err != nil {
		return "", err
	}
	if group != nil {
		return group.ID, nil
	}
	id, err := ads.CreateAdGroup(ctx, adAccountID, pinterest.NewDefaultAdGroup(campaign.ID, campaign.Name+" Ad Group"))
	if err != nil {
		return "", err
	}
	log.Printf("[AdSync] created ad group %s for campaign %s", id, campaign.ID)
	return id, nil
}

func (s *Syncer) syncAssignment(ctx context.Context, tenant *domain.Tenant, ads Ads, commerce Commerce,
	adAccountID, adGroupID string, assignment *domain.CampaignBatchAssignment, synced map[string]bool, counters *runCounters) error {

	if assignment.BoardID == "" {
		return joberr.Newf(joberr.Validation, "adsync.syncAssignment",
			"assignment %s has no board configured", assignment.ID)
	}

	products, err := commerce.GetCollectionProducts(ctx, assignment.CollectionID)
	if err != nil {
		return err
	}

	// The collection handle drives the pin's deep link; without it pins
	// fall back to the product page.
	collectionHandle := ""
	if collection, err := commerce.GetSmartCollection(ctx, assignment.CollectionID); err != nil {
		log.Printf("[AdSync] %s: could not resolve collection %s handle: %v", tenant.Name, assignment.CollectionID, err)
	} else {
		collectionHandle = collection.Handle
	}

	batchSize := assignment.EffectiveBatchSize()
	for _, batchIndex := range assignment.BatchIndices {
		for offset, product := range batchSlice(products, batchIndex, batchSize) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			productIndex := batchIndex*batchSize + offset
			productID := product.IDString()
			synced[productID] = true

			exists, err := s.Store.HasActiveSyncLog(ctx, tenant.ID, assignment.CampaignID, productID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			if err := s.createPinAndAd(ctx, tenant, ads, adAccountID, adGroupID, assignment, collectionHandle, &product, productIndex, counters); err != nil {
				// One product's pin failure does not stop the batch.
				atomic.AddInt64(&counters.pinsFailed, 1)
				log.Printf("[AdSync] %s: pin for product %s failed: %v", tenant.Name, productID, err)
			}
		}
	}
	return nil
}

func (s *Syncer) createPinAndAd(ctx context.Context, tenant *domain.Tenant, ads Ads,
	adAccountID, adGroupID string, assignment *domain.CampaignBatchAssignment,
	collectionHandle string, product *shopify.Product, productIndex int, counters *runCounters) error {

	entry := &domain.SyncLog{
		TenantID:   tenant.ID,
		CampaignID: assignment.CampaignID,
		ProductID:  product.IDString(),
		BoardID:    assignment.BoardID,
		AdGroupID:  adGroupID,
		SyncedAt:   s.Now(),
	}

	imageURL := product.PrimaryImageURL()
	if imageURL == "" {
		entry.Error = "product has no image"
		if err := s.Store.InsertSyncLog(ctx, entry); err != nil {
			return err
		}
		return joberr.Newf(joberr.NotFound, "adsync.createPinAndAd", "product %s has no image", entry.ProductID)
	}

	pin := &pinterest.PinCreate{
		BoardID:     assignment.BoardID,
		Title:       pinTitle(product.Title),
		Description: pinDescription(product.BodyHTML),
		Link:        pinLink(tenant.ShopDomain, collectionHandle, product.Handle, productIndex),
		MediaSource: s.pinMedia(ctx, imageURL),
	}

	created, err := ads.CreatePin(ctx, pin)
	if err != nil {
		entry.Error = err.Error()
		if logErr := s.Store.InsertSyncLog(ctx, entry); logErr != nil {
			log.Printf("[AdSync] %s: failed to record pin failure: %v", tenant.Name, logErr)
		}
		return err
	}
	entry.PinID = created.ID

	adID, err := ads.CreateAd(ctx, adAccountID, &pinterest.AdCreate{
		AdGroupID:    adGroupID,
		PinID:        created.ID,
		CreativeType: "REGULAR",
	})
	if err != nil {
		entry.Error = err.Error()
		if logErr := s.Store.InsertSyncLog(ctx, entry); logErr != nil {
			log.Printf("[AdSync] %s: failed to record ad failure: %v", tenant.Name, logErr)
		}
		return err
	}
	entry.AdID = adID
	entry.Success = true

	if err := s.Store.InsertSyncLog(ctx, entry); err != nil {
		return err
	}
	atomic.AddInt64(&counters.pinsCreated, 1)
	return nil
}

// pinMedia downloads and re-encodes the product image into the 1000x1500
// pin format. When the download or re-encode fails the platform fetches
// the original URL itself.
func (s *Syncer) pinMedia(ctx context.Context, imageURL string) pinterest.MediaSource {
	data, err := s.downloadImage(ctx, imageURL)
	if err != nil {
		log.Printf("[AdSync] image download failed, falling back to URL source: %v", err)
		return pinterest.ImagePinSource(imageURL)
	}
	encoded, err := imageutil.ToPinJPEG(data)
	if err != nil {
		log.Printf("[AdSync] image re-encode failed, falling back to URL source: %v", err)
		return pinterest.ImagePinSource(imageURL)
	}
	return pinterest.Base64PinSource(base64.StdEncoding.EncodeToString(encoded), "image/jpeg")
}

func (s *Syncer) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Images.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20<<20))
}

func (s *Syncer) pauseStaleAds(ctx context.Context, tenant *domain.Tenant, ads Ads,
	adAccountID, campaignID string, synced map[string]bool, counters *runCounters) error {

	logs, err := s.Store.GetActiveSyncLogs(ctx, tenant.ID, campaignID)
	if err != nil {
		return err
	}
	for _, entry := range logs {
		if synced[entry.ProductID] {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.AdID != "" {
			if err := ads.PauseAd(ctx, adAccountID, entry.AdID); err != nil {
				if !joberr.Is(err, joberr.NotFound) {
					return err
				}
				// Ad already gone on the platform; still retire the row.
			}
		}
		if err := s.Store.MarkSyncLogPaused(ctx, entry.ID); err != nil {
			return err
		}
		atomic.AddInt64(&counters.adsPaused, 1)
		log.Printf("[AdSync] %s: paused ad %s for product %s (out of batch)", tenant.Name, entry.AdID, entry.ProductID)
	}
	return nil
}

// cleanupPausedCampaign unbinds a campaign that was paused on the
// platform: its sales aggregates and assignment rows go away, the sync
// log stays as history.
func (s *Syncer) cleanupPausedCampaign(ctx context.Context, tenant *domain.Tenant, campaignID string,
	assignments []*domain.CampaignBatchAssignment, counters *runCounters) error {

	collectionIDs := make([]string, 0, len(assignments))
	seen := make(map[string]bool)
	for _, a := range assignments {
		if !seen[a.CollectionID] {
			seen[a.CollectionID] = true
			collectionIDs = append(collectionIDs, a.CollectionID)
		}
	}

	salesDeleted, err := s.Store.DeleteProductSalesForCollections(ctx, tenant.ID, collectionIDs)
	if err != nil {
		return err
	}
	assignmentsDeleted, err := s.Store.DeleteAssignmentsForCampaign(ctx, tenant.ID, campaignID)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateCampaignStatus(ctx, tenant.ID, campaignID, domain.CampaignPaused); err != nil {
		return err
	}

	atomic.AddInt64(&counters.campaignsCleaned, 1)
	log.Printf("[AdSync] %s: campaign %s paused on platform, cleaned up %d sales rows and %d assignments",
		tenant.Name, campaignID, salesDeleted, assignmentsDeleted)
	return nil
}
