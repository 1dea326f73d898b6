package winners

import (
	"context"
	"errors"
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
	"github.com/ignite/podpilot/internal/objectstore"
	"github.com/ignite/podpilot/internal/pinterest"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/shopify"
)

// Store is the persistence surface the scaler needs.
type Store interface {
	GetTenantsWithWinnerScaling(ctx context.Context) ([]*domain.Tenant, error)
	GetWinnerScalingSettings(ctx context.Context, tenantID uuid.UUID) (*domain.WinnerScalingSettings, error)
	GetRecentSellers(ctx context.Context, tenantID uuid.UUID) ([]*domain.ProductSales, error)
	UpsertWinner(ctx context.Context, w *domain.WinnerProduct) (*domain.WinnerProduct, error)
	GetActiveWinners(ctx context.Context, tenantID uuid.UUID) ([]*domain.WinnerProduct, error)
	GetWinnerCampaigns(ctx context.Context, winnerID uuid.UUID) ([]*domain.WinnerCampaign, error)
	UpdateWinnerCampaignStatus(ctx context.Context, id uuid.UUID, status string) error
	InsertWinnerCampaign(ctx context.Context, c *domain.WinnerCampaign) error
	InsertWinnerScalingLog(ctx context.Context, l *domain.WinnerScalingLog) error
	GetLatestSyncLogForProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*domain.SyncLog, error)
	GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error)
	GetSelectedAdAccount(ctx context.Context, tenantID uuid.UUID) (*domain.AdAccount, error)
	UpsertMirroredCampaign(ctx context.Context, c *domain.Campaign) error
}

// Ads is the ad-platform surface the scaler needs.
type Ads interface {
	GetCampaign(ctx context.Context, adAccountID, campaignID string) (*pinterest.Campaign, error)
	ListAdGroups(ctx context.Context, adAccountID, campaignID string) ([]pinterest.AdGroup, error)
	CreateCampaign(ctx context.Context, adAccountID string, campaign *pinterest.Campaign) (string, error)
	CreateAdGroup(ctx context.Context, adAccountID string, group *pinterest.AdGroup) (string, error)
	CreatePin(ctx context.Context, pin *pinterest.PinCreate) (*pinterest.Pin, error)
	CreateAd(ctx context.Context, adAccountID string, ad *pinterest.AdCreate) (string, error)
	RegisterMedia(ctx context.Context, mediaType string) (*pinterest.MediaUpload, error)
	UploadMedia(ctx context.Context, upload *pinterest.MediaUpload, video []byte) error
	WaitForMedia(ctx context.Context, mediaID string, pollInterval, budget time.Duration) error
}

// Commerce is the commerce-platform surface the scaler needs.
type Commerce interface {
	GetProduct(ctx context.Context, productID int64) (*shopify.Product, error)
	GetSmartCollection(ctx context.Context, collectionID string) (*shopify.SmartCollection, error)
}

// Auth refreshes expired ad-platform tokens.
type Auth interface {
	EnsureFresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error)
}

// ImageGenerator produces one creative image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, referenceImage []byte) ([]byte, error)
}

// VideoGenerator produces one 9:16 creative video.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt string, conditioningImage []byte) ([]byte, error)
}

// Scaler is the winner-scaler pipeline.
type Scaler struct {
	Store    Store
	Commerce func(t *domain.Tenant) Commerce
	Ads      func(auth *domain.PinterestAuth) Ads
	Auth     Auth
	// Images downloads product reference images for creative generation.
	Images   httpretry.HTTPDoer
	ImageGen ImageGenerator
	VideoGen VideoGenerator
	Uploader objectstore.Uploader

	// Video ads fail until the platform finishes transcoding the
	// uploaded media; these bound the wait-and-retry loop.
	TranscodeRetries int
	TranscodeDelay   time.Duration

	// MediaPollInterval/MediaPollBudget bound the upload-status poll.
	MediaPollInterval time.Duration
	MediaPollBudget   time.Duration

	FanOut int
	Now    func() time.Time
}

// creativeAsset is one generated creative, uploaded to object storage
// and, for video, registered with the ad platform.
type creativeAsset struct {
	url     string
	mediaID string
}

func (s *Scaler) transcodeRetries() int {
	if s.TranscodeRetries <= 0 {
		return 5
	}
	return s.TranscodeRetries
}

func (s *Scaler) transcodeDelay() time.Duration {
	if s.TranscodeDelay <= 0 {
		return 30 * time.Second
	}
	return s.TranscodeDelay
}

func (s *Scaler) mediaPollInterval() time.Duration {
	if s.MediaPollInterval <= 0 {
		return 10 * time.Second
	}
	return s.MediaPollInterval
}

func (s *Scaler) mediaPollBudget() time.Duration {
	if s.MediaPollBudget <= 0 {
		return 5 * time.Minute
	}
	return s.MediaPollBudget
}

// Run fans the scaler out over every tenant with winner scaling enabled.
func (s *Scaler) Run(ctx context.Context, result *jobs.Result) error {
	tenants, err := s.Store.GetTenantsWithWinnerScaling(ctx)
	if err != nil {
		return err
	}
	log.Printf("[WinnerScaler] processing %d tenants", len(tenants))

	var identified, campaignsCreated, limitHit int64
	err = jobs.FanOut(ctx, tenants, s.FanOut, result, func(ctx context.Context, tenant *domain.Tenant) error {
		return s.processTenant(ctx, tenant, result, &identified, &campaignsCreated, &limitHit)
	})

	result.SetMeta("winners_identified", atomic.LoadInt64(&identified))
	result.SetMeta("campaigns_created", atomic.LoadInt64(&campaignsCreated))
	result.SetMeta("api_limit_reached", atomic.LoadInt64(&limitHit) > 0)
	return err
}

func (s *Scaler) processTenant(ctx context.Context, tenant *domain.Tenant, result *jobs.Result, identified, campaignsCreated, limitHit *int64) error {
	op := "winners.processTenant"

	set, err := s.Store.GetWinnerScalingSettings(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if set == nil || !set.Enabled {
		return nil
	}

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

	commerce := s.Commerce(tenant)
	ads := s.Ads(auth)

	n, err := s.identifyWinners(ctx, tenant, commerce, set)
	atomic.AddInt64(identified, int64(n))
	if err != nil {
		return err
	}

	winners, err := s.Store.GetActiveWinners(ctx, tenant.ID)
	if err != nil {
		return err
	}

	// Quota flags are per modality for the whole tenant run: once the AI
	// API reports a quota hit, no more creatives of that kind this run.
	videoLimited, imageLimited := false, false

	for _, winner := range winners {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		created, vLim, iLim, err := s.refillWinner(ctx, tenant, ads, account.AdAccountID, set, winner, videoLimited, imageLimited)
		atomic.AddInt64(campaignsCreated, int64(created))
		videoLimited = videoLimited || vLim
		imageLimited = imageLimited || iLim
		if err != nil {
			log.Printf("[WinnerScaler] %s: winner %s failed: %v", tenant.Name, winner.ProductID, err)
			result.AddError("%s: winner %s: %v", tenant.Name, winner.ProductID, err)
		}
	}
	if videoLimited || imageLimited {
		atomic.AddInt64(limitHit, 1)
	}
	return nil
}

// refillWinner reconciles the winner's campaign statuses with the
// platform and spawns campaigns up to the per-modality caps.
func (s *Scaler) refillWinner(ctx context.Context, tenant *domain.Tenant, ads Ads, adAccountID string,
	set *domain.WinnerScalingSettings, winner *domain.WinnerProduct, videoLimited, imageLimited bool) (int, bool, bool, error) {

	campaigns, err := s.Store.GetWinnerCampaigns(ctx, winner.ID)
	if err != nil {
		return 0, videoLimited, imageLimited, err
	}

	activeVideo, activeImage := 0, 0
	for _, c := range campaigns {
		status, err := s.reconcileStatus(ctx, ads, adAccountID, c)
		if err != nil {
			return 0, videoLimited, imageLimited, err
		}
		if status != domain.CampaignActive {
			continue
		}
		switch c.CreativeType {
		case domain.CreativeVideo:
			activeVideo++
		case domain.CreativeImage:
			activeImage++
		}
	}

	needVideo := set.MaxVideoCampaigns - activeVideo
	needImage := set.MaxImageCampaigns - activeImage
	if needVideo <= 0 && needImage <= 0 {
		return 0, videoLimited, imageLimited, nil
	}

	created := 0
	if needVideo > 0 && !videoLimited {
		n, err := s.spawnCampaigns(ctx, tenant, ads, adAccountID, set, winner, domain.CreativeVideo, needVideo)
		created += n
		if err != nil {
			if joberr.Is(err, joberr.QuotaExceeded) {
				videoLimited = true
				s.auditLimit(ctx, tenant, winner, domain.CreativeVideo)
			} else {
				return created, videoLimited, imageLimited, err
			}
		}
	}
	if needImage > 0 && !imageLimited {
		n, err := s.spawnCampaigns(ctx, tenant, ads, adAccountID, set, winner, domain.CreativeImage, needImage)
		created += n
		if err != nil {
			if joberr.Is(err, joberr.QuotaExceeded) {
				imageLimited = true
				s.auditLimit(ctx, tenant, winner, domain.CreativeImage)
			} else {
				return created, videoLimited, imageLimited, err
			}
		}
	}
	return created, videoLimited, imageLimited, nil
}

// reconcileStatus mirrors the platform status onto a locally ACTIVE
// winner campaign, so a manually paused campaign frees its cap slot.
func (s *Scaler) reconcileStatus(ctx context.Context, ads Ads, adAccountID string, c *domain.WinnerCampaign) (string, error) {
	if c.Status != domain.CampaignActive {
		return c.Status, nil
	}
	platform, err := ads.GetCampaign(ctx, adAccountID, c.PinterestCampaignID)
	if err != nil {
		if joberr.Is(err, joberr.NotFound) {
			if err := s.Store.UpdateWinnerCampaignStatus(ctx, c.ID, domain.CampaignArchived); err != nil {
				return "", err
			}
			return domain.CampaignArchived, nil
		}
		return "", err
	}
	if platform.Status != c.Status {
		if err := s.Store.UpdateWinnerCampaignStatus(ctx, c.ID, platform.Status); err != nil {
			return "", err
		}
		return platform.Status, nil
	}
	return c.Status, nil
}

// spawnCampaigns creates up to need campaigns for one modality, cycling
// through the enabled link destinations. Each iteration generates one
// creative set shared by its campaigns (the A/B pair sees identical
// creatives).
func (s *Scaler) spawnCampaigns(ctx context.Context, tenant *domain.Tenant, ads Ads, adAccountID string,
	set *domain.WinnerScalingSettings, winner *domain.WinnerProduct, modality domain.CreativeType, need int) (int, error) {

	clone, err := s.cloneSource(ctx, tenant, ads, adAccountID, winner)
	if err != nil {
		return 0, err
	}
	if clone == nil {
		s.audit(ctx, tenant, winner, "skipped", "no original campaign or board to clone from")
		return 0, nil
	}

	linkTypes := enabledLinkTypes(set)
	created := 0
	for created < need {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		assets, err := s.generateCreatives(ctx, ads, winner, modality, set.CreativesPerCampaign)
		if err != nil {
			return created, err
		}
		for _, linkType := range linkTypes {
			if created >= need {
				break
			}
			if err := s.createCampaign(ctx, tenant, ads, adAccountID, winner, modality, linkType, assets, clone); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

// cloneSettings carries the targeting cloned from the original campaign,
// plus the board the original product's pins were created on.
type cloneSettings struct {
	campaign *pinterest.Campaign
	adGroup  *pinterest.AdGroup
	boardID  string
}

// cloneSource locates the original campaign and ad group whose targeting
// the new campaigns inherit. Returns nil when the product was never
// synced to a campaign.
func (s *Scaler) cloneSource(ctx context.Context, tenant *domain.Tenant, ads Ads, adAccountID string, winner *domain.WinnerProduct) (*cloneSettings, error) {
	campaignID := winner.OriginalCampaignID
	adGroupID, boardID := "", ""
	if syncLog, err := s.Store.GetLatestSyncLogForProduct(ctx, tenant.ID, winner.ProductID); err != nil {
		return nil, err
	} else if syncLog != nil {
		campaignID = syncLog.CampaignID
		adGroupID = syncLog.AdGroupID
		boardID = syncLog.BoardID
	}
	if campaignID == "" || boardID == "" {
		return nil, nil
	}

	campaign, err := ads.GetCampaign(ctx, adAccountID, campaignID)
	if err != nil {
		if joberr.Is(err, joberr.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	groups, err := ads.ListAdGroups(ctx, adAccountID, campaignID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	adGroup := &groups[0]
	for i := range groups {
		if groups[i].ID == adGroupID {
			adGroup = &groups[i]
			break
		}
	}
	return &cloneSettings{campaign: campaign, adGroup: adGroup, boardID: boardID}, nil
}

// generateCreatives produces one creative set: generated bytes uploaded
// to object storage and, for video, registered with the ad platform.
func (s *Scaler) generateCreatives(ctx context.Context, ads Ads, winner *domain.WinnerProduct, modality domain.CreativeType, count int) ([]creativeAsset, error) {
	reference := s.referenceImage(ctx, winner.ImageURL)
	prompt := creativePrompt(winner.Title)
	now := s.Now().UnixNano()

	assets := make([]creativeAsset, 0, count)
	for i := 0; i < count; i++ {
		switch modality {
		case domain.CreativeVideo:
			video, err := s.VideoGen.GenerateVideo(ctx, prompt, reference)
			if err != nil {
				return nil, err
			}
			key := fmt.Sprintf("winners/%s/video-%d-%d.mp4", winner.ID, now, i)
			url, err := s.Uploader.Upload(ctx, key, video, "video/mp4")
			if err != nil {
				return nil, err
			}
			mediaID, err := s.uploadToPlatform(ctx, ads, video)
			if err != nil {
				return nil, err
			}
			assets = append(assets, creativeAsset{url: url, mediaID: mediaID})

		case domain.CreativeImage:
			generated, err := s.ImageGen.GenerateImage(ctx, prompt, reference)
			if err != nil {
				return nil, err
			}
			encoded, err := imageutil.ToPinPNG(generated)
			if err != nil {
				return nil, err
			}
			key := fmt.Sprintf("winners/%s/image-%d-%d.png", winner.ID, now, i)
			url, err := s.Uploader.Upload(ctx, key, encoded, "image/png")
			if err != nil {
				return nil, err
			}
			assets = append(assets, creativeAsset{url: url})
		}
	}
	return assets, nil
}

// uploadToPlatform registers, uploads, and polls a video on the ad
// platform, returning the ready media id.
func (s *Scaler) uploadToPlatform(ctx context.Context, ads Ads, video []byte) (string, error) {
	upload, err := ads.RegisterMedia(ctx, "video")
	if err != nil {
		return "", err
	}
	if err := ads.UploadMedia(ctx, upload, video); err != nil {
		return "", err
	}
	if err := ads.WaitForMedia(ctx, upload.MediaID, s.mediaPollInterval(), s.mediaPollBudget()); err != nil {
		return "", err
	}
	return upload.MediaID, nil
}

func (s *Scaler) createCampaign(ctx context.Context, tenant *domain.Tenant, ads Ads, adAccountID string,
	winner *domain.WinnerProduct, modality domain.CreativeType, linkType domain.LinkType,
	assets []creativeAsset, clone *cloneSettings) error {

	budget := clone.campaign.DailySpendCap
	if budget <= 0 {
		budget = pinterest.DollarsToMicro(10)
	}
	campaignID, err := ads.CreateCampaign(ctx, adAccountID, &pinterest.Campaign{
		Name:          campaignName(winner.Title, modality, linkType),
		Status:        domain.CampaignActive,
		ObjectiveType: clone.campaign.ObjectiveType,
		TrackingURLs:  clone.campaign.TrackingURLs,
		DailySpendCap: budget,
	})
	if err != nil {
		return err
	}

	groupBudget := clone.adGroup.BudgetInMicroCurrency
	if groupBudget <= 0 {
		groupBudget = pinterest.DollarsToMicro(10)
	}
	adGroupID, err := ads.CreateAdGroup(ctx, adAccountID, &pinterest.AdGroup{
		CampaignID:               campaignID,
		Name:                     campaignName(winner.Title, modality, linkType) + " Ad Group",
		Status:                   domain.CampaignActive,
		BudgetInMicroCurrency:    groupBudget,
		BillableEvent:            clone.adGroup.BillableEvent,
		BidStrategyType:          clone.adGroup.BidStrategyType,
		TargetingSpec:            clone.adGroup.TargetingSpec,
		OptimizationGoalMetadata: clone.adGroup.OptimizationGoalMetadata,
		AutoTargetingEnabled:     clone.adGroup.AutoTargetingEnabled,
		PacingDeliveryType:       clone.adGroup.PacingDeliveryType,
	})
	if err != nil {
		return err
	}

	destination := destinationURL(tenant.ShopDomain, winner, linkType)
	assetURLs := make([]string, 0, len(assets))
	for _, asset := range assets {
		assetURLs = append(assetURLs, asset.url)
		if err := s.promoteAsset(ctx, ads, adAccountID, adGroupID, clone.boardID, winner, modality, destination, asset); err != nil {
			return err
		}
	}

	record := &domain.WinnerCampaign{
		TenantID:            tenant.ID,
		WinnerID:            winner.ID,
		PinterestCampaignID: campaignID,
		AdGroupID:           adGroupID,
		CreativeType:        modality,
		CreativeCount:       len(assets),
		LinkType:            linkType,
		Status:              domain.CampaignActive,
		GeneratedAssets:     assetURLs,
	}
	if err := s.Store.InsertWinnerCampaign(ctx, record); err != nil {
		return err
	}
	if err := s.Store.UpsertMirroredCampaign(ctx, &domain.Campaign{
		TenantID:            tenant.ID,
		PinterestCampaignID: campaignID,
		Name:                campaignName(winner.Title, modality, linkType),
		Status:              domain.CampaignActive,
		DailyBudget:         pinterest.MicroToDollars(budget),
		IsWinnerCampaign:    true,
	}); err != nil {
		return err
	}

	s.audit(ctx, tenant, winner, "campaign_created",
		fmt.Sprintf("%s %s campaign %s with %d creatives", modality, linkType, campaignID, len(assets)))
	log.Printf("[WinnerScaler] %s: created %s %s campaign %s for winner %s",
		tenant.Name, modality, linkType, campaignID, winner.ProductID)
	return nil
}

// promoteAsset creates the pin and ad for one creative. Video promotion
// retries while the platform is still transcoding the media.
func (s *Scaler) promoteAsset(ctx context.Context, ads Ads, adAccountID, adGroupID, boardID string,
	winner *domain.WinnerProduct, modality domain.CreativeType, destination string, asset creativeAsset) error {

	pin := &pinterest.PinCreate{
		BoardID: boardID,
		Title:   winner.Title,
		Link:    destination,
	}
	creativeType := "REGULAR"
	if modality == domain.CreativeVideo {
		pin.MediaSource = pinterest.VideoPinSource(asset.mediaID, winner.ImageURL)
		creativeType = "VIDEO"
	} else {
		pin.MediaSource = pinterest.ImagePinSource(asset.url)
	}

	created, err := ads.CreatePin(ctx, pin)
	if err != nil {
		return err
	}

	ad := &pinterest.AdCreate{
		AdGroupID:      adGroupID,
		PinID:          created.ID,
		CreativeType:   creativeType,
		DestinationURL: destination,
	}
	for attempt := 0; ; attempt++ {
		_, err := ads.CreateAd(ctx, adAccountID, ad)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pinterest.ErrStillTranscoding) || attempt >= s.transcodeRetries() {
			return err
		}
		log.Printf("[WinnerScaler] pin %s still transcoding, retry %d/%d", created.ID, attempt+1, s.transcodeRetries())
		timer := time.NewTimer(s.transcodeDelay())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// referenceImage downloads the winner's product image for conditioning;
// generation proceeds without it on failure.
func (s *Scaler) referenceImage(ctx context.Context, imageURL string) []byte {
	if imageURL == "" || s.Images == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil
	}
	resp, err := s.Images.Do(req)
	if err != nil {
		log.Printf("[WinnerScaler] reference image download failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil
	}
	return data
}

func (s *Scaler) audit(ctx context.Context, tenant *domain.Tenant, winner *domain.WinnerProduct, action, detail string) {
	winnerID := winner.ID
	entry := &domain.WinnerScalingLog{
		TenantID:  tenant.ID,
		WinnerID:  &winnerID,
		ProductID: winner.ProductID,
		Action:    action,
		Detail:    detail,
	}
	if err := s.Store.InsertWinnerScalingLog(ctx, entry); err != nil {
		log.Printf("[WinnerScaler] failed to write scaling log: %v", err)
	}
}

func (s *Scaler) auditLimit(ctx context.Context, tenant *domain.Tenant, winner *domain.WinnerProduct, modality domain.CreativeType) {
	s.audit(ctx, tenant, winner, "api_limit_reached",
		fmt.Sprintf("%s generation stopped for the rest of the run", modality))
	log.Printf("[WinnerScaler] %s: %s creative API quota exhausted", tenant.Name, modality)
}

// enabledLinkTypes returns the link destinations campaigns are created
// for; product links are the default when neither is enabled.
func enabledLinkTypes(set *domain.WinnerScalingSettings) []domain.LinkType {
	var types []domain.LinkType
	if set.ProductLinksEnabled {
		types = append(types, domain.LinkProduct)
	}
	if set.CollectionLinksEnabled {
		types = append(types, domain.LinkCollection)
	}
	if len(types) == 0 {
		types = append(types, domain.LinkProduct)
	}
	return types
}

func destinationURL(shopDomain string, winner *domain.WinnerProduct, linkType domain.LinkType) string {
	if linkType == domain.LinkCollection && winner.CollectionHandle != "" {
		return fmt.Sprintf("https://%s/collections/%s", shopDomain, winner.CollectionHandle)
	}
	return fmt.Sprintf("https://%s/products/%s", shopDomain, winner.Handle)
}

func campaignName(title string, modality domain.CreativeType, linkType domain.LinkType) string {
	runes := []rune(title)
	if len(runes) > 60 {
		title = string(runes[:60])
	}
	return fmt.Sprintf("[Winner] %s (%s/%s)", title, modality, linkType)
}

func creativePrompt(title string) string {
	return fmt.Sprintf("Eye-catching vertical product advertisement for %q, clean studio lighting, bold product focus, no text overlays", title)
}
