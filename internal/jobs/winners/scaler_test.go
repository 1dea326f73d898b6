package winners

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/pinterest"
	"github.com/ignite/podpilot/internal/shopify"
)

func testSettings() *domain.WinnerScalingSettings {
	return &domain.WinnerScalingSettings{
		Enabled:              true,
		Threshold3D:          5,
		Threshold7D:          10,
		Threshold10D:         15,
		Threshold14D:         20,
		MinBucketsRequired:   3,
		MaxVideoCampaigns:    1,
		MaxImageCampaigns:    1,
		ProductLinksEnabled:  true,
		CreativesPerCampaign: 1,
	}
}

func TestBucketsPassed(t *testing.T) {
	set := testSettings()

	// 6>=5, 12>=10, 14<15, 25>=20: three of four buckets.
	row := &domain.ProductSales{Last3Days: 6, Last7Days: 12, Last10Days: 14, Last14Days: 25}
	if got := BucketsPassed(set, row); got != 3 {
		t.Errorf("BucketsPassed = %d, want 3", got)
	}

	row = &domain.ProductSales{Last3Days: 4, Last7Days: 9, Last10Days: 14, Last14Days: 19}
	if got := BucketsPassed(set, row); got != 0 {
		t.Errorf("BucketsPassed = %d, want 0", got)
	}
}

// fakes

type fakeWinStore struct {
	tenant   *domain.Tenant
	settings *domain.WinnerScalingSettings
	sellers  []*domain.ProductSales
	syncLogs map[string]*domain.SyncLog // keyed by product id

	winners           map[string]*domain.WinnerProduct // keyed by product id
	winnerCampaigns   map[uuid.UUID][]*domain.WinnerCampaign
	insertedCampaigns []*domain.WinnerCampaign
	statusUpdates     map[uuid.UUID]string
	scalingLogs       []*domain.WinnerScalingLog
	mirrored          []*domain.Campaign
}

func (f *fakeWinStore) GetTenantsWithWinnerScaling(ctx context.Context) ([]*domain.Tenant, error) {
	return []*domain.Tenant{f.tenant}, nil
}

func (f *fakeWinStore) GetWinnerScalingSettings(ctx context.Context, tenantID uuid.UUID) (*domain.WinnerScalingSettings, error) {
	return f.settings, nil
}

func (f *fakeWinStore) GetRecentSellers(ctx context.Context, tenantID uuid.UUID) ([]*domain.ProductSales, error) {
	return f.sellers, nil
}

func (f *fakeWinStore) UpsertWinner(ctx context.Context, w *domain.WinnerProduct) (*domain.WinnerProduct, error) {
	if f.winners == nil {
		f.winners = map[string]*domain.WinnerProduct{}
	}
	// Insert-or-keep: an existing row wins, whatever its active flag.
	if existing, ok := f.winners[w.ProductID]; ok {
		return existing, nil
	}
	w.ID = uuid.New()
	w.IsActive = true
	f.winners[w.ProductID] = w
	return w, nil
}

func (f *fakeWinStore) GetActiveWinners(ctx context.Context, tenantID uuid.UUID) ([]*domain.WinnerProduct, error) {
	var out []*domain.WinnerProduct
	for _, w := range f.winners {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWinStore) GetWinnerCampaigns(ctx context.Context, winnerID uuid.UUID) ([]*domain.WinnerCampaign, error) {
	return f.winnerCampaigns[winnerID], nil
}

func (f *fakeWinStore) UpdateWinnerCampaignStatus(ctx context.Context, id uuid.UUID, status string) error {
	if f.statusUpdates == nil {
		f.statusUpdates = map[uuid.UUID]string{}
	}
	f.statusUpdates[id] = status
	for _, list := range f.winnerCampaigns {
		for _, c := range list {
			if c.ID == id {
				c.Status = status
			}
		}
	}
	return nil
}

func (f *fakeWinStore) InsertWinnerCampaign(ctx context.Context, c *domain.WinnerCampaign) error {
	c.ID = uuid.New()
	f.insertedCampaigns = append(f.insertedCampaigns, c)
	if f.winnerCampaigns == nil {
		f.winnerCampaigns = map[uuid.UUID][]*domain.WinnerCampaign{}
	}
	f.winnerCampaigns[c.WinnerID] = append(f.winnerCampaigns[c.WinnerID], c)
	return nil
}

func (f *fakeWinStore) InsertWinnerScalingLog(ctx context.Context, l *domain.WinnerScalingLog) error {
	f.scalingLogs = append(f.scalingLogs, l)
	return nil
}

func (f *fakeWinStore) GetLatestSyncLogForProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*domain.SyncLog, error) {
	return f.syncLogs[productID], nil
}

func (f *fakeWinStore) GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error) {
	return &domain.PinterestAuth{TenantID: tenantID, AccessToken: "tok"}, nil
}

func (f *fakeWinStore) GetSelectedAdAccount(ctx context.Context, tenantID uuid.UUID) (*domain.AdAccount, error) {
	return &domain.AdAccount{AdAccountID: "aa-1", Selected: true}, nil
}

func (f *fakeWinStore) UpsertMirroredCampaign(ctx context.Context, c *domain.Campaign) error {
	f.mirrored = append(f.mirrored, c)
	return nil
}

type fakeWinAds struct {
	platform map[string]*pinterest.Campaign
	adGroups map[string][]pinterest.AdGroup

	createdCampaigns []*pinterest.Campaign
	createdAdGroups  []*pinterest.AdGroup
	pins             []*pinterest.PinCreate
	ads              []*pinterest.AdCreate
	registeredMedia  int

	// CreateAd fails this many times with ErrStillTranscoding first.
	transcodeFailures int
	adAttempts        int
	nextID            int
}

func (f *fakeWinAds) GetCampaign(ctx context.Context, adAccountID, campaignID string) (*pinterest.Campaign, error) {
	if c, ok := f.platform[campaignID]; ok {
		return c, nil
	}
	return nil, joberr.Newf(joberr.NotFound, "test", "campaign %s not found", campaignID)
}

func (f *fakeWinAds) ListAdGroups(ctx context.Context, adAccountID, campaignID string) ([]pinterest.AdGroup, error) {
	return f.adGroups[campaignID], nil
}

func (f *fakeWinAds) CreateCampaign(ctx context.Context, adAccountID string, campaign *pinterest.Campaign) (string, error) {
	f.nextID++
	campaign.ID = fmt.Sprintf("wc-%d", f.nextID)
	f.createdCampaigns = append(f.createdCampaigns, campaign)
	f.platform[campaign.ID] = campaign
	return campaign.ID, nil
}

func (f *fakeWinAds) CreateAdGroup(ctx context.Context, adAccountID string, group *pinterest.AdGroup) (string, error) {
	f.nextID++
	group.ID = fmt.Sprintf("wg-%d", f.nextID)
	f.createdAdGroups = append(f.createdAdGroups, group)
	return group.ID, nil
}

func (f *fakeWinAds) CreatePin(ctx context.Context, pin *pinterest.PinCreate) (*pinterest.Pin, error) {
	f.pins = append(f.pins, pin)
	return &pinterest.Pin{ID: "pin-1", BoardID: pin.BoardID}, nil
}

func (f *fakeWinAds) CreateAd(ctx context.Context, adAccountID string, ad *pinterest.AdCreate) (string, error) {
	f.adAttempts++
	if f.transcodeFailures > 0 {
		f.transcodeFailures--
		return "", pinterest.ErrStillTranscoding
	}
	f.ads = append(f.ads, ad)
	return "ad-1", nil
}

func (f *fakeWinAds) RegisterMedia(ctx context.Context, mediaType string) (*pinterest.MediaUpload, error) {
	f.registeredMedia++
	return &pinterest.MediaUpload{MediaID: "media-1", MediaType: mediaType}, nil
}

func (f *fakeWinAds) UploadMedia(ctx context.Context, upload *pinterest.MediaUpload, video []byte) error {
	return nil
}

func (f *fakeWinAds) WaitForMedia(ctx context.Context, mediaID string, pollInterval, budget time.Duration) error {
	return nil
}

type fakeWinCommerce struct{}

func (fakeWinCommerce) GetProduct(ctx context.Context, productID int64) (*shopify.Product, error) {
	return &shopify.Product{ID: productID, Title: "Cool Shirt", Handle: "cool-shirt"}, nil
}

func (fakeWinCommerce) GetSmartCollection(ctx context.Context, collectionID string) (*shopify.SmartCollection, error) {
	return &shopify.SmartCollection{ID: 1, Handle: "best-sellers"}, nil
}

type winAuth struct{}

func (winAuth) EnsureFresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error) {
	return auth, nil
}

type fakeImageGen struct {
	err   error
	calls int
}

func (g *fakeImageGen) GenerateImage(ctx context.Context, prompt string, referenceImage []byte) ([]byte, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return testPNG(), nil
}

type fakeVideoGen struct {
	err   error
	calls int
}

func (g *fakeVideoGen) GenerateVideo(ctx context.Context, prompt string, conditioningImage []byte) ([]byte, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return []byte("mp4-bytes"), nil
}

type fakeUploader struct {
	keys []string
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	u.keys = append(u.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func testPNG() []byte {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 6)))
	return buf.Bytes()
}

func winnerFixtureStore() *fakeWinStore {
	tenant := &domain.Tenant{ID: uuid.New(), Name: "acme", ShopDomain: "acme.myshopify.com", AccessToken: "t"}
	return &fakeWinStore{
		tenant:   tenant,
		settings: testSettings(),
		sellers: []*domain.ProductSales{{
			TenantID: tenant.ID, ProductID: "100", CollectionID: "col-1", ProductTitle: "Cool Shirt",
			Last3Days: 6, Last7Days: 12, Last10Days: 14, Last14Days: 25,
		}},
		syncLogs: map[string]*domain.SyncLog{
			"100": {CampaignID: "orig-c", AdGroupID: "ag-orig", BoardID: "board-1", ProductID: "100", Success: true},
		},
	}
}

func fixtureAds() *fakeWinAds {
	return &fakeWinAds{
		platform: map[string]*pinterest.Campaign{
			"orig-c": {ID: "orig-c", Status: "ACTIVE", ObjectiveType: "WEB_CONVERSION", DailySpendCap: pinterest.DollarsToMicro(20)},
		},
		adGroups: map[string][]pinterest.AdGroup{
			"orig-c": {{
				ID: "ag-orig", CampaignID: "orig-c", BillableEvent: "CLICKTHROUGH",
				BidStrategyType: "AUTOMATIC_BID", AutoTargetingEnabled: true,
				BudgetInMicroCurrency: pinterest.DollarsToMicro(20),
			}},
		},
	}
}

func newTestScaler(st *fakeWinStore, ads *fakeWinAds, img *fakeImageGen, vid *fakeVideoGen, up *fakeUploader) *Scaler {
	return &Scaler{
		Store:          st,
		Commerce:       func(*domain.Tenant) Commerce { return fakeWinCommerce{} },
		Ads:            func(*domain.PinterestAuth) Ads { return ads },
		Auth:           winAuth{},
		ImageGen:       img,
		VideoGen:       vid,
		Uploader:       up,
		TranscodeDelay: time.Millisecond,
		FanOut:         1,
		Now:            func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) },
	}
}

func TestScaler_IdentifiesWinnerAndCreatesCampaigns(t *testing.T) {
	st := winnerFixtureStore()
	ads := fixtureAds()
	img, vid, up := &fakeImageGen{}, &fakeVideoGen{}, &fakeUploader{}

	result := jobs.NewResult()
	if err := newTestScaler(st, ads, img, vid, up).Run(context.Background(), result); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("failed=%d errors=%v", result.Failed, result.Errors)
	}

	winner := st.winners["100"]
	if winner == nil || !winner.IsActive {
		t.Fatalf("winner = %+v, want active winner for product 100", winner)
	}
	if winner.Handle != "cool-shirt" || winner.CollectionHandle != "best-sellers" || winner.OriginalCampaignID != "orig-c" {
		t.Errorf("winner enrichment = %+v", winner)
	}

	// One video and one image campaign, both with the cloned targeting.
	if len(ads.createdCampaigns) != 2 {
		t.Fatalf("created %d campaigns, want 2", len(ads.createdCampaigns))
	}
	for _, c := range ads.createdCampaigns {
		if c.ObjectiveType != "WEB_CONVERSION" {
			t.Errorf("campaign %s objective = %q, want cloned WEB_CONVERSION", c.Name, c.ObjectiveType)
		}
	}
	for _, g := range ads.createdAdGroups {
		if g.BillableEvent != "CLICKTHROUGH" || g.BidStrategyType != "AUTOMATIC_BID" || !g.AutoTargetingEnabled {
			t.Errorf("ad group targeting not cloned: %+v", g)
		}
	}

	if len(ads.pins) != 2 {
		t.Fatalf("created %d pins, want 2", len(ads.pins))
	}
	var sawVideo, sawImage bool
	for i, pin := range ads.pins {
		if pin.BoardID != "board-1" {
			t.Errorf("pin board = %q, want board-1", pin.BoardID)
		}
		if pin.Link != "https://acme.myshopify.com/products/cool-shirt" {
			t.Errorf("pin link = %q", pin.Link)
		}
		switch pin.MediaSource.SourceType {
		case "video_id":
			sawVideo = true
			if pin.MediaSource.MediaID != "media-1" {
				t.Errorf("video pin media = %q", pin.MediaSource.MediaID)
			}
			if ads.ads[i].CreativeType != "VIDEO" {
				t.Errorf("video ad creative type = %q", ads.ads[i].CreativeType)
			}
		case "image_url":
			sawImage = true
			if pin.MediaSource.URL == "" {
				t.Error("image pin has no uploaded asset URL")
			}
		}
	}
	if !sawVideo || !sawImage {
		t.Errorf("modalities: video=%v image=%v, want both", sawVideo, sawImage)
	}

	if len(st.insertedCampaigns) != 2 {
		t.Fatalf("inserted %d winner campaigns, want 2", len(st.insertedCampaigns))
	}
	for _, c := range st.insertedCampaigns {
		if c.WinnerID != winner.ID || c.Status != domain.CampaignActive || len(c.GeneratedAssets) != 1 {
			t.Errorf("winner campaign record = %+v", c)
		}
	}
	for _, m := range st.mirrored {
		if !m.IsWinnerCampaign {
			t.Errorf("mirror %s not flagged as winner campaign", m.PinterestCampaignID)
		}
	}

	if got := result.Metadata["winners_identified"]; got != int64(1) {
		t.Errorf("winners_identified = %v", got)
	}
	if got := result.Metadata["campaigns_created"]; got != int64(2) {
		t.Errorf("campaigns_created = %v", got)
	}
}

func TestScaler_CapsMetCreatesNothing(t *testing.T) {
	st := winnerFixtureStore()
	ads := fixtureAds()
	img, vid, up := &fakeImageGen{}, &fakeVideoGen{}, &fakeUploader{}

	// First run fills both modality slots; the second must be a no-op.
	scaler := newTestScaler(st, ads, img, vid, up)
	if err := scaler.Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	created := len(ads.createdCampaigns)

	if err := scaler.Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if len(ads.createdCampaigns) != created {
		t.Errorf("second run created %d more campaigns", len(ads.createdCampaigns)-created)
	}
	if vid.calls != 1 || img.calls != 1 {
		t.Errorf("generator calls video=%d image=%d, want 1 each", vid.calls, img.calls)
	}
}

func TestScaler_PlatformPausedCampaignFreesSlot(t *testing.T) {
	st := winnerFixtureStore()
	ads := fixtureAds()
	img, vid, up := &fakeImageGen{}, &fakeVideoGen{}, &fakeUploader{}

	scaler := newTestScaler(st, ads, img, vid, up)
	if err := scaler.Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	// The operator pauses the video campaign on the platform.
	var pausedLocal uuid.UUID
	for _, c := range st.insertedCampaigns {
		if c.CreativeType == domain.CreativeVideo {
			ads.platform[c.PinterestCampaignID] = &pinterest.Campaign{ID: c.PinterestCampaignID, Status: "PAUSED"}
			pausedLocal = c.ID
		} else {
			ads.platform[c.PinterestCampaignID] = &pinterest.Campaign{ID: c.PinterestCampaignID, Status: "ACTIVE"}
		}
	}

	if err := scaler.Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}

	if st.statusUpdates[pausedLocal] != "PAUSED" {
		t.Errorf("local status for paused campaign = %q, want PAUSED", st.statusUpdates[pausedLocal])
	}
	// The freed video slot was refilled; the image slot was not.
	if vid.calls != 2 || img.calls != 1 {
		t.Errorf("generator calls video=%d image=%d, want 2 and 1", vid.calls, img.calls)
	}
}

func TestScaler_VideoQuotaStopsVideoOnly(t *testing.T) {
	st := winnerFixtureStore()
	ads := fixtureAds()
	img := &fakeImageGen{}
	vid := &fakeVideoGen{err: joberr.Newf(joberr.QuotaExceeded, "creative.GenerateVideo", "quota exhausted")}
	up := &fakeUploader{}

	result := jobs.NewResult()
	if err := newTestScaler(st, ads, img, vid, up).Run(context.Background(), result); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// The image campaign still went out.
	if len(st.insertedCampaigns) != 1 || st.insertedCampaigns[0].CreativeType != domain.CreativeImage {
		t.Fatalf("inserted campaigns = %+v, want one image campaign", st.insertedCampaigns)
	}

	var limitLogged bool
	for _, l := range st.scalingLogs {
		if l.Action == "api_limit_reached" {
			limitLogged = true
		}
	}
	if !limitLogged {
		t.Error("no api_limit_reached audit row")
	}
	if got := result.Metadata["api_limit_reached"]; got != true {
		t.Errorf("api_limit_reached meta = %v", got)
	}
}

func TestScaler_RetriesWhileTranscoding(t *testing.T) {
	st := winnerFixtureStore()
	st.settings.MaxImageCampaigns = 0
	ads := fixtureAds()
	ads.transcodeFailures = 2
	img, vid, up := &fakeImageGen{}, &fakeVideoGen{}, &fakeUploader{}

	result := jobs.NewResult()
	if err := newTestScaler(st, ads, img, vid, up).Run(context.Background(), result); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("failed=%d errors=%v", result.Failed, result.Errors)
	}

	if ads.adAttempts != 3 {
		t.Errorf("ad attempts = %d, want 3 (two transcoding retries)", ads.adAttempts)
	}
	if len(st.insertedCampaigns) != 1 {
		t.Errorf("inserted campaigns = %d, want 1", len(st.insertedCampaigns))
	}
}

func TestScaler_NoSyncLogSkipsWithAudit(t *testing.T) {
	st := winnerFixtureStore()
	st.syncLogs = nil
	ads := fixtureAds()
	img, vid, up := &fakeImageGen{}, &fakeVideoGen{}, &fakeUploader{}

	if err := newTestScaler(st, ads, img, vid, up).Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(ads.createdCampaigns) != 0 {
		t.Errorf("created %d campaigns without a clone source", len(ads.createdCampaigns))
	}
	var skipped bool
	for _, l := range st.scalingLogs {
		if l.Action == "skipped" {
			skipped = true
		}
	}
	if !skipped {
		t.Error("no skipped audit row for winner without a clone source")
	}
}
