package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
)

// GetWinnerScalingSettings retrieves the tenant's winner-scaler settings,
// or nil when the feature is not configured. A legacy single campaign cap
// is split across the two modalities on read.
func (s *Store) GetWinnerScalingSettings(ctx context.Context, tenantID uuid.UUID) (*domain.WinnerScalingSettings, error) {
	query := `SELECT tenant_id, enabled, threshold_3d, threshold_7d, threshold_10d, threshold_14d,
		min_buckets_required, max_campaigns_per_winner_video, max_campaigns_per_winner_image,
		max_campaigns_per_winner, product_links_enabled, collection_links_enabled, creatives_per_campaign
		FROM winner_scaling_settings WHERE tenant_id = $1`

	set := &domain.WinnerScalingSettings{}
	var legacyCap sql.NullInt64
	var maxVideo, maxImage sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&set.TenantID, &set.Enabled,
		&set.Threshold3D, &set.Threshold7D, &set.Threshold10D, &set.Threshold14D,
		&set.MinBucketsRequired, &maxVideo, &maxImage, &legacyCap,
		&set.ProductLinksEnabled, &set.CollectionLinksEnabled, &set.CreativesPerCampaign)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case maxVideo.Valid || maxImage.Valid:
		set.MaxVideoCampaigns = int(maxVideo.Int64)
		set.MaxImageCampaigns = int(maxImage.Int64)
	case legacyCap.Valid:
		set.MaxVideoCampaigns, set.MaxImageCampaigns = domain.SplitLegacyCap(int(legacyCap.Int64))
	}

	if set.MinBucketsRequired < 1 || set.MinBucketsRequired > 4 {
		return nil, joberr.Newf(joberr.Validation, "store.GetWinnerScalingSettings",
			"min_buckets_required %d out of range [1,4]", set.MinBucketsRequired)
	}
	if set.CreativesPerCampaign <= 0 {
		set.CreativesPerCampaign = 1
	}
	return set, nil
}

// UpsertWinner records an identified winner. The unique constraint on
// (tenant_id, product_id, collection_id) makes identification idempotent;
// an existing row (active or not) is left untouched so a deactivated
// winner is never re-activated. Returns the stored row.
func (s *Store) UpsertWinner(ctx context.Context, w *domain.WinnerProduct) (*domain.WinnerProduct, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	snapJSON, err := json.Marshal(w.Snapshot)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO winner_products
		(id, tenant_id, product_id, collection_id, title, handle, collection_handle, image_url,
		 sales_snapshot, buckets_passed, original_campaign_id, is_active, identified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, NOW())
		ON CONFLICT (tenant_id, product_id, collection_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, w.ID, w.TenantID, w.ProductID, w.CollectionID,
		w.Title, w.Handle, w.CollectionHandle, w.ImageURL, snapJSON, w.BucketsPassed,
		w.OriginalCampaignID); err != nil {
		return nil, err
	}
	return s.GetWinner(ctx, w.TenantID, w.ProductID, w.CollectionID)
}

// GetWinner returns one winner row, or nil.
func (s *Store) GetWinner(ctx context.Context, tenantID uuid.UUID, productID, collectionID string) (*domain.WinnerProduct, error) {
	query := `SELECT id, tenant_id, product_id, collection_id, title, handle, collection_handle,
		image_url, sales_snapshot, buckets_passed, original_campaign_id, is_active, identified_at
		FROM winner_products
		WHERE tenant_id = $1 AND product_id = $2 AND collection_id = $3`

	w := &domain.WinnerProduct{}
	var snapJSON []byte
	err := s.db.QueryRowContext(ctx, query, tenantID, productID, collectionID).Scan(
		&w.ID, &w.TenantID, &w.ProductID, &w.CollectionID, &w.Title, &w.Handle,
		&w.CollectionHandle, &w.ImageURL, &snapJSON, &w.BucketsPassed,
		&w.OriginalCampaignID, &w.IsActive, &w.IdentifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(snapJSON) > 0 {
		if err := json.Unmarshal(snapJSON, &w.Snapshot); err != nil {
			return nil, joberr.New(joberr.Validation, "store.GetWinner", err)
		}
	}
	return w, nil
}

// GetActiveWinners returns the tenant's active winners.
func (s *Store) GetActiveWinners(ctx context.Context, tenantID uuid.UUID) ([]*domain.WinnerProduct, error) {
	query := `SELECT id, tenant_id, product_id, collection_id, title, handle, collection_handle,
		image_url, sales_snapshot, buckets_passed, original_campaign_id, is_active, identified_at
		FROM winner_products
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY identified_at`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var winners []*domain.WinnerProduct
	for rows.Next() {
		w := &domain.WinnerProduct{}
		var snapJSON []byte
		if err := rows.Scan(&w.ID, &w.TenantID, &w.ProductID, &w.CollectionID, &w.Title,
			&w.Handle, &w.CollectionHandle, &w.ImageURL, &snapJSON, &w.BucketsPassed,
			&w.OriginalCampaignID, &w.IsActive, &w.IdentifiedAt); err != nil {
			return nil, err
		}
		if len(snapJSON) > 0 {
			if err := json.Unmarshal(snapJSON, &w.Snapshot); err != nil {
				return nil, joberr.New(joberr.Validation, "store.GetActiveWinners", err)
			}
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

// InsertWinnerCampaign persists a campaign spawned for a winner, with its
// creative manifest.
func (s *Store) InsertWinnerCampaign(ctx context.Context, c *domain.WinnerCampaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `INSERT INTO winner_campaigns
		(id, tenant_id, winner_id, pinterest_campaign_id, ad_group_id, creative_type,
		 creative_count, link_type, status, generated_assets, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := s.db.ExecContext(ctx, query, c.ID, c.TenantID, c.WinnerID, c.PinterestCampaignID,
		c.AdGroupID, c.CreativeType, c.CreativeCount, c.LinkType, c.Status,
		pq.Array(c.GeneratedAssets))
	return err
}

// GetWinnerCampaigns returns all campaigns spawned for a winner.
func (s *Store) GetWinnerCampaigns(ctx context.Context, winnerID uuid.UUID) ([]*domain.WinnerCampaign, error) {
	query := `SELECT id, tenant_id, winner_id, pinterest_campaign_id, ad_group_id, creative_type,
		creative_count, link_type, status, generated_assets, created_at
		FROM winner_campaigns WHERE winner_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, winnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*domain.WinnerCampaign
	for rows.Next() {
		c := &domain.WinnerCampaign{}
		var assets pq.StringArray
		if err := rows.Scan(&c.ID, &c.TenantID, &c.WinnerID, &c.PinterestCampaignID,
			&c.AdGroupID, &c.CreativeType, &c.CreativeCount, &c.LinkType, &c.Status,
			&assets, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.GeneratedAssets = assets
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// UpdateWinnerCampaignStatus mirrors a platform status change on a winner
// campaign.
func (s *Store) UpdateWinnerCampaignStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE winner_campaigns SET status = $2 WHERE id = $1`, id, status)
	return err
}

// InsertWinnerScalingLog appends one audit row for a winner-scaler action.
func (s *Store) InsertWinnerScalingLog(ctx context.Context, l *domain.WinnerScalingLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	query := `INSERT INTO winner_scaling_log
		(id, tenant_id, winner_id, product_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`
	_, err := s.db.ExecContext(ctx, query, l.ID, l.TenantID, l.WinnerID, l.ProductID, l.Action, l.Detail)
	return err
}

// GetTenantsWithWinnerScaling returns active tenants with winner scaling
// enabled.
func (s *Store) GetTenantsWithWinnerScaling(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT t.id, t.name, t.shop_domain, t.access_token, t.active, t.created_at
		FROM tenants t
		JOIN winner_scaling_settings w ON w.tenant_id = t.id
		WHERE t.active = true AND w.enabled = true
		ORDER BY t.id`
	return s.scanTenants(ctx, query)
}
