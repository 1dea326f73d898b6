package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
)

// GetPinterestAuth retrieves a tenant's ad-platform token bundle, or nil
// when the tenant has not connected the platform.
func (s *Store) GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error) {
	query := `SELECT tenant_id, access_token, refresh_token, expires_at, updated_at
		FROM pinterest_auth WHERE tenant_id = $1`

	a := &domain.PinterestAuth{}
	var refresh sql.NullString
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&a.TenantID, &a.AccessToken, &refresh, &a.ExpiresAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.RefreshToken = refresh.String
	if err := requireField("store.GetPinterestAuth", "access_token", a.AccessToken); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdatePinterestAuth persists a refreshed token bundle.
func (s *Store) UpdatePinterestAuth(ctx context.Context, a *domain.PinterestAuth) error {
	query := `UPDATE pinterest_auth
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = NOW()
		WHERE tenant_id = $1`
	_, err := s.db.ExecContext(ctx, query, a.TenantID, a.AccessToken, a.RefreshToken, a.ExpiresAt)
	return err
}

// GetSelectedAdAccount returns the tenant's selected ad account, or nil.
func (s *Store) GetSelectedAdAccount(ctx context.Context, tenantID uuid.UUID) (*domain.AdAccount, error) {
	query := `SELECT id, tenant_id, ad_account_id, name, selected
		FROM pinterest_ad_accounts WHERE tenant_id = $1 AND selected = true`

	a := &domain.AdAccount{}
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&a.ID, &a.TenantID, &a.AdAccountID, &a.Name, &a.Selected)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// GetMirroredCampaigns returns the locally mirrored campaigns for a tenant,
// optionally filtered by status.
func (s *Store) GetMirroredCampaigns(ctx context.Context, tenantID uuid.UUID, status string) ([]*domain.Campaign, error) {
	query := `SELECT id, tenant_id, pinterest_campaign_id, name, status, daily_budget, is_winner_campaign, updated_at
		FROM pinterest_campaigns WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		c := &domain.Campaign{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.PinterestCampaignID, &c.Name, &c.Status,
			&c.DailyBudget, &c.IsWinnerCampaign, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// GetMirroredCampaign returns one mirrored campaign by platform id, or nil.
func (s *Store) GetMirroredCampaign(ctx context.Context, tenantID uuid.UUID, campaignID string) (*domain.Campaign, error) {
	query := `SELECT id, tenant_id, pinterest_campaign_id, name, status, daily_budget, is_winner_campaign, updated_at
		FROM pinterest_campaigns WHERE tenant_id = $1 AND pinterest_campaign_id = $2`

	c := &domain.Campaign{}
	err := s.db.QueryRowContext(ctx, query, tenantID, campaignID).Scan(
		&c.ID, &c.TenantID, &c.PinterestCampaignID, &c.Name, &c.Status,
		&c.DailyBudget, &c.IsWinnerCampaign, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// UpsertMirroredCampaign mirrors campaign metadata fetched from the platform.
func (s *Store) UpsertMirroredCampaign(ctx context.Context, c *domain.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `INSERT INTO pinterest_campaigns
		(id, tenant_id, pinterest_campaign_id, name, status, daily_budget, is_winner_campaign, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tenant_id, pinterest_campaign_id) DO UPDATE SET
			name = EXCLUDED.name, status = EXCLUDED.status,
			daily_budget = EXCLUDED.daily_budget, updated_at = NOW()`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.TenantID, c.PinterestCampaignID,
		c.Name, c.Status, c.DailyBudget, c.IsWinnerCampaign)
	return err
}

// UpdateCampaignStatus mirrors a status change observed on the platform.
func (s *Store) UpdateCampaignStatus(ctx context.Context, tenantID uuid.UUID, campaignID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pinterest_campaigns SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND pinterest_campaign_id = $2`,
		tenantID, campaignID, status)
	return err
}

// UpdateCampaignBudget mirrors a local budget change.
func (s *Store) UpdateCampaignBudget(ctx context.Context, tenantID uuid.UUID, campaignID string, budget float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pinterest_campaigns SET daily_budget = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND pinterest_campaign_id = $2`,
		tenantID, campaignID, budget)
	return err
}

// InsertSyncLog records one pin creation attempt. The partial unique index
// on (tenant_id, campaign_id, product_id) WHERE NOT paused guarantees at
// most one active row per product; a conflicting insert is a no-op so
// re-runs stay idempotent.
func (s *Store) InsertSyncLog(ctx context.Context, l *domain.SyncLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.SyncedAt = touchTime(l.SyncedAt)

	query := `INSERT INTO pinterest_sync_log
		(id, tenant_id, campaign_id, product_id, board_id, pin_id, ad_id, ad_group_id,
		 success, error, paused, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, campaign_id, product_id) WHERE NOT paused DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, l.ID, l.TenantID, l.CampaignID, l.ProductID,
		l.BoardID, l.PinID, l.AdID, l.AdGroupID, l.Success, l.Error, l.Paused, l.SyncedAt)
	return err
}

// GetActiveSyncLogs returns the non-paused sync rows for a campaign.
func (s *Store) GetActiveSyncLogs(ctx context.Context, tenantID uuid.UUID, campaignID string) ([]*domain.SyncLog, error) {
	query := `SELECT id, tenant_id, campaign_id, product_id, board_id, pin_id, ad_id, ad_group_id,
		success, error, paused, synced_at
		FROM pinterest_sync_log
		WHERE tenant_id = $1 AND campaign_id = $2 AND paused = false
		ORDER BY synced_at`

	rows, err := s.db.QueryContext(ctx, query, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.SyncLog
	for rows.Next() {
		l := &domain.SyncLog{}
		if err := rows.Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.ProductID, &l.BoardID,
			&l.PinID, &l.AdID, &l.AdGroupID, &l.Success, &l.Error, &l.Paused, &l.SyncedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetLatestSyncLogForProduct returns the most recent sync row for a
// product across campaigns. The winner scaler uses it to locate the
// original campaign to clone.
func (s *Store) GetLatestSyncLogForProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*domain.SyncLog, error) {
	query := `SELECT id, tenant_id, campaign_id, product_id, board_id, pin_id, ad_id, ad_group_id,
		success, error, paused, synced_at
		FROM pinterest_sync_log
		WHERE tenant_id = $1 AND product_id = $2 AND success = true
		ORDER BY synced_at DESC LIMIT 1`

	l := &domain.SyncLog{}
	err := s.db.QueryRowContext(ctx, query, tenantID, productID).Scan(
		&l.ID, &l.TenantID, &l.CampaignID, &l.ProductID, &l.BoardID,
		&l.PinID, &l.AdID, &l.AdGroupID, &l.Success, &l.Error, &l.Paused, &l.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// MarkSyncLogPaused marks a sync row paused after its ad is paused on the
// platform.
func (s *Store) MarkSyncLogPaused(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pinterest_sync_log SET paused = true WHERE id = $1`, id)
	return err
}

// HasActiveSyncLog reports whether the product already has a non-paused
// sync row for the campaign.
func (s *Store) HasActiveSyncLog(ctx context.Context, tenantID uuid.UUID, campaignID, productID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pinterest_sync_log
		 WHERE tenant_id = $1 AND campaign_id = $2 AND product_id = $3 AND paused = false)`,
		tenantID, campaignID, productID).Scan(&exists)
	return exists, err
}
