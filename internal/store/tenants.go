package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/podpilot/internal/domain"
)

// GetTenantsWithAssignments returns active tenants that have at least one
// campaign batch assignment. These are the tenants the sales tracker,
// replacement engine, and ad sync fan out over.
func (s *Store) GetTenantsWithAssignments(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT DISTINCT t.id, t.name, t.shop_domain, t.access_token, t.active, t.created_at
		FROM tenants t
		JOIN campaign_batch_assignments a ON a.tenant_id = t.id
		WHERE t.active = true
		ORDER BY t.id`

	return s.scanTenants(ctx, query)
}

// GetActiveTenants returns all active tenants.
func (s *Store) GetActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT id, name, shop_domain, access_token, active, created_at
		FROM tenants WHERE active = true ORDER BY id`
	return s.scanTenants(ctx, query)
}

func (s *Store) scanTenants(ctx context.Context, query string, args ...interface{}) ([]*domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		t := &domain.Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.ShopDomain, &t.AccessToken, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := requireField("store.scanTenants", "shop_domain", t.ShopDomain); err != nil {
			return nil, err
		}
		if err := requireField("store.scanTenants", "access_token", t.AccessToken); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetTenantRules retrieves the lifecycle thresholds for a tenant.
func (s *Store) GetTenantRules(ctx context.Context, tenantID uuid.UUID) (*domain.TenantRules, error) {
	query := `SELECT tenant_id, start_phase_days, post_phase_days,
		min_sales_day7_delete, min_sales_day7_replace,
		avg3_ok, avg7_ok, avg10_ok, avg14_ok, min_ok_buckets,
		loser_threshold, queue_tag, optimizer_enabled, test_mode
		FROM tenant_rules WHERE tenant_id = $1`

	r := &domain.TenantRules{}
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&r.TenantID, &r.StartPhaseDays, &r.PostPhaseDays,
		&r.MinSalesDay7Delete, &r.MinSalesDay7Replace,
		&r.Avg3OK, &r.Avg7OK, &r.Avg10OK, &r.Avg14OK, &r.MinOKBuckets,
		&r.LoserThreshold, &r.QueueTag, &r.OptimizerEnabled, &r.TestMode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// GetTrackedCollections returns the tenant's tracked collection ids.
func (s *Store) GetTrackedCollections(ctx context.Context, tenantID uuid.UUID) ([]*domain.TrackedCollection, error) {
	query := `SELECT id, tenant_id, collection_id, created_at
		FROM tracked_collections WHERE tenant_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []*domain.TrackedCollection
	for rows.Next() {
		c := &domain.TrackedCollection{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.CollectionID, &c.CreatedAt); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// GetAssignments returns the tenant's campaign batch assignments.
func (s *Store) GetAssignments(ctx context.Context, tenantID uuid.UUID) ([]*domain.CampaignBatchAssignment, error) {
	query := `SELECT id, tenant_id, campaign_id, collection_id, batch_indices, batch_size, board_id, created_at
		FROM campaign_batch_assignments WHERE tenant_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*domain.CampaignBatchAssignment
	for rows.Next() {
		a := &domain.CampaignBatchAssignment{}
		var indices pq.Int64Array
		if err := rows.Scan(&a.ID, &a.TenantID, &a.CampaignID, &a.CollectionID, &indices, &a.BatchSize, &a.BoardID, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := requireField("store.GetAssignments", "campaign_id", a.CampaignID); err != nil {
			return nil, err
		}
		if err := requireField("store.GetAssignments", "collection_id", a.CollectionID); err != nil {
			return nil, err
		}
		a.BatchIndices = make([]int, len(indices))
		for i, v := range indices {
			a.BatchIndices[i] = int(v)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// DeleteAssignmentsForCampaign removes assignment rows when a campaign is
// paused on the ad platform. Sync-log rows are preserved as history.
func (s *Store) DeleteAssignmentsForCampaign(ctx context.Context, tenantID uuid.UUID, campaignID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaign_batch_assignments WHERE tenant_id = $1 AND campaign_id = $2`,
		tenantID, campaignID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CollectionIDsForTenant returns the distinct collection ids referenced by
// a tenant's assignments.
func CollectionIDsForTenant(assignments []*domain.CampaignBatchAssignment) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range assignments {
		if !seen[a.CollectionID] {
			seen[a.CollectionID] = true
			ids = append(ids, a.CollectionID)
		}
	}
	return ids
}

// touchTime guards against zero timestamps in inserts.
func touchTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
