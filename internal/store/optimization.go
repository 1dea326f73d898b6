package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
)

// GetOptimizationSettings retrieves a tenant's optimizer settings, or nil.
func (s *Store) GetOptimizationSettings(ctx context.Context, tenantID uuid.UUID) (*domain.OptimizationSettings, error) {
	query := `SELECT tenant_id, enabled, test_mode, test_campaign_id, test_metrics
		FROM optimization_settings WHERE tenant_id = $1`

	set := &domain.OptimizationSettings{}
	var testCampaign sql.NullString
	var testMetrics []byte
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&set.TenantID, &set.Enabled, &set.TestMode, &testCampaign, &testMetrics)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	set.TestCampaignID = testCampaign.String
	if len(testMetrics) > 0 {
		m := &domain.CampaignMetrics{}
		if err := json.Unmarshal(testMetrics, m); err != nil {
			return nil, joberr.New(joberr.Validation, "store.GetOptimizationSettings", err)
		}
		set.TestMetrics = m
	}
	return set, nil
}

// GetTenantsWithOptimizerEnabled returns active tenants whose optimizer
// settings are enabled.
func (s *Store) GetTenantsWithOptimizerEnabled(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT t.id, t.name, t.shop_domain, t.access_token, t.active, t.created_at
		FROM tenants t
		JOIN optimization_settings o ON o.tenant_id = t.id
		WHERE t.active = true AND o.enabled = true
		ORDER BY t.id`
	return s.scanTenants(ctx, query)
}

// GetEnabledRules returns the tenant's enabled rules sorted descending by
// priority. Condition JSON decodes from either the legacy flat shape or
// the canonical nested shape.
func (s *Store) GetEnabledRules(ctx context.Context, tenantID uuid.UUID) ([]*domain.OptimizationRule, error) {
	query := `SELECT id, tenant_id, name, priority, enabled, conditions, action,
		min_campaign_age_days, max_campaign_age_days, campaign_type
		FROM optimization_rules
		WHERE tenant_id = $1 AND enabled = true
		ORDER BY priority DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.OptimizationRule
	for rows.Next() {
		r := &domain.OptimizationRule{}
		var condJSON, actionJSON []byte
		var minAge, maxAge sql.NullInt64
		var campType sql.NullString
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Priority, &r.Enabled,
			&condJSON, &actionJSON, &minAge, &maxAge, &campType); err != nil {
			return nil, err
		}

		r.Groups, err = domain.DecodeRuleConditions(condJSON)
		if err != nil {
			return nil, joberr.New(joberr.Validation, "store.GetEnabledRules", err)
		}
		if err := json.Unmarshal(actionJSON, &r.Action); err != nil {
			return nil, joberr.New(joberr.Validation, "store.GetEnabledRules", err)
		}
		if minAge.Valid {
			v := int(minAge.Int64)
			r.MinCampaignAgeDays = &v
		}
		if maxAge.Valid {
			v := int(maxAge.Int64)
			r.MaxCampaignAgeDays = &v
		}
		r.CampaignType = domain.CampaignType(campType.String)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SaveRule writes a rule using the canonical nested condition encoding.
func (s *Store) SaveRule(ctx context.Context, r *domain.OptimizationRule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	condJSON, err := domain.EncodeRuleConditions(r.Groups)
	if err != nil {
		return err
	}
	actionJSON, err := json.Marshal(r.Action)
	if err != nil {
		return err
	}

	query := `INSERT INTO optimization_rules
		(id, tenant_id, name, priority, enabled, conditions, action,
		 min_campaign_age_days, max_campaign_age_days, campaign_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, priority = EXCLUDED.priority, enabled = EXCLUDED.enabled,
			conditions = EXCLUDED.conditions, action = EXCLUDED.action,
			min_campaign_age_days = EXCLUDED.min_campaign_age_days,
			max_campaign_age_days = EXCLUDED.max_campaign_age_days,
			campaign_type = EXCLUDED.campaign_type`

	var campType interface{}
	if r.CampaignType != "" {
		campType = string(r.CampaignType)
	}
	_, err = s.db.ExecContext(ctx, query, r.ID, r.TenantID, r.Name, r.Priority, r.Enabled,
		condJSON, actionJSON, r.MinCampaignAgeDays, r.MaxCampaignAgeDays, campType)
	return err
}

// InsertOptimizationLog appends one audit row for a campaign evaluation.
func (s *Store) InsertOptimizationLog(ctx context.Context, l *domain.OptimizationLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	metricsJSON, err := json.Marshal(l.Metrics)
	if err != nil {
		return err
	}

	query := `INSERT INTO optimization_log
		(id, tenant_id, campaign_id, rule_id, action_taken, old_budget, new_budget,
		 old_status, new_status, metrics, test_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`

	_, err = s.db.ExecContext(ctx, query, l.ID, l.TenantID, l.CampaignID, l.RuleID,
		l.ActionTaken, l.OldBudget, l.NewBudget, l.OldStatus, l.NewStatus, metricsJSON, l.TestRun)
	return err
}
