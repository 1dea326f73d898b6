package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
)

func setupTestDB(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	return NewStore(db), mock, func() { db.Close() }
}

func TestEnsureProductSales_KeepsStoredAnchor(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := uuid.New()
	anchor := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "collection_id", "product_id", "product_title",
		"date_added_to_collection", "last_update",
		"first_7_days", "last_3_days", "last_7_days", "last_10_days", "last_14_days",
		"total_sales", "total_quantity",
	}).AddRow(uuid.New(), tenantID, "col-1", "prod-1", "Cat Mug",
		anchor, anchor, 3, 1, 2, 2, 4, 9, 11)

	mock.ExpectQuery("INSERT INTO product_sales").
		WillReturnRows(rows)

	p, err := s.EnsureProductSales(context.Background(), tenantID, "col-1", "prod-1", "Cat Mug", now)
	if err != nil {
		t.Fatalf("EnsureProductSales() error: %v", err)
	}
	// The conflict path returns the stored anchor, not now
	if !p.DateAddedToCollection.Equal(anchor) {
		t.Errorf("anchor = %v, want %v", p.DateAddedToCollection, anchor)
	}
	if p.TotalSales != 9 {
		t.Errorf("TotalSales = %d, want 9", p.TotalSales)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetEnabledRules_DecodesBothShapes(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := uuid.New()
	flatCond := []byte(`{"conditions":[
		{"metric":"spend","operator":">=","value":100,"lookback_days":7,"logic":"AND"},
		{"metric":"roas","operator":"<","value":2.0,"lookback_days":14,"logic":"OR"}
	]}`)
	nestedCond := []byte(`{"condition_groups":[
		{"conditions":[{"metric":"checkouts","operator":"<=","value":3,"lookback_days":7}]}
	]}`)
	action := []byte(`{"type":"scale_down","unit":"percent","value":20,"min_budget":5,"max_budget":500}`)

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "priority", "enabled", "conditions", "action",
		"min_campaign_age_days", "max_campaign_age_days", "campaign_type",
	}).
		AddRow(uuid.New(), tenantID, "legacy rule", 10, true, flatCond, action, nil, nil, nil).
		AddRow(uuid.New(), tenantID, "nested rule", 5, true, nestedCond, action, 3, nil, "winner_campaign")

	mock.ExpectQuery("SELECT (.+) FROM optimization_rules").
		WithArgs(tenantID).
		WillReturnRows(rows)

	rules, err := s.GetEnabledRules(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("GetEnabledRules() error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if len(rules[0].Groups) != 1 || len(rules[0].Groups[0].Conditions) != 2 {
		t.Errorf("legacy rule groups = %+v", rules[0].Groups)
	}
	if rules[1].CampaignType != domain.CampaignTypeWinner {
		t.Errorf("CampaignType = %q", rules[1].CampaignType)
	}
	if rules[1].MinCampaignAgeDays == nil || *rules[1].MinCampaignAgeDays != 3 {
		t.Error("MinCampaignAgeDays not decoded")
	}
	if rules[0].Action.Type != domain.ActionScaleDown {
		t.Errorf("Action.Type = %q", rules[0].Action.Type)
	}
}

func TestGetWinnerScalingSettings_LegacyCapSplit(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := uuid.New()
	rows := sqlmock.NewRows([]string{
		"tenant_id", "enabled", "threshold_3d", "threshold_7d", "threshold_10d", "threshold_14d",
		"min_buckets_required", "max_campaigns_per_winner_video", "max_campaigns_per_winner_image",
		"max_campaigns_per_winner", "product_links_enabled", "collection_links_enabled", "creatives_per_campaign",
	}).AddRow(tenantID, true, 5, 10, 15, 20, 3, nil, nil, 5, true, false, 2)

	mock.ExpectQuery("SELECT (.+) FROM winner_scaling_settings").
		WithArgs(tenantID).
		WillReturnRows(rows)

	set, err := s.GetWinnerScalingSettings(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("GetWinnerScalingSettings() error: %v", err)
	}
	if set.MaxVideoCampaigns != 3 || set.MaxImageCampaigns != 2 {
		t.Errorf("caps = (%d, %d), want (3, 2)", set.MaxVideoCampaigns, set.MaxImageCampaigns)
	}
}

func TestGetWinnerScalingSettings_InvalidBuckets(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	tenantID := uuid.New()
	rows := sqlmock.NewRows([]string{
		"tenant_id", "enabled", "threshold_3d", "threshold_7d", "threshold_10d", "threshold_14d",
		"min_buckets_required", "max_campaigns_per_winner_video", "max_campaigns_per_winner_image",
		"max_campaigns_per_winner", "product_links_enabled", "collection_links_enabled", "creatives_per_campaign",
	}).AddRow(tenantID, true, 5, 10, 15, 20, 7, 1, 1, nil, true, true, 1)

	mock.ExpectQuery("SELECT (.+) FROM winner_scaling_settings").
		WithArgs(tenantID).
		WillReturnRows(rows)

	_, err := s.GetWinnerScalingSettings(context.Background(), tenantID)
	if !joberr.Is(err, joberr.Validation) {
		t.Errorf("err = %v, want Validation kind", err)
	}
}

func TestOpenCloseJobRun(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO job_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := s.OpenJobRun(context.Background(), domain.JobSalesTracker, map[string]interface{}{"trigger": "cron"})
	if err != nil {
		t.Fatalf("OpenJobRun() error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("OpenJobRun() returned nil id")
	}

	mock.ExpectExec("UPDATE job_runs SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.CloseJobRun(context.Background(), id, domain.JobCompletedWithErrors, 4, 1,
		[]string{"tenant x: auth_expired"}, map[string]interface{}{"orders_seen": 120})
	if err != nil {
		t.Fatalf("CloseJobRun() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetTenantsWithAssignments_ValidatesRequiredFields(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "shop_domain", "access_token", "active", "created_at"}).
		AddRow(uuid.New(), "acme", "acme.myshopify.com", "", true, time.Now())

	mock.ExpectQuery("SELECT DISTINCT (.+) FROM tenants").
		WillReturnRows(rows)

	_, err := s.GetTenantsWithAssignments(context.Background())
	if !joberr.Is(err, joberr.Validation) {
		t.Errorf("err = %v, want Validation kind for empty access_token", err)
	}
}
