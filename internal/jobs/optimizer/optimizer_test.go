package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/pinterest"
)

func cond(metric domain.Metric, op domain.Operator, value float64) domain.Condition {
	return domain.Condition{Metric: metric, Operator: op, Value: value, LookbackDays: 7}
}

func TestEvaluateGroups_Linearised(t *testing.T) {
	// Flat form [spend>=100 AND, checkouts<=3 OR, roas<2.0] linearises to
	// [spend>=100] AND [checkouts<=3 OR roas<2.0].
	flat := []domain.Condition{
		{Metric: domain.MetricSpend, Operator: domain.OpGTE, Value: 100, Logic: "AND"},
		{Metric: domain.MetricCheckouts, Operator: domain.OpLTE, Value: 3, Logic: "OR"},
		{Metric: domain.MetricROAS, Operator: domain.OpLT, Value: 2.0},
	}
	groups := domain.LinearizeConditions(flat)
	if len(groups) != 2 || len(groups[0].Conditions) != 1 || len(groups[1].Conditions) != 2 {
		t.Fatalf("groups = %+v", groups)
	}

	m := domain.CampaignMetrics{Spend: 150, Checkouts: 5, ROAS: 1.5}
	ok, err := EvaluateGroups(groups, m)
	if err != nil {
		t.Fatalf("EvaluateGroups error: %v", err)
	}
	if !ok {
		t.Error("true AND (false OR true) should match")
	}

	// Failing the first group short-circuits the expression.
	m.Spend = 50
	if ok, _ := EvaluateGroups(groups, m); ok {
		t.Error("false AND ... should not match")
	}
}

func TestEvaluateGroups_EmptyNeverMatches(t *testing.T) {
	if ok, _ := EvaluateGroups(nil, domain.CampaignMetrics{Spend: 100}); ok {
		t.Error("rule without conditions matched")
	}
}

func TestResolveScale(t *testing.T) {
	// Scale up at the cap clamps to max_budget.
	change := ResolveScale(domain.RuleAction{
		Type: domain.ActionScaleUp, Unit: domain.UnitAmount, Value: 10, MaxBudget: 100,
	}, 95)
	if change.Action != domain.AuditScaledUp || change.NewBudget != 100 {
		t.Errorf("scale_up at cap = %+v, want scaled_up to 100", change)
	}

	// Already at max: skipped.
	change = ResolveScale(domain.RuleAction{
		Type: domain.ActionScaleUp, Unit: domain.UnitAmount, Value: 10, MaxBudget: 100,
	}, 100)
	if change.Action != domain.AuditSkipped || change.NewBudget != 100 {
		t.Errorf("scale_up beyond cap = %+v, want skipped", change)
	}

	// Scale down at the floor: skipped.
	change = ResolveScale(domain.RuleAction{
		Type: domain.ActionScaleDown, Unit: domain.UnitAmount, Value: 5, MinBudget: 20,
	}, 20)
	if change.Action != domain.AuditSkipped {
		t.Errorf("scale_down at minimum = %+v, want skipped", change)
	}

	// Percent scaling.
	change = ResolveScale(domain.RuleAction{
		Type: domain.ActionScaleDown, Unit: domain.UnitPercent, Value: 50, MinBudget: 10,
	}, 60)
	if change.Action != domain.AuditScaledDown || change.NewBudget != 30 {
		t.Errorf("50%% scale_down from 60 = %+v, want 30", change)
	}

	// Percent zero is a no-op.
	change = ResolveScale(domain.RuleAction{
		Type: domain.ActionScaleUp, Unit: domain.UnitPercent, Value: 0, MaxBudget: 100,
	}, 50)
	if change.Action != domain.AuditSkipped || change.NewBudget != 50 {
		t.Errorf("zero percent scale = %+v, want skipped", change)
	}
}

func TestRuleApplies_Gates(t *testing.T) {
	min, max := 3, 30
	gated := &domain.OptimizationRule{MinCampaignAgeDays: &min, MaxCampaignAgeDays: &max}

	if ruleApplies(gated, 2, false) {
		t.Error("campaign younger than min age applied")
	}
	if !ruleApplies(gated, 10, false) {
		t.Error("campaign within age window did not apply")
	}
	if ruleApplies(gated, 31, false) {
		t.Error("campaign older than max age applied")
	}
	if ruleApplies(gated, -1, false) {
		t.Error("age-gated rule applied to campaign with unknown age")
	}

	winnerOnly := &domain.OptimizationRule{CampaignType: domain.CampaignTypeWinner}
	if ruleApplies(winnerOnly, 10, false) || !ruleApplies(winnerOnly, 10, true) {
		t.Error("winner_campaign filter not honored")
	}
}

// fakes

type fakeOptStore struct {
	tenant   *domain.Tenant
	settings *domain.OptimizationSettings
	rules    []*domain.OptimizationRule
	mirrors  map[string]*domain.Campaign

	audits        []*domain.OptimizationLog
	budgetUpdates map[string]float64
	statusUpdates map[string]string
}

func (f *fakeOptStore) GetTenantsWithOptimizerEnabled(ctx context.Context) ([]*domain.Tenant, error) {
	return []*domain.Tenant{f.tenant}, nil
}

func (f *fakeOptStore) GetOptimizationSettings(ctx context.Context, tenantID uuid.UUID) (*domain.OptimizationSettings, error) {
	return f.settings, nil
}

func (f *fakeOptStore) GetEnabledRules(ctx context.Context, tenantID uuid.UUID) ([]*domain.OptimizationRule, error) {
	return f.rules, nil
}

func (f *fakeOptStore) GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error) {
	return &domain.PinterestAuth{TenantID: tenantID, AccessToken: "tok"}, nil
}

func (f *fakeOptStore) GetSelectedAdAccount(ctx context.Context, tenantID uuid.UUID) (*domain.AdAccount, error) {
	return &domain.AdAccount{AdAccountID: "aa-1", Selected: true}, nil
}

func (f *fakeOptStore) GetMirroredCampaign(ctx context.Context, tenantID uuid.UUID, campaignID string) (*domain.Campaign, error) {
	return f.mirrors[campaignID], nil
}

func (f *fakeOptStore) UpdateCampaignBudget(ctx context.Context, tenantID uuid.UUID, campaignID string, budget float64) error {
	if f.budgetUpdates == nil {
		f.budgetUpdates = map[string]float64{}
	}
	f.budgetUpdates[campaignID] = budget
	return nil
}

func (f *fakeOptStore) UpdateCampaignStatus(ctx context.Context, tenantID uuid.UUID, campaignID, status string) error {
	if f.statusUpdates == nil {
		f.statusUpdates = map[string]string{}
	}
	f.statusUpdates[campaignID] = status
	return nil
}

func (f *fakeOptStore) InsertOptimizationLog(ctx context.Context, l *domain.OptimizationLog) error {
	f.audits = append(f.audits, l)
	return nil
}

type fakeOptAds struct {
	campaigns []pinterest.Campaign
	analytics []pinterest.AnalyticsRow

	budgetWrites map[string]int64
	paused       []string
}

func (f *fakeOptAds) ListCampaigns(ctx context.Context, adAccountID string, statuses ...string) ([]pinterest.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeOptAds) GetCampaign(ctx context.Context, adAccountID, campaignID string) (*pinterest.Campaign, error) {
	for i := range f.campaigns {
		if f.campaigns[i].ID == campaignID {
			return &f.campaigns[i], nil
		}
	}
	return &pinterest.Campaign{ID: campaignID, Status: "ACTIVE"}, nil
}

func (f *fakeOptAds) CampaignAnalytics(ctx context.Context, adAccountID string, campaignIDs []string, start, end time.Time) ([]pinterest.AnalyticsRow, error) {
	return f.analytics, nil
}

func (f *fakeOptAds) UpdateCampaignBudget(ctx context.Context, adAccountID, campaignID string, micro int64) error {
	if f.budgetWrites == nil {
		f.budgetWrites = map[string]int64{}
	}
	f.budgetWrites[campaignID] = micro
	return nil
}

func (f *fakeOptAds) PauseCampaign(ctx context.Context, adAccountID, campaignID string) error {
	f.paused = append(f.paused, campaignID)
	return nil
}

type optAuth struct{}

func (optAuth) EnsureFresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error) {
	return auth, nil
}

func scaleUpRule(priority int, spendAtLeast float64) *domain.OptimizationRule {
	return &domain.OptimizationRule{
		ID: uuid.New(), Name: "scale-up", Priority: priority, Enabled: true,
		Groups: []domain.ConditionGroup{{Conditions: []domain.Condition{cond(domain.MetricSpend, domain.OpGTE, spendAtLeast)}}},
		Action: domain.RuleAction{Type: domain.ActionScaleUp, Unit: domain.UnitAmount, Value: 10, MaxBudget: 100},
	}
}

func newTestOptimizer(st *fakeOptStore, ads *fakeOptAds) *Optimizer {
	return &Optimizer{
		Store:  st,
		Ads:    func(*domain.PinterestAuth) Ads { return ads },
		Auth:   optAuth{},
		FanOut: 1,
		Now:    func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) },
	}
}

func TestOptimizer_ScaleUpClampsAndWritesMicro(t *testing.T) {
	tenant := &domain.Tenant{ID: uuid.New(), Name: "acme", ShopDomain: "acme.myshopify.com", AccessToken: "t"}
	st := &fakeOptStore{
		tenant:   tenant,
		settings: &domain.OptimizationSettings{TenantID: tenant.ID, Enabled: true},
		rules:    []*domain.OptimizationRule{scaleUpRule(10, 100)},
		mirrors: map[string]*domain.Campaign{
			"c1": {PinterestCampaignID: "c1", DailyBudget: 95},
		},
	}
	ads := &fakeOptAds{
		campaigns: []pinterest.Campaign{{ID: "c1", Status: "ACTIVE", DailySpendCap: pinterest.DollarsToMicro(95)}},
		analytics: []pinterest.AnalyticsRow{{CampaignID: "c1", SpendMicro: 150_000_000, Conversions: 5, ConversionsValue: 225_000_000}},
	}

	result := jobs.NewResult()
	if err := newTestOptimizer(st, ads).Run(context.Background(), result); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("failed=%d errors=%v", result.Failed, result.Errors)
	}

	// 95 + 10 clamps to max_budget 100; the wire write is micro-currency.
	if got := ads.budgetWrites["c1"]; got != 100_000_000 {
		t.Errorf("platform budget write = %d, want 100000000", got)
	}
	if got := st.budgetUpdates["c1"]; got != 100 {
		t.Errorf("local budget mirror = %v, want 100", got)
	}

	if len(st.audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(st.audits))
	}
	audit := st.audits[0]
	if audit.ActionTaken != domain.AuditScaledUp || audit.OldBudget != 95 || audit.NewBudget != 100 {
		t.Errorf("audit = %+v", audit)
	}
	if audit.Metrics.Spend != 150 || audit.Metrics.Checkouts != 5 || audit.Metrics.ROAS != 1.5 {
		t.Errorf("audit metrics = %+v", audit.Metrics)
	}
}

func TestOptimizer_FirstMatchByPriorityWins(t *testing.T) {
	tenant := &domain.Tenant{ID: uuid.New(), Name: "acme", ShopDomain: "s", AccessToken: "t"}
	pauseRule := &domain.OptimizationRule{
		ID: uuid.New(), Name: "pause-low-roas", Priority: 20, Enabled: true,
		Groups: []domain.ConditionGroup{{Conditions: []domain.Condition{cond(domain.MetricROAS, domain.OpLT, 1.0)}}},
		Action: domain.RuleAction{Type: domain.ActionPause},
	}
	st := &fakeOptStore{
		tenant:   tenant,
		settings: &domain.OptimizationSettings{TenantID: tenant.ID, Enabled: true},
		// Sorted by priority descending, as the store returns them.
		rules:   []*domain.OptimizationRule{pauseRule, scaleUpRule(10, 0)},
		mirrors: map[string]*domain.Campaign{},
	}
	ads := &fakeOptAds{
		campaigns: []pinterest.Campaign{{ID: "c1", Status: "ACTIVE", DailySpendCap: pinterest.DollarsToMicro(50)}},
		analytics: []pinterest.AnalyticsRow{{CampaignID: "c1", SpendMicro: 80_000_000}},
	}

	if err := newTestOptimizer(st, ads).Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Both rules match (roas 0 < 1, spend 80 >= 0); only the pause runs.
	if len(ads.paused) != 1 || ads.paused[0] != "c1" {
		t.Errorf("paused = %v, want [c1]", ads.paused)
	}
	if len(ads.budgetWrites) != 0 {
		t.Errorf("budget writes = %v, want none", ads.budgetWrites)
	}
	if st.statusUpdates["c1"] != "PAUSED" {
		t.Errorf("status mirror = %v", st.statusUpdates)
	}
	audit := st.audits[0]
	if audit.ActionTaken != domain.AuditPaused || audit.NewStatus != "PAUSED" || *audit.RuleID != pauseRule.ID {
		t.Errorf("audit = %+v", audit)
	}
}

func TestOptimizer_NoMatchStillAudits(t *testing.T) {
	tenant := &domain.Tenant{ID: uuid.New(), Name: "acme", ShopDomain: "s", AccessToken: "t"}
	st := &fakeOptStore{
		tenant:   tenant,
		settings: &domain.OptimizationSettings{TenantID: tenant.ID, Enabled: true},
		rules:    []*domain.OptimizationRule{scaleUpRule(10, 1000)},
		mirrors:  map[string]*domain.Campaign{},
	}
	ads := &fakeOptAds{
		campaigns: []pinterest.Campaign{{ID: "c1", Status: "ACTIVE", DailySpendCap: pinterest.DollarsToMicro(50)}},
	}

	if err := newTestOptimizer(st, ads).Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(st.audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(st.audits))
	}
	audit := st.audits[0]
	if audit.ActionTaken != domain.AuditNoMatch || audit.RuleID != nil {
		t.Errorf("audit = %+v", audit)
	}
	if audit.OldBudget != audit.NewBudget {
		t.Errorf("no-match audit changed budget: %+v", audit)
	}
}

func TestOptimizer_TestModeUsesStoredMetricsAndWritesNothing(t *testing.T) {
	tenant := &domain.Tenant{ID: uuid.New(), Name: "acme", ShopDomain: "s", AccessToken: "t"}
	st := &fakeOptStore{
		tenant: tenant,
		settings: &domain.OptimizationSettings{
			TenantID: tenant.ID, Enabled: true, TestMode: true,
			TestCampaignID: "c-test",
			TestMetrics:    &domain.CampaignMetrics{Spend: 500, Checkouts: 1, ROAS: 0.2},
		},
		rules: []*domain.OptimizationRule{{
			ID: uuid.New(), Name: "pause", Priority: 1, Enabled: true,
			Groups: []domain.ConditionGroup{{Conditions: []domain.Condition{cond(domain.MetricROAS, domain.OpLT, 1.0)}}},
			Action: domain.RuleAction{Type: domain.ActionPause},
		}},
		mirrors: map[string]*domain.Campaign{},
	}
	ads := &fakeOptAds{
		campaigns: []pinterest.Campaign{{ID: "c-test", Status: "ACTIVE", DailySpendCap: pinterest.DollarsToMicro(25)}},
	}

	if err := newTestOptimizer(st, ads).Run(context.Background(), jobs.NewResult()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// The rule matched on the stored metrics, but nothing touched the
	// platform or the local mirror.
	if len(ads.paused) != 0 || len(ads.budgetWrites) != 0 || len(st.statusUpdates) != 0 {
		t.Errorf("test mode wrote: paused=%v budgets=%v status=%v", ads.paused, ads.budgetWrites, st.statusUpdates)
	}
	audit := st.audits[0]
	if !audit.TestRun || audit.ActionTaken != domain.AuditPaused || audit.Metrics.Spend != 500 {
		t.Errorf("audit = %+v", audit)
	}
}
