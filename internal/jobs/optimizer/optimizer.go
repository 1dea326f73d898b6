package optimizer

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/pinterest"
)

// Store is the persistence surface the optimizer needs.
type Store interface {
	GetTenantsWithOptimizerEnabled(ctx context.Context) ([]*domain.Tenant, error)
	GetOptimizationSettings(ctx context.Context, tenantID uuid.UUID) (*domain.OptimizationSettings, error)
	GetEnabledRules(ctx context.Context, tenantID uuid.UUID) ([]*domain.OptimizationRule, error)
	GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error)
	GetSelectedAdAccount(ctx context.Context, tenantID uuid.UUID) (*domain.AdAccount, error)
	GetMirroredCampaign(ctx context.Context, tenantID uuid.UUID, campaignID string) (*domain.Campaign, error)
	UpdateCampaignBudget(ctx context.Context, tenantID uuid.UUID, campaignID string, budget float64) error
	UpdateCampaignStatus(ctx context.Context, tenantID uuid.UUID, campaignID, status string) error
	InsertOptimizationLog(ctx context.Context, l *domain.OptimizationLog) error
}

// Ads is the ad-platform surface the optimizer needs.
type Ads interface {
	ListCampaigns(ctx context.Context, adAccountID string, statuses ...string) ([]pinterest.Campaign, error)
	GetCampaign(ctx context.Context, adAccountID, campaignID string) (*pinterest.Campaign, error)
	CampaignAnalytics(ctx context.Context, adAccountID string, campaignIDs []string, start, end time.Time) ([]pinterest.AnalyticsRow, error)
	UpdateCampaignBudget(ctx context.Context, adAccountID, campaignID string, dailySpendCapMicro int64) error
	PauseCampaign(ctx context.Context, adAccountID, campaignID string) error
}

// Auth refreshes expired ad-platform tokens.
type Auth interface {
	EnsureFresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error)
}

// Optimizer is the budget-optimizer pipeline.
type Optimizer struct {
	Store  Store
	Ads    func(auth *domain.PinterestAuth) Ads
	Auth   Auth
	FanOut int
	Now    func() time.Time
}

// Run fans the optimizer out over every tenant with the optimizer
// enabled.
func (o *Optimizer) Run(ctx context.Context, result *jobs.Result) error {
	tenants, err := o.Store.GetTenantsWithOptimizerEnabled(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Optimizer] processing %d tenants", len(tenants))

	var budgetsChanged, campaignsPaused int64
	err = jobs.FanOut(ctx, tenants, o.FanOut, result, func(ctx context.Context, tenant *domain.Tenant) error {
		return o.processTenant(ctx, tenant, result, &budgetsChanged, &campaignsPaused)
	})

	result.SetMeta("budgets_changed", atomic.LoadInt64(&budgetsChanged))
	result.SetMeta("campaigns_paused", atomic.LoadInt64(&campaignsPaused))
	return err
}

func (o *Optimizer) processTenant(ctx context.Context, tenant *domain.Tenant, result *jobs.Result, budgetsChanged, campaignsPaused *int64) error {
	op := "optimizer.processTenant"

	settings, err := o.Store.GetOptimizationSettings(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if settings == nil || !settings.Enabled {
		return nil
	}

	rules, err := o.Store.GetEnabledRules(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		log.Printf("[Optimizer] %s: no enabled rules", tenant.Name)
		return nil
	}

	auth, err := o.Store.GetPinterestAuth(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if auth == nil {
		return joberr.Newf(joberr.Validation, op, "tenant %s has no ad-platform connection", tenant.Name)
	}
	auth, err = o.Auth.EnsureFresh(ctx, auth)
	if err != nil {
		return err
	}
	account, err := o.Store.GetSelectedAdAccount(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if account == nil {
		return joberr.Newf(joberr.Validation, op, "tenant %s has no selected ad account", tenant.Name)
	}

	ads := o.Ads(auth)

	campaigns, err := o.candidateCampaigns(ctx, ads, account.AdAccountID, settings)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		return nil
	}

	metricsByCampaign, err := o.fetchMetrics(ctx, ads, account.AdAccountID, settings, rules, campaigns)
	if err != nil {
		return err
	}

	for i := range campaigns {
		campaign := &campaigns[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		changed, paused, err := o.evaluateCampaign(ctx, tenant, ads, account.AdAccountID, settings, rules, campaign, metricsByCampaign[campaign.ID])
		if err != nil {
			log.Printf("[Optimizer] %s: campaign %s failed: %v", tenant.Name, campaign.ID, err)
			result.AddError("%s: campaign %s: %v", tenant.Name, campaign.ID, err)
			continue
		}
		if changed {
			atomic.AddInt64(budgetsChanged, 1)
		}
		if paused {
			atomic.AddInt64(campaignsPaused, 1)
		}
	}
	return nil
}

// candidateCampaigns returns the campaigns this run evaluates: only the
// test campaign in test mode, every active campaign otherwise.
func (o *Optimizer) candidateCampaigns(ctx context.Context, ads Ads, adAccountID string, settings *domain.OptimizationSettings) ([]pinterest.Campaign, error) {
	if settings.TestMode {
		if settings.TestCampaignID == "" {
			return nil, joberr.Newf(joberr.Validation, "optimizer.candidateCampaigns",
				"test mode enabled without a test campaign")
		}
		campaign, err := ads.GetCampaign(ctx, adAccountID, settings.TestCampaignID)
		if err != nil {
			return nil, err
		}
		return []pinterest.Campaign{*campaign}, nil
	}
	return ads.ListCampaigns(ctx, adAccountID, domain.CampaignActive)
}

// fetchMetrics pulls one analytics window wide enough for every rule
// condition. Test mode substitutes the tenant's stored metrics verbatim.
func (o *Optimizer) fetchMetrics(ctx context.Context, ads Ads, adAccountID string, settings *domain.OptimizationSettings,
	rules []*domain.OptimizationRule, campaigns []pinterest.Campaign) (map[string]domain.CampaignMetrics, error) {

	metrics := make(map[string]domain.CampaignMetrics, len(campaigns))

	if settings.TestMode {
		m := domain.CampaignMetrics{}
		if settings.TestMetrics != nil {
			m = *settings.TestMetrics
		}
		for _, c := range campaigns {
			metrics[c.ID] = m
		}
		return metrics, nil
	}

	lookback := 1
	for _, r := range rules {
		if d := r.MaxLookbackDays(); d > lookback {
			lookback = d
		}
	}

	ids := make([]string, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
	}
	now := o.Now()
	rows, err := ads.CampaignAnalytics(ctx, adAccountID, ids, now.AddDate(0, 0, -lookback), now)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		metrics[row.CampaignID] = domain.CampaignMetrics{
			Spend:     row.Spend(),
			Checkouts: int(row.Conversions),
			ROAS:      row.ROAS(),
		}
	}
	// Campaigns with no analytics rows evaluate against zero metrics.
	return metrics, nil
}

// evaluateCampaign applies the first matching rule to one campaign and
// writes the audit row. Reports whether a budget change or a pause was
// written through.
func (o *Optimizer) evaluateCampaign(ctx context.Context, tenant *domain.Tenant, ads Ads, adAccountID string,
	settings *domain.OptimizationSettings, rules []*domain.OptimizationRule,
	campaign *pinterest.Campaign, metrics domain.CampaignMetrics) (bool, bool, error) {

	mirror, err := o.Store.GetMirroredCampaign(ctx, tenant.ID, campaign.ID)
	if err != nil {
		return false, false, err
	}
	currentBudget := pinterest.MicroToDollars(campaign.DailySpendCap)
	isWinner := false
	if mirror != nil {
		isWinner = mirror.IsWinnerCampaign
		if mirror.DailyBudget > 0 {
			currentBudget = mirror.DailyBudget
		}
	}

	audit := &domain.OptimizationLog{
		TenantID:   tenant.ID,
		CampaignID: campaign.ID,
		OldBudget:  currentBudget,
		NewBudget:  currentBudget,
		OldStatus:  campaign.Status,
		NewStatus:  campaign.Status,
		Metrics:    metrics,
		TestRun:    settings.TestMode,
	}

	rule, err := FirstMatch(rules, metrics, campaignAgeDays(campaign.CreatedTime, o.Now()), isWinner)
	if err != nil {
		return false, false, err
	}
	if rule == nil {
		audit.ActionTaken = domain.AuditNoMatch
		return false, false, o.Store.InsertOptimizationLog(ctx, audit)
	}
	ruleID := rule.ID
	audit.RuleID = &ruleID

	if rule.Action.Type == domain.ActionPause {
		audit.ActionTaken = domain.AuditPaused
		audit.NewStatus = domain.CampaignPaused
		if !settings.TestMode {
			if err := ads.PauseCampaign(ctx, adAccountID, campaign.ID); err != nil {
				return false, false, err
			}
			if err := o.Store.UpdateCampaignStatus(ctx, tenant.ID, campaign.ID, domain.CampaignPaused); err != nil {
				return false, false, err
			}
		}
		log.Printf("[Optimizer] %s: paused campaign %s (rule %s)", tenant.Name, campaign.ID, rule.Name)
		return false, true, o.Store.InsertOptimizationLog(ctx, audit)
	}

	change := ResolveScale(rule.Action, currentBudget)
	audit.ActionTaken = change.Action
	audit.NewBudget = change.NewBudget
	if change.Action == domain.AuditSkipped {
		log.Printf("[Optimizer] %s: campaign %s skipped (rule %s): %s", tenant.Name, campaign.ID, rule.Name, change.Reason)
		return false, false, o.Store.InsertOptimizationLog(ctx, audit)
	}

	if !settings.TestMode {
		if err := ads.UpdateCampaignBudget(ctx, adAccountID, campaign.ID, pinterest.DollarsToMicro(change.NewBudget)); err != nil {
			return false, false, err
		}
		if err := o.Store.UpdateCampaignBudget(ctx, tenant.ID, campaign.ID, change.NewBudget); err != nil {
			return false, false, err
		}
	}
	log.Printf("[Optimizer] %s: campaign %s budget %.2f -> %.2f (rule %s)",
		tenant.Name, campaign.ID, change.OldBudget, change.NewBudget, rule.Name)
	return true, false, o.Store.InsertOptimizationLog(ctx, audit)
}
