// Package optimizer adjusts campaign budgets from per-tenant rule sets
// evaluated over ad-platform analytics. One action at most per campaign
// per run; every evaluation leaves an audit row.
package optimizer

import (
	"time"

	"github.com/ignite/podpilot/internal/domain"
)

// EvaluateGroups applies the rule's condition expression to a metric
// snapshot: conditions within a group combine with OR, groups combine
// with AND. Both operators short-circuit.
func EvaluateGroups(groups []domain.ConditionGroup, m domain.CampaignMetrics) (bool, error) {
	for _, group := range groups {
		groupOK := false
		for _, cond := range group.Conditions {
			ok, err := cond.Evaluate(m)
			if err != nil {
				return false, err
			}
			if ok {
				groupOK = true
				break
			}
		}
		if !groupOK {
			return false, nil
		}
	}
	return len(groups) > 0, nil
}

// campaignAgeDays returns whole days since the platform created the
// campaign, or -1 when the platform did not report a creation time.
func campaignAgeDays(createdTime int64, now time.Time) int {
	if createdTime == 0 {
		return -1
	}
	return int(now.Sub(time.Unix(createdTime, 0)).Hours() / 24)
}

// ruleApplies checks the rule's optional age and campaign-type gates.
// Age-gated rules never apply to campaigns with an unknown age.
func ruleApplies(rule *domain.OptimizationRule, ageDays int, isWinnerCampaign bool) bool {
	if rule.MinCampaignAgeDays != nil || rule.MaxCampaignAgeDays != nil {
		if ageDays < 0 {
			return false
		}
		if rule.MinCampaignAgeDays != nil && ageDays < *rule.MinCampaignAgeDays {
			return false
		}
		if rule.MaxCampaignAgeDays != nil && ageDays > *rule.MaxCampaignAgeDays {
			return false
		}
	}
	switch rule.CampaignType {
	case domain.CampaignTypeWinner:
		return isWinnerCampaign
	case domain.CampaignTypeReplace:
		return !isWinnerCampaign
	}
	return true
}

// FirstMatch returns the highest-priority applicable rule whose condition
// expression holds, or nil. rules must already be sorted by priority
// descending.
func FirstMatch(rules []*domain.OptimizationRule, m domain.CampaignMetrics, ageDays int, isWinnerCampaign bool) (*domain.OptimizationRule, error) {
	for _, rule := range rules {
		if !ruleApplies(rule, ageDays, isWinnerCampaign) {
			continue
		}
		ok, err := EvaluateGroups(rule.Groups, m)
		if err != nil {
			return nil, err
		}
		if ok {
			return rule, nil
		}
	}
	return nil, nil
}

// BudgetChange is the resolved outcome of a scale action.
type BudgetChange struct {
	Action    string // audit action value
	OldBudget float64
	NewBudget float64
	Reason    string // set when the change is skipped
}

// ResolveScale computes the clamped budget a scale action yields.
// Unchanged budgets come back as skipped.
func ResolveScale(action domain.RuleAction, current float64) BudgetChange {
	delta := action.Value
	if action.Unit == domain.UnitPercent {
		delta = current * action.Value / 100
	}

	change := BudgetChange{OldBudget: current, NewBudget: current}
	if delta == 0 {
		change.Action = domain.AuditSkipped
		change.Reason = "no change, zero delta"
		return change
	}
	switch action.Type {
	case domain.ActionScaleUp:
		next := current + delta
		if action.MaxBudget > 0 && next > action.MaxBudget {
			next = action.MaxBudget
		}
		if next <= current {
			change.Action = domain.AuditSkipped
			change.Reason = "no change, at maximum"
			return change
		}
		change.Action = domain.AuditScaledUp
		change.NewBudget = next

	case domain.ActionScaleDown:
		next := current - delta
		if next < action.MinBudget {
			next = action.MinBudget
		}
		if next >= current {
			change.Action = domain.AuditSkipped
			change.Reason = "no change, at minimum"
			return change
		}
		change.Action = domain.AuditScaledDown
		change.NewBudget = next
	}
	return change
}
