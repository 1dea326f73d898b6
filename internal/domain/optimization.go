package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metric names a campaign analytics dimension a rule condition can test.
type Metric string

const (
	MetricSpend     Metric = "spend"
	MetricCheckouts Metric = "checkouts"
	MetricROAS      Metric = "roas"
)

// Operator is a comparison in a rule condition.
type Operator string

const (
	OpGTE Operator = ">="
	OpLTE Operator = "<="
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpEQ  Operator = "=="
)

// ActionType is what a matched rule does to a campaign.
type ActionType string

const (
	ActionScaleUp   ActionType = "scale_up"
	ActionScaleDown ActionType = "scale_down"
	ActionPause     ActionType = "pause"
)

// AdjustUnit is how a scale action's value is interpreted.
type AdjustUnit string

const (
	UnitAmount  AdjustUnit = "amount"
	UnitPercent AdjustUnit = "percent"
)

// CampaignType filters which campaigns a rule applies to.
type CampaignType string

const (
	CampaignTypeReplace CampaignType = "replace_campaign"
	CampaignTypeWinner  CampaignType = "winner_campaign"
)

// Condition tests one metric over a lookback window.
// Logic is only meaningful in the legacy flat encoding, where "AND"
// starts a new condition group.
type Condition struct {
	Metric       Metric   `json:"metric"`
	Operator     Operator `json:"operator"`
	Value        float64  `json:"value"`
	LookbackDays int      `json:"lookback_days"`
	Logic        string   `json:"logic,omitempty"`
}

// Evaluate applies the condition to a metric snapshot.
func (c Condition) Evaluate(m CampaignMetrics) (bool, error) {
	var actual float64
	switch c.Metric {
	case MetricSpend:
		actual = m.Spend
	case MetricCheckouts:
		actual = float64(m.Checkouts)
	case MetricROAS:
		actual = m.ROAS
	default:
		return false, fmt.Errorf("unknown metric %q", c.Metric)
	}

	switch c.Operator {
	case OpGTE:
		return actual >= c.Value, nil
	case OpLTE:
		return actual <= c.Value, nil
	case OpGT:
		return actual > c.Value, nil
	case OpLT:
		return actual < c.Value, nil
	case OpEQ:
		return actual == c.Value, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}
}

// ConditionGroup is a set of conditions combined with OR.
// Groups combine with AND.
type ConditionGroup struct {
	Conditions []Condition `json:"conditions"`
}

// RuleAction is the budget adjustment a matched rule performs.
type RuleAction struct {
	Type      ActionType `json:"type"`
	Unit      AdjustUnit `json:"unit,omitempty"`
	Value     float64    `json:"value,omitempty"`
	MinBudget float64    `json:"min_budget,omitempty"`
	MaxBudget float64    `json:"max_budget,omitempty"`
}

// OptimizationRule is one prioritized rule in a tenant's rule set.
// Higher priority evaluates first; the first match wins.
type OptimizationRule struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Priority int
	Enabled  bool

	Groups []ConditionGroup
	Action RuleAction

	// Optional applicability gates.
	MinCampaignAgeDays *int
	MaxCampaignAgeDays *int
	CampaignType       CampaignType // empty means any
}

// MaxLookbackDays returns the widest lookback window used by the rule's
// conditions, so one analytics fetch can serve all of them.
func (r *OptimizationRule) MaxLookbackDays() int {
	max := 0
	for _, g := range r.Groups {
		for _, c := range g.Conditions {
			if c.LookbackDays > max {
				max = c.LookbackDays
			}
		}
	}
	return max
}

// ruleConditionsJSON is the stored encoding of a rule's conditions.
// Two shapes coexist historically: a flat conditions[] list with
// per-condition logic markers, and the canonical nested
// condition_groups[]. Both decode; only the nested shape is written.
type ruleConditionsJSON struct {
	Conditions      []Condition      `json:"conditions,omitempty"`
	ConditionGroups []ConditionGroup `json:"condition_groups,omitempty"`
}

// DecodeRuleConditions parses either stored shape into groups.
func DecodeRuleConditions(raw []byte) ([]ConditionGroup, error) {
	var enc ruleConditionsJSON
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("decoding rule conditions: %w", err)
	}
	if len(enc.ConditionGroups) > 0 {
		return enc.ConditionGroups, nil
	}
	return LinearizeConditions(enc.Conditions), nil
}

// EncodeRuleConditions writes the canonical nested shape.
func EncodeRuleConditions(groups []ConditionGroup) ([]byte, error) {
	return json.Marshal(ruleConditionsJSON{ConditionGroups: groups})
}

// LinearizeConditions converts a flat condition list into groups: a new
// group begins at the first condition and at every condition whose
// logic marker is "AND"; conditions within a group combine with OR.
func LinearizeConditions(conds []Condition) []ConditionGroup {
	var groups []ConditionGroup
	for i, c := range conds {
		if i == 0 || c.Logic == "AND" {
			groups = append(groups, ConditionGroup{})
		}
		c.Logic = ""
		last := len(groups) - 1
		groups[last].Conditions = append(groups[last].Conditions, c)
	}
	return groups
}

// CampaignMetrics is one campaign's analytics snapshot over a lookback
// window. Spend is in dollars; ROAS is conversion value over spend and
// zero when spend is zero.
type CampaignMetrics struct {
	Spend     float64 `json:"spend"`
	Checkouts int     `json:"checkouts"`
	ROAS      float64 `json:"roas"`
}

// OptimizationSettings is the per-tenant optimizer configuration.
type OptimizationSettings struct {
	TenantID       uuid.UUID
	Enabled        bool
	TestMode       bool
	TestCampaignID string
	TestMetrics    *CampaignMetrics
}

// OptimizationLog is the audit row emitted for every campaign evaluation,
// including the evaluations where no rule matched.
type OptimizationLog struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CampaignID  string
	RuleID      *uuid.UUID
	ActionTaken string
	OldBudget   float64
	NewBudget   float64
	OldStatus   string
	NewStatus   string
	Metrics     CampaignMetrics
	TestRun     bool
	CreatedAt   time.Time
}

// Audit action values for OptimizationLog.ActionTaken.
const (
	AuditScaledUp   = "scaled_up"
	AuditScaledDown = "scaled_down"
	AuditPaused     = "paused"
	AuditSkipped    = "skipped"
	AuditNoMatch    = "no_rule_matched"
)
