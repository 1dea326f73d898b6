package domain

import (
	"testing"
)

func TestLinearizeConditions(t *testing.T) {
	// [spend>=100 AND] [checkouts<=3 OR] [roas<2.0] linearises to
	// two groups: [spend>=100] AND [checkouts<=3 OR roas<2.0].
	conds := []Condition{
		{Metric: MetricSpend, Operator: OpGTE, Value: 100, Logic: "AND"},
		{Metric: MetricCheckouts, Operator: OpLTE, Value: 3, Logic: "OR"},
		{Metric: MetricROAS, Operator: OpLT, Value: 2.0},
	}

	groups := LinearizeConditions(conds)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if len(groups[0].Conditions) != 1 {
		t.Errorf("group 0 has %d conditions, want 1", len(groups[0].Conditions))
	}
	if len(groups[1].Conditions) != 2 {
		t.Errorf("group 1 has %d conditions, want 2", len(groups[1].Conditions))
	}
	if groups[1].Conditions[0].Metric != MetricCheckouts {
		t.Errorf("group 1 starts with %q", groups[1].Conditions[0].Metric)
	}
}

func TestLinearizeConditions_Empty(t *testing.T) {
	if groups := LinearizeConditions(nil); groups != nil {
		t.Errorf("nil conditions should produce nil groups, got %v", groups)
	}
}

func TestDecodeRuleConditions_BothShapes(t *testing.T) {
	// Legacy flat shape
	flat := []byte(`{"conditions":[
		{"metric":"spend","operator":">=","value":100,"lookback_days":7,"logic":"AND"},
		{"metric":"roas","operator":"<","value":2.0,"lookback_days":14,"logic":"OR"}
	]}`)
	groups, err := DecodeRuleConditions(flat)
	if err != nil {
		t.Fatalf("DecodeRuleConditions(flat) error: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Conditions) != 2 {
		t.Errorf("flat shape: got %+v", groups)
	}

	// Canonical nested shape
	nested := []byte(`{"condition_groups":[
		{"conditions":[{"metric":"spend","operator":">=","value":100,"lookback_days":7}]},
		{"conditions":[{"metric":"checkouts","operator":"<=","value":3,"lookback_days":7}]}
	]}`)
	groups, err = DecodeRuleConditions(nested)
	if err != nil {
		t.Fatalf("DecodeRuleConditions(nested) error: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("nested shape: got %d groups, want 2", len(groups))
	}
}

func TestEncodeRuleConditions_WritesNestedShape(t *testing.T) {
	groups := []ConditionGroup{
		{Conditions: []Condition{{Metric: MetricSpend, Operator: OpGT, Value: 50, LookbackDays: 7}}},
	}
	data, err := EncodeRuleConditions(groups)
	if err != nil {
		t.Fatalf("EncodeRuleConditions() error: %v", err)
	}

	decoded, err := DecodeRuleConditions(data)
	if err != nil {
		t.Fatalf("round-trip decode error: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Conditions[0].Metric != MetricSpend {
		t.Errorf("round-trip mismatch: %+v", decoded)
	}
}

func TestConditionEvaluate(t *testing.T) {
	m := CampaignMetrics{Spend: 150, Checkouts: 5, ROAS: 1.5}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"spend >= 100", Condition{Metric: MetricSpend, Operator: OpGTE, Value: 100}, true},
		{"checkouts <= 3", Condition{Metric: MetricCheckouts, Operator: OpLTE, Value: 3}, false},
		{"roas < 2.0", Condition{Metric: MetricROAS, Operator: OpLT, Value: 2.0}, true},
		{"spend == 150", Condition{Metric: MetricSpend, Operator: OpEQ, Value: 150}, true},
		{"checkouts > 5", Condition{Metric: MetricCheckouts, Operator: OpGT, Value: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(m)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionEvaluate_UnknownMetric(t *testing.T) {
	_, err := Condition{Metric: "ctr", Operator: OpGT, Value: 1}.Evaluate(CampaignMetrics{})
	if err == nil {
		t.Error("unknown metric should error")
	}
}

func TestMaxLookbackDays(t *testing.T) {
	r := OptimizationRule{Groups: []ConditionGroup{
		{Conditions: []Condition{{LookbackDays: 7}, {LookbackDays: 30}}},
		{Conditions: []Condition{{LookbackDays: 14}}},
	}}
	if got := r.MaxLookbackDays(); got != 30 {
		t.Errorf("MaxLookbackDays() = %d, want 30", got)
	}
}

func TestSplitLegacyCap(t *testing.T) {
	video, image := SplitLegacyCap(5)
	if video != 3 || image != 2 {
		t.Errorf("SplitLegacyCap(5) = (%d, %d), want (3, 2)", video, image)
	}
	video, image = SplitLegacyCap(4)
	if video != 2 || image != 2 {
		t.Errorf("SplitLegacyCap(4) = (%d, %d), want (2, 2)", video, image)
	}
}

func TestProductSalesWindowsConsistent(t *testing.T) {
	ok := ProductSales{Last3Days: 1, Last7Days: 2, Last10Days: 2, Last14Days: 5}
	if !ok.WindowsConsistent() {
		t.Error("monotonic windows reported inconsistent")
	}
	bad := ProductSales{Last3Days: 4, Last7Days: 2, Last10Days: 2, Last14Days: 5}
	if bad.WindowsConsistent() {
		t.Error("non-monotonic windows reported consistent")
	}
}
