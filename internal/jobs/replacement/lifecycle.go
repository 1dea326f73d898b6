// Package replacement rotates under-performing products out of tracked
// collections: lifecycle evaluation, a two-phase tag swap that preserves
// display order, and inventory zeroing for losers.
package replacement

import (
	"time"

	"github.com/ignite/podpilot/internal/domain"
)

// Phase is a product's lifecycle phase within a collection.
type Phase string

const (
	PhaseTooNew  Phase = "too_new"
	PhaseInitial Phase = "initial"
	PhasePost    Phase = "post"
)

// Action is the lifecycle verdict for one product.
type Action string

const (
	ActionKeep    Action = "keep"
	ActionReplace Action = "replace"
)

// Decision is the full evaluation outcome for one product.
type Decision struct {
	Phase     Phase
	Action    Action
	OKBuckets int
	// Loser marks a replaced product whose lifetime sales are at or
	// below the tenant's loser threshold; its inventory gets zeroed.
	Loser bool
}

// Evaluate applies the tenant's lifecycle thresholds to one product's
// aggregates. The phase boundaries are inclusive at the lower bound: a
// product exactly start_phase_days old is already in the initial phase.
func Evaluate(rules *domain.TenantRules, sales *domain.ProductSales, now time.Time) Decision {
	days := sales.DaysInCollection(now)

	switch {
	case days < rules.StartPhaseDays:
		return Decision{Phase: PhaseTooNew, Action: ActionKeep}

	case days < rules.PostPhaseDays:
		d := Decision{Phase: PhaseInitial, Action: ActionKeep}
		if sales.First7Days <= rules.MinSalesDay7Delete || sales.First7Days <= rules.MinSalesDay7Replace {
			d.Action = ActionReplace
		}
		d.Loser = d.Action == ActionReplace && sales.TotalSales <= rules.LoserThreshold
		return d

	default:
		d := Decision{Phase: PhasePost}
		if sales.Last3Days >= rules.Avg3OK {
			d.OKBuckets++
		}
		if sales.Last7Days >= rules.Avg7OK {
			d.OKBuckets++
		}
		if sales.Last10Days >= rules.Avg10OK {
			d.OKBuckets++
		}
		if sales.Last14Days >= rules.Avg14OK {
			d.OKBuckets++
		}
		if d.OKBuckets >= rules.MinOKBuckets {
			d.Action = ActionKeep
		} else {
			d.Action = ActionReplace
		}
		d.Loser = d.Action == ActionReplace && sales.TotalSales <= rules.LoserThreshold
		return d
	}
}

// ArchiveTag returns the dated tag applied to a replaced product.
func ArchiveTag(now time.Time) string {
	return "replaced_" + now.Format("02-01-2006")
}
