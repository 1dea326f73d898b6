package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProductSales is the per-(tenant, collection, product) sales aggregate.
// DateAddedToCollection anchors the first-7-days window and is set once,
// on first observation. The last-N-days counters exclude the current
// local day in the shop's timezone.
type ProductSales struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CollectionID string
	ProductID    string
	ProductTitle string

	DateAddedToCollection time.Time
	LastUpdate            time.Time

	First7Days int
	Last3Days  int
	Last7Days  int
	Last10Days int
	Last14Days int

	TotalSales    int
	TotalQuantity int
}

// DaysInCollection returns whole days since the product entered the
// collection, as of now.
func (p *ProductSales) DaysInCollection(now time.Time) int {
	return int(now.Sub(p.DateAddedToCollection).Hours() / 24)
}

// WindowsConsistent reports whether the nested last-N windows are
// monotonic: last_3 <= last_7 <= last_10 <= last_14. The windows share
// one anchor, so a violation indicates a bucketing bug.
func (p *ProductSales) WindowsConsistent() bool {
	return p.Last3Days <= p.Last7Days &&
		p.Last7Days <= p.Last10Days &&
		p.Last10Days <= p.Last14Days
}
