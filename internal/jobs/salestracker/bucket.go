// Package salestracker ingests order history for tracked collections and
// rolls it into per-product sales aggregates.
package salestracker

import (
	"time"

	"github.com/ignite/podpilot/internal/shopify"
)

// Counters holds the five bucket values plus lifetime totals for one
// product.
type Counters struct {
	First7Days    int
	Last3Days     int
	Last7Days     int
	Last10Days    int
	Last14Days    int
	TotalSales    int
	TotalQuantity int
}

// BucketLines rolls order lines into the five windows. first_7_days
// counts quantities dated within [anchor, anchor+7d]. The last-N windows
// cover the N local days immediately preceding the start of the current
// local day, so the still-open day never drags a window down. Totals
// count every line regardless of window.
func BucketLines(lines []shopify.OrderLine, anchor, now time.Time, loc *time.Location) Counters {
	var c Counters

	first7End := anchor.Add(7 * 24 * time.Hour)
	localNow := now.In(loc)
	todayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)

	windowStart := func(days int) time.Time {
		return todayStart.AddDate(0, 0, -days)
	}
	w3, w7, w10, w14 := windowStart(3), windowStart(7), windowStart(10), windowStart(14)

	for _, line := range lines {
		c.TotalSales++
		c.TotalQuantity += line.Quantity

		if !line.CreatedAt.Before(anchor) && !line.CreatedAt.After(first7End) {
			c.First7Days += line.Quantity
		}

		local := line.CreatedAt.In(loc)
		if local.Before(todayStart) {
			if !local.Before(w3) {
				c.Last3Days += line.Quantity
			}
			if !local.Before(w7) {
				c.Last7Days += line.Quantity
			}
			if !local.Before(w10) {
				c.Last10Days += line.Quantity
			}
			if !local.Before(w14) {
				c.Last14Days += line.Quantity
			}
		}
	}
	return c
}
