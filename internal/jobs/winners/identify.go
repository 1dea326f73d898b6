// Package winners identifies high-performing products from their sales
// aggregates and scales them into new ad campaigns with AI-generated
// creatives, cloning targeting from the campaign that first advertised
// the product.
package winners

import (
	"context"
	"log"
	"strconv"

	"github.com/ignite/podpilot/internal/domain"
)

// BucketsPassed counts how many of the four sales thresholds the
// aggregate row clears.
func BucketsPassed(set *domain.WinnerScalingSettings, row *domain.ProductSales) int {
	n := 0
	if row.Last3Days >= set.Threshold3D {
		n++
	}
	if row.Last7Days >= set.Threshold7D {
		n++
	}
	if row.Last10Days >= set.Threshold10D {
		n++
	}
	if row.Last14Days >= set.Threshold14D {
		n++
	}
	return n
}

// identifyWinners walks the recent sellers and upserts every product that
// clears min_buckets_required. An existing winner row, active or not, is
// left untouched.
func (s *Scaler) identifyWinners(ctx context.Context, tenant *domain.Tenant, commerce Commerce, set *domain.WinnerScalingSettings) (int, error) {
	rows, err := s.Store.GetRecentSellers(ctx, tenant.ID)
	if err != nil {
		return 0, err
	}

	identified := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return identified, ctx.Err()
		}
		passed := BucketsPassed(set, row)
		if passed < set.MinBucketsRequired {
			continue
		}

		winner, err := s.buildWinner(ctx, tenant, commerce, row, passed)
		if err != nil {
			log.Printf("[WinnerScaler] %s: could not build winner for product %s: %v", tenant.Name, row.ProductID, err)
			continue
		}
		if _, err := s.Store.UpsertWinner(ctx, winner); err != nil {
			return identified, err
		}
		identified++
	}
	return identified, nil
}

func (s *Scaler) buildWinner(ctx context.Context, tenant *domain.Tenant, commerce Commerce, row *domain.ProductSales, passed int) (*domain.WinnerProduct, error) {
	winner := &domain.WinnerProduct{
		TenantID:     tenant.ID,
		ProductID:    row.ProductID,
		CollectionID: row.CollectionID,
		Title:        row.ProductTitle,
		Snapshot: domain.SalesSnapshot{
			Sales3D:  row.Last3Days,
			Sales7D:  row.Last7Days,
			Sales10D: row.Last10Days,
			Sales14D: row.Last14Days,
		},
		BucketsPassed: passed,
	}

	if productID, err := strconv.ParseInt(row.ProductID, 10, 64); err == nil {
		if product, err := commerce.GetProduct(ctx, productID); err == nil && product != nil {
			winner.Handle = product.Handle
			winner.ImageURL = product.PrimaryImageURL()
			if product.Title != "" {
				winner.Title = product.Title
			}
		}
	}
	if collection, err := commerce.GetSmartCollection(ctx, row.CollectionID); err == nil && collection != nil {
		winner.CollectionHandle = collection.Handle
	}

	// The most recent successful sync row points at the campaign the
	// scaler clones targeting from.
	if syncLog, err := s.Store.GetLatestSyncLogForProduct(ctx, tenant.ID, row.ProductID); err == nil && syncLog != nil {
		winner.OriginalCampaignID = syncLog.CampaignID
	}
	return winner, nil
}
