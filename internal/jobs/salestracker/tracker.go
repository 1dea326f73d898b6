package salestracker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/shopify"
	"github.com/ignite/podpilot/internal/store"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	GetTenantsWithAssignments(ctx context.Context) ([]*domain.Tenant, error)
	GetAssignments(ctx context.Context, tenantID uuid.UUID) ([]*domain.CampaignBatchAssignment, error)
	EnsureProductSales(ctx context.Context, tenantID uuid.UUID, collectionID, productID, title string, now time.Time) (*domain.ProductSales, error)
	UpdateProductSales(ctx context.Context, p *domain.ProductSales) error
}

// Commerce is the commerce-platform surface the tracker needs.
type Commerce interface {
	GetShop(ctx context.Context) (*shopify.Shop, error)
	GetCollectionProducts(ctx context.Context, collectionID string) ([]shopify.Product, error)
	OrderLinesForProduct(ctx context.Context, productID int64, since time.Time) ([]shopify.OrderLine, error)
}

// Tracker is the sales-tracker pipeline.
type Tracker struct {
	Store    Store
	Commerce func(t *domain.Tenant) Commerce
	FanOut   int
	Now      func() time.Time
}

// Run fans the tracker out over every tenant with assignments.
func (t *Tracker) Run(ctx context.Context, result *jobs.Result) error {
	tenants, err := t.Store.GetTenantsWithAssignments(ctx)
	if err != nil {
		return err
	}
	log.Printf("[SalesTracker] processing %d tenants", len(tenants))
	return jobs.FanOut(ctx, tenants, t.FanOut, result, func(ctx context.Context, tenant *domain.Tenant) error {
		return t.processTenant(ctx, tenant, result)
	})
}

func (t *Tracker) processTenant(ctx context.Context, tenant *domain.Tenant, result *jobs.Result) error {
	assignments, err := t.Store.GetAssignments(ctx, tenant.ID)
	if err != nil {
		return err
	}
	collections := store.CollectionIDsForTenant(assignments)
	if len(collections) == 0 {
		return nil
	}

	commerce := t.Commerce(tenant)
	shop, err := commerce.GetShop(ctx)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(shop.IANATimezone)
	if err != nil {
		log.Printf("[SalesTracker] %s: unknown timezone %q, using UTC", tenant.Name, shop.IANATimezone)
		loc = time.UTC
	}

	productFailures := 0
	for _, collectionID := range collections {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := t.processCollection(ctx, tenant, commerce, collectionID, loc)
		productFailures += n
		if err != nil {
			// A collection-level failure skips the collection, not the
			// tenant.
			log.Printf("[SalesTracker] %s: collection %s failed: %v", tenant.Name, collectionID, err)
			result.AddError("%s: collection %s: %v", tenant.Name, collectionID, err)
		}
	}
	if productFailures > 0 {
		result.AddError("%s: %d product updates failed", tenant.Name, productFailures)
	}
	return nil
}

// processCollection updates every product aggregate in one collection.
// Returns the count of per-product failures, which are isolated.
func (t *Tracker) processCollection(ctx context.Context, tenant *domain.Tenant, commerce Commerce, collectionID string, loc *time.Location) (int, error) {
	products, err := commerce.GetCollectionProducts(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	failures := 0
	for _, product := range products {
		if ctx.Err() != nil {
			return failures, ctx.Err()
		}
		if err := t.processProduct(ctx, tenant, commerce, collectionID, &product, loc); err != nil {
			failures++
			log.Printf("[SalesTracker] %s: product %s failed: %v", tenant.Name, product.IDString(), err)
		}
	}
	log.Printf("[SalesTracker] %s: collection %s updated %d products (%d failed)",
		tenant.Name, collectionID, len(products)-failures, failures)
	return failures, nil
}

func (t *Tracker) processProduct(ctx context.Context, tenant *domain.Tenant, commerce Commerce, collectionID string, product *shopify.Product, loc *time.Location) error {
	now := t.Now()

	row, err := t.Store.EnsureProductSales(ctx, tenant.ID, collectionID, product.IDString(), product.Title, now)
	if err != nil {
		return err
	}

	lines, err := commerce.OrderLinesForProduct(ctx, product.ID, row.DateAddedToCollection)
	if err != nil {
		return err
	}

	c := BucketLines(lines, row.DateAddedToCollection, now, loc)
	row.ProductTitle = product.Title
	row.First7Days = c.First7Days
	row.Last3Days = c.Last3Days
	row.Last7Days = c.Last7Days
	row.Last10Days = c.Last10Days
	row.Last14Days = c.Last14Days
	row.TotalSales = c.TotalSales
	row.TotalQuantity = c.TotalQuantity
	row.LastUpdate = now

	return t.Store.UpdateProductSales(ctx, row)
}
