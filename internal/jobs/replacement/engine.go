package replacement

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/shopify"
	"github.com/ignite/podpilot/internal/store"
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetTenantsWithAssignments(ctx context.Context) ([]*domain.Tenant, error)
	GetTenantRules(ctx context.Context, tenantID uuid.UUID) (*domain.TenantRules, error)
	GetAssignments(ctx context.Context, tenantID uuid.UUID) ([]*domain.CampaignBatchAssignment, error)
	GetProductSalesForCollection(ctx context.Context, tenantID uuid.UUID, collectionID string) ([]*domain.ProductSales, error)
	DeleteProductSalesRow(ctx context.Context, tenantID uuid.UUID, collectionID, productID string) error
}

// Commerce is the commerce-platform surface the engine needs.
type Commerce interface {
	GetCollectionProducts(ctx context.Context, collectionID string) ([]shopify.Product, error)
	GetSmartCollection(ctx context.Context, collectionID string) (*shopify.SmartCollection, error)
	GetProductsByTag(ctx context.Context, tag string, limit int) ([]shopify.Product, error)
	SetProductTags(ctx context.Context, productID int64, tags []string) error
	ZeroInventory(ctx context.Context, productID int64) error
	ReorderCollection(ctx context.Context, collectionID string, moves []shopify.Move) (string, error)
}

// Engine is the replacement pipeline.
type Engine struct {
	Store       Store
	Commerce    func(t *domain.Tenant) Commerce
	FanOut      int
	SettleDelay time.Duration
	Now         func() time.Time
}

// Run fans the engine out over every tenant with assignments.
func (e *Engine) Run(ctx context.Context, result *jobs.Result) error {
	tenants, err := e.Store.GetTenantsWithAssignments(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Replacement] processing %d tenants", len(tenants))
	return jobs.FanOut(ctx, tenants, e.FanOut, result, func(ctx context.Context, tenant *domain.Tenant) error {
		return e.processTenant(ctx, tenant, result)
	})
}

func (e *Engine) processTenant(ctx context.Context, tenant *domain.Tenant, result *jobs.Result) error {
	rules, err := e.Store.GetTenantRules(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if rules == nil {
		return joberr.Newf(joberr.Validation, "replacement.processTenant", "tenant %s has no lifecycle rules", tenant.Name)
	}

	assignments, err := e.Store.GetAssignments(ctx, tenant.ID)
	if err != nil {
		return err
	}
	commerce := e.Commerce(tenant)

	for _, collectionID := range store.CollectionIDsForTenant(assignments) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.processCollection(ctx, tenant, commerce, rules, collectionID); err != nil {
			log.Printf("[Replacement] %s: collection %s failed: %v", tenant.Name, collectionID, err)
			result.AddError("%s: collection %s: %v", tenant.Name, collectionID, err)
		}
	}
	return nil
}

// swapPair records one executed swap: the incoming candidate and the
// position the outgoing product held before the swap.
type swapPair struct {
	incomingID int64
	position   int
}

func (e *Engine) processCollection(ctx context.Context, tenant *domain.Tenant, commerce Commerce, rules *domain.TenantRules, collectionID string) error {
	collection, err := commerce.GetSmartCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	collectionTag, ok := collection.CollectionTag()
	if !ok {
		return joberr.Newf(joberr.Validation, "replacement.processCollection",
			"collection %s is not tag-based", collectionID)
	}

	// Snapshot current membership and positions before any mutation.
	products, err := commerce.GetCollectionProducts(ctx, collectionID)
	if err != nil {
		return err
	}
	position := make(map[string]int, len(products))
	inCollection := make(map[int64]bool, len(products))
	productByID := make(map[string]*shopify.Product, len(products))
	for i := range products {
		p := &products[i]
		position[p.IDString()] = i
		inCollection[p.ID] = true
		productByID[p.IDString()] = p
	}

	salesRows, err := e.Store.GetProductSalesForCollection(ctx, tenant.ID, collectionID)
	if err != nil {
		return err
	}

	now := e.Now()
	var toReplace []*domain.ProductSales
	var losers []*domain.ProductSales
	for _, row := range salesRows {
		if _, present := position[row.ProductID]; !present {
			// Fell out of the collection since the last tracker run.
			continue
		}
		d := Evaluate(rules, row, now)
		if d.Action != ActionReplace {
			continue
		}
		toReplace = append(toReplace, row)
		if d.Loser {
			losers = append(losers, row)
		}
	}
	if len(toReplace) == 0 {
		return nil
	}

	candidates, err := e.fetchCandidates(ctx, commerce, rules, inCollection)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Printf("[Replacement] %s: collection %s needs %d replacements but queue %q is empty",
			tenant.Name, collectionID, len(toReplace), rules.EffectiveQueueTag())
		return nil
	}

	loserSet := make(map[string]bool, len(losers))
	for _, l := range losers {
		loserSet[l.ProductID] = true
	}

	// Phase 1: tag swap.
	pairs, err := e.swapPhase(ctx, tenant, commerce, rules, collectionID, collectionTag, toReplace, candidates, position, productByID, loserSet, now)
	if err != nil {
		return err
	}
	if len(pairs) == 0 || !collection.IsManualSort() {
		return nil
	}

	// Phase 2: wait out the smart-collection re-evaluation, then restore
	// positions with one reorder.
	if rules.TestMode {
		log.Printf("[Replacement] %s: test mode, skipping reorder of collection %s", tenant.Name, collectionID)
		return nil
	}
	select {
	case <-time.After(e.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	settled, err := commerce.GetCollectionProducts(ctx, collectionID)
	if err != nil {
		return err
	}
	moves := ComputeMoves(settled, pairs)
	if len(moves) == 0 {
		return nil
	}
	jobID, err := commerce.ReorderCollection(ctx, collectionID, moves)
	if err != nil {
		return err
	}
	log.Printf("[Replacement] %s: reordered %d products in collection %s (job %s)",
		tenant.Name, len(moves), collectionID, jobID)
	return nil
}

// fetchCandidates returns queue-tagged products not already in the
// collection, in queue order.
func (e *Engine) fetchCandidates(ctx context.Context, commerce Commerce, rules *domain.TenantRules, inCollection map[int64]bool) ([]shopify.Product, error) {
	queueTag := rules.EffectiveQueueTag()
	tagged, err := commerce.GetProductsByTag(ctx, queueTag, 250)
	if err != nil {
		return nil, err
	}
	candidates := tagged[:0]
	for _, p := range tagged {
		if !inCollection[p.ID] {
			candidates = append(candidates, p)
		}
	}
	return candidates, nil
}

// swapPhase executes the tag swaps, pairing each outgoing product with
// the next queue candidate. Per-product failures stop consuming that
// candidate but do not abort the collection.
func (e *Engine) swapPhase(ctx context.Context, tenant *domain.Tenant, commerce Commerce, rules *domain.TenantRules,
	collectionID, collectionTag string, toReplace []*domain.ProductSales, candidates []shopify.Product,
	position map[string]int, productByID map[string]*shopify.Product, loserSet map[string]bool, now time.Time) ([]swapPair, error) {

	var pairs []swapPair
	next := 0
	for _, outgoing := range toReplace {
		if next >= len(candidates) {
			log.Printf("[Replacement] %s: queue exhausted, %d products left unreplaced in %s",
				tenant.Name, len(toReplace)-len(pairs), collectionID)
			break
		}
		if ctx.Err() != nil {
			return pairs, ctx.Err()
		}
		candidate := candidates[next]

		if rules.TestMode {
			log.Printf("[Replacement] %s: TEST MODE would replace %s (%s) with %s in collection %s",
				tenant.Name, outgoing.ProductTitle, outgoing.ProductID, candidate.Title, collectionID)
			next++
			pairs = append(pairs, swapPair{incomingID: candidate.ID, position: position[outgoing.ProductID]})
			continue
		}

		if err := e.executeSwap(ctx, commerce, rules, collectionTag, productByID[outgoing.ProductID], &candidate, loserSet[outgoing.ProductID], now); err != nil {
			log.Printf("[Replacement] %s: swap of %s failed: %v", tenant.Name, outgoing.ProductID, err)
			continue
		}
		if err := e.Store.DeleteProductSalesRow(ctx, tenant.ID, collectionID, outgoing.ProductID); err != nil {
			log.Printf("[Replacement] %s: failed to drop sales row for %s: %v", tenant.Name, outgoing.ProductID, err)
		}

		log.Printf("[Replacement] %s: replaced %s with %s in collection %s (loser=%v)",
			tenant.Name, outgoing.ProductID, candidate.IDString(), collectionID, loserSet[outgoing.ProductID])
		pairs = append(pairs, swapPair{incomingID: candidate.ID, position: position[outgoing.ProductID]})
		next++
	}
	return pairs, nil
}

// executeSwap performs the tag writes for one swap, and zeroes the
// outgoing product's inventory when it is a loser.
func (e *Engine) executeSwap(ctx context.Context, commerce Commerce, rules *domain.TenantRules,
	collectionTag string, outgoing, candidate *shopify.Product, loser bool, now time.Time) error {

	// Incoming: drop the queue tag, add the collection tag.
	newTags := replaceTag(candidate.TagList(), rules.EffectiveQueueTag(), collectionTag)
	if err := commerce.SetProductTags(ctx, candidate.ID, newTags); err != nil {
		return err
	}

	// Outgoing: drop the collection tag, add the dated archive tag.
	outTags := replaceTag(outgoing.TagList(), collectionTag, ArchiveTag(now))
	if err := commerce.SetProductTags(ctx, outgoing.ID, outTags); err != nil {
		return err
	}

	if loser {
		if err := commerce.ZeroInventory(ctx, outgoing.ID); err != nil {
			return err
		}
	}
	return nil
}

// ComputeMoves pairs each incoming candidate with the original position
// of the product it replaced and returns the minimal move list: products
// already in place move nowhere.
func ComputeMoves(settled []shopify.Product, pairs []swapPair) []shopify.Move {
	index := make(map[int64]int, len(settled))
	for i, p := range settled {
		index[p.ID] = i
	}

	var moves []shopify.Move
	for _, pair := range pairs {
		current, present := index[pair.incomingID]
		if !present || current == pair.position {
			continue
		}
		moves = append(moves, shopify.Move{ProductID: pair.incomingID, NewPosition: pair.position})
	}
	return moves
}

// replaceTag returns tags with remove dropped and add appended, without
// duplicating an existing tag.
func replaceTag(tags []string, remove, add string) []string {
	out := make([]string, 0, len(tags)+1)
	hasAdd := false
	for _, t := range tags {
		if t == remove {
			continue
		}
		if t == add {
			hasAdd = true
		}
		out = append(out, t)
	}
	if !hasAdd {
		out = append(out, add)
	}
	return out
}
