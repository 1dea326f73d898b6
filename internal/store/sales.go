package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/podpilot/internal/domain"
)

// EnsureProductSales inserts the aggregate row for a newly observed
// product, anchoring date_added_to_collection to now. If the row already
// exists the stored anchor is kept. Returns the current row either way.
func (s *Store) EnsureProductSales(ctx context.Context, tenantID uuid.UUID, collectionID, productID, title string, now time.Time) (*domain.ProductSales, error) {
	query := `INSERT INTO product_sales (id, tenant_id, collection_id, product_id, product_title,
		date_added_to_collection, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (tenant_id, collection_id, product_id)
		DO UPDATE SET product_title = EXCLUDED.product_title
		RETURNING id, tenant_id, collection_id, product_id, product_title,
			date_added_to_collection, last_update,
			first_7_days, last_3_days, last_7_days, last_10_days, last_14_days,
			total_sales, total_quantity`

	p := &domain.ProductSales{}
	err := s.db.QueryRowContext(ctx, query, uuid.New(), tenantID, collectionID, productID, title, now.UTC()).Scan(
		&p.ID, &p.TenantID, &p.CollectionID, &p.ProductID, &p.ProductTitle,
		&p.DateAddedToCollection, &p.LastUpdate,
		&p.First7Days, &p.Last3Days, &p.Last7Days, &p.Last10Days, &p.Last14Days,
		&p.TotalSales, &p.TotalQuantity)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProductSales persists freshly computed counters. last_update is
// monotonic: the row is only written when the new timestamp is later.
func (s *Store) UpdateProductSales(ctx context.Context, p *domain.ProductSales) error {
	query := `UPDATE product_sales SET
		product_title = $4, first_7_days = $5, last_3_days = $6, last_7_days = $7,
		last_10_days = $8, last_14_days = $9, total_sales = $10, total_quantity = $11,
		last_update = $12
		WHERE tenant_id = $1 AND collection_id = $2 AND product_id = $3
		AND last_update <= $12`

	_, err := s.db.ExecContext(ctx, query,
		p.TenantID, p.CollectionID, p.ProductID,
		p.ProductTitle, p.First7Days, p.Last3Days, p.Last7Days,
		p.Last10Days, p.Last14Days, p.TotalSales, p.TotalQuantity,
		touchTime(p.LastUpdate))
	return err
}

// GetProductSales retrieves one aggregate row, or nil when the product has
// not been observed in the collection yet.
func (s *Store) GetProductSales(ctx context.Context, tenantID uuid.UUID, collectionID, productID string) (*domain.ProductSales, error) {
	query := `SELECT id, tenant_id, collection_id, product_id, product_title,
		date_added_to_collection, last_update,
		first_7_days, last_3_days, last_7_days, last_10_days, last_14_days,
		total_sales, total_quantity
		FROM product_sales
		WHERE tenant_id = $1 AND collection_id = $2 AND product_id = $3`

	p := &domain.ProductSales{}
	err := s.db.QueryRowContext(ctx, query, tenantID, collectionID, productID).Scan(
		&p.ID, &p.TenantID, &p.CollectionID, &p.ProductID, &p.ProductTitle,
		&p.DateAddedToCollection, &p.LastUpdate,
		&p.First7Days, &p.Last3Days, &p.Last7Days, &p.Last10Days, &p.Last14Days,
		&p.TotalSales, &p.TotalQuantity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// GetProductSalesForCollection returns every aggregate row in a collection.
func (s *Store) GetProductSalesForCollection(ctx context.Context, tenantID uuid.UUID, collectionID string) ([]*domain.ProductSales, error) {
	query := `SELECT id, tenant_id, collection_id, product_id, product_title,
		date_added_to_collection, last_update,
		first_7_days, last_3_days, last_7_days, last_10_days, last_14_days,
		total_sales, total_quantity
		FROM product_sales
		WHERE tenant_id = $1 AND collection_id = $2
		ORDER BY date_added_to_collection`

	rows, err := s.db.QueryContext(ctx, query, tenantID, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.ProductSales
	for rows.Next() {
		p := &domain.ProductSales{}
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.CollectionID, &p.ProductID, &p.ProductTitle,
			&p.DateAddedToCollection, &p.LastUpdate,
			&p.First7Days, &p.Last3Days, &p.Last7Days, &p.Last10Days, &p.Last14Days,
			&p.TotalSales, &p.TotalQuantity); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetRecentSellers returns aggregates with any sales in the last 14 days,
// the winner-scaler candidate pool.
func (s *Store) GetRecentSellers(ctx context.Context, tenantID uuid.UUID) ([]*domain.ProductSales, error) {
	query := `SELECT id, tenant_id, collection_id, product_id, product_title,
		date_added_to_collection, last_update,
		first_7_days, last_3_days, last_7_days, last_10_days, last_14_days,
		total_sales, total_quantity
		FROM product_sales
		WHERE tenant_id = $1 AND last_14_days > 0
		ORDER BY last_14_days DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.ProductSales
	for rows.Next() {
		p := &domain.ProductSales{}
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.CollectionID, &p.ProductID, &p.ProductTitle,
			&p.DateAddedToCollection, &p.LastUpdate,
			&p.First7Days, &p.Last3Days, &p.Last7Days, &p.Last10Days, &p.Last14Days,
			&p.TotalSales, &p.TotalQuantity); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeleteProductSalesForCollections removes aggregates for the given
// collections, part of the campaign-pause cleanup.
func (s *Store) DeleteProductSalesForCollections(ctx context.Context, tenantID uuid.UUID, collectionIDs []string) (int64, error) {
	if len(collectionIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM product_sales WHERE tenant_id = $1 AND collection_id = ANY($2)`,
		tenantID, pq.Array(collectionIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteProductSalesRow removes one aggregate after its product is swapped
// out of the collection.
func (s *Store) DeleteProductSalesRow(ctx context.Context, tenantID uuid.UUID, collectionID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM product_sales WHERE tenant_id = $1 AND collection_id = $2 AND product_id = $3`,
		tenantID, collectionID, productID)
	return err
}
