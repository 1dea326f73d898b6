package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// GetShop returns the shop metadata, including the IANA timezone the
// sales tracker buckets against.
func (c *Client) GetShop(ctx context.Context) (*Shop, error) {
	body, _, err := c.doREST(ctx, http.MethodGet, "/shop.json", nil)
	if err != nil {
		return nil, err
	}
	var resp shopResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp.Shop, nil
}

// GetCollectionProducts lists a collection's products preserving the
// collection's sort order, following page_info cursors to the end.
func (c *Client) GetCollectionProducts(ctx context.Context, collectionID string) ([]Product, error) {
	path := fmt.Sprintf("/collections/%s/products.json?limit=250", collectionID)
	body, link, err := c.doREST(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var all []Product
	for {
		var resp productsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		all = append(all, resp.Products...)

		next := nextPageURL(link)
		if next == "" {
			return all, nil
		}
		body, link, err = c.doRESTURL(ctx, next)
		if err != nil {
			return nil, err
		}
	}
}

// GetSmartCollection reads a smart collection including its rule set and
// sort order.
func (c *Client) GetSmartCollection(ctx context.Context, collectionID string) (*SmartCollection, error) {
	path := fmt.Sprintf("/smart_collections/%s.json", collectionID)
	body, _, err := c.doREST(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp smartCollectionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp.SmartCollection, nil
}

// GetProduct reads one product.
func (c *Client) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	path := fmt.Sprintf("/products/%d.json", productID)
	body, _, err := c.doREST(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp.Product, nil
}

// SetProductTags replaces a product's tags. The platform stores tags as
// one comma-separated string; callers compute the full new set.
func (c *Client) SetProductTags(ctx context.Context, productID int64, tags []string) error {
	path := fmt.Sprintf("/products/%d.json", productID)
	payload := map[string]interface{}{
		"product": map[string]interface{}{
			"id":   productID,
			"tags": strings.Join(tags, ", "),
		},
	}
	_, _, err := c.doREST(ctx, http.MethodPut, path, payload)
	return err
}

// GetProductsByTag returns active products carrying the given tag. The
// REST API cannot filter products by tag, so this goes through GraphQL.
func (c *Client) GetProductsByTag(ctx context.Context, tag string, limit int) ([]Product, error) {
	if limit <= 0 || limit > 250 {
		limit = 100
	}
	const query = `
		query productsByTag($query: String!, $first: Int!) {
			products(first: $first, query: $query) {
				nodes {
					legacyResourceId
					title
					handle
					tags
					status
					featuredImage { url }
				}
			}
		}`

	var data struct {
		Products struct {
			Nodes []struct {
				LegacyResourceID string   `json:"legacyResourceId"`
				Title            string   `json:"title"`
				Handle           string   `json:"handle"`
				Tags             []string `json:"tags"`
				Status           string   `json:"status"`
				FeaturedImage    *struct {
					URL string `json:"url"`
				} `json:"featuredImage"`
			} `json:"nodes"`
		} `json:"products"`
	}
	vars := map[string]interface{}{
		"query": fmt.Sprintf("tag:'%s' AND status:active", tag),
		"first": limit,
	}
	if err := c.doGraphQL(ctx, query, vars, &data); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(data.Products.Nodes))
	for _, n := range data.Products.Nodes {
		id, err := strconv.ParseInt(n.LegacyResourceID, 10, 64)
		if err != nil {
			continue
		}
		p := Product{
			ID:     id,
			Title:  n.Title,
			Handle: n.Handle,
			Tags:   strings.Join(n.Tags, ", "),
			Status: strings.ToLower(n.Status),
		}
		if n.FeaturedImage != nil {
			p.Image = &Image{Src: n.FeaturedImage.URL}
		}
		products = append(products, p)
	}
	return products, nil
}
