package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// lineKey is the dedup key for an order line across fetch sources.
type lineKey struct {
	orderID    int64
	lineItemID int64
}

// OrderLinesForProduct returns every sold line of the product since the
// anchor time. Three sources are merged by set union on
// (order_id, line_item_id): a direct REST search page, a full paginated
// REST scan, and a GraphQL date query. The union makes the result robust
// to any single source lagging or truncating.
func (c *Client) OrderLinesForProduct(ctx context.Context, productID int64, since time.Time) ([]OrderLine, error) {
	seen := make(map[lineKey]OrderLine)

	direct, err := c.searchOrders(ctx, since)
	if err != nil {
		return nil, err
	}
	mergeOrderLines(seen, direct, productID)

	scanned, err := c.scanOrders(ctx, since)
	if err != nil {
		return nil, err
	}
	mergeOrderLines(seen, scanned, productID)

	gql, err := c.queryOrderLinesGraphQL(ctx, productID, since)
	if err != nil {
		return nil, err
	}
	for _, l := range gql {
		seen[lineKey{l.OrderID, l.LineItemID}] = l
	}

	lines := make([]OrderLine, 0, len(seen))
	for _, l := range seen {
		lines = append(lines, l)
	}
	return lines, nil
}

func mergeOrderLines(seen map[lineKey]OrderLine, orders []restOrder, productID int64) {
	for _, o := range orders {
		for _, li := range o.LineItems {
			if li.ProductID != productID {
				continue
			}
			k := lineKey{o.ID, li.ID}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = OrderLine{
				OrderID:    o.ID,
				LineItemID: li.ID,
				ProductID:  li.ProductID,
				Quantity:   li.Quantity,
				CreatedAt:  o.CreatedAt,
			}
		}
	}
}

// searchOrders is the direct single-page search: the newest 250 orders
// since the anchor. Cheap, and sufficient for most products.
func (c *Client) searchOrders(ctx context.Context, since time.Time) ([]restOrder, error) {
	params := url.Values{}
	params.Set("status", "any")
	params.Set("created_at_min", since.UTC().Format(time.RFC3339))
	params.Set("limit", "250")
	params.Set("fields", "id,created_at,line_items")

	body, _, err := c.doREST(ctx, http.MethodGet, "/orders.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp ordersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Orders, nil
}

// scanOrders walks every order page since the anchor via page_info
// cursors. Bounded by maxOrderPages to protect the run budget.
const maxOrderPages = 40

func (c *Client) scanOrders(ctx context.Context, since time.Time) ([]restOrder, error) {
	params := url.Values{}
	params.Set("status", "any")
	params.Set("created_at_min", since.UTC().Format(time.RFC3339))
	params.Set("limit", "250")
	params.Set("fields", "id,created_at,line_items")

	body, link, err := c.doREST(ctx, http.MethodGet, "/orders.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var all []restOrder
	for page := 0; page < maxOrderPages; page++ {
		var resp ordersResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		all = append(all, resp.Orders...)

		next := nextPageURL(link)
		if next == "" {
			break
		}
		body, link, err = c.doRESTURL(ctx, next)
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

// queryOrderLinesGraphQL fetches order lines through the GraphQL orders
// query, filtering lines to the product client-side.
func (c *Client) queryOrderLinesGraphQL(ctx context.Context, productID int64, since time.Time) ([]OrderLine, error) {
	const query = `
		query ordersSince($query: String!, $after: String) {
			orders(first: 100, query: $query, after: $after) {
				pageInfo { hasNextPage endCursor }
				nodes {
					legacyResourceId
					createdAt
					lineItems(first: 50) {
						nodes {
							id
							quantity
							product { legacyResourceId }
						}
					}
				}
			}
		}`

	search := fmt.Sprintf("created_at:>='%s'", since.UTC().Format(time.RFC3339))
	var lines []OrderLine
	var after *string

	for page := 0; page < maxOrderPages; page++ {
		var data struct {
			Orders struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []struct {
					LegacyResourceID string    `json:"legacyResourceId"`
					CreatedAt        time.Time `json:"createdAt"`
					LineItems        struct {
						Nodes []struct {
							ID       string `json:"id"`
							Quantity int    `json:"quantity"`
							Product  *struct {
								LegacyResourceID string `json:"legacyResourceId"`
							} `json:"product"`
						} `json:"nodes"`
					} `json:"lineItems"`
				} `json:"nodes"`
			} `json:"orders"`
		}

		vars := map[string]interface{}{"query": search}
		if after != nil {
			vars["after"] = *after
		}
		if err := c.doGraphQL(ctx, query, vars, &data); err != nil {
			return nil, err
		}

		for _, o := range data.Orders.Nodes {
			orderID, err := strconv.ParseInt(o.LegacyResourceID, 10, 64)
			if err != nil {
				continue
			}
			for _, li := range o.LineItems.Nodes {
				if li.Product == nil || li.Product.LegacyResourceID != strconv.FormatInt(productID, 10) {
					continue
				}
				lines = append(lines, OrderLine{
					OrderID:    orderID,
					LineItemID: gidNumericID(li.ID),
					ProductID:  productID,
					Quantity:   li.Quantity,
					CreatedAt:  o.CreatedAt,
				})
			}
		}

		if !data.Orders.PageInfo.HasNextPage {
			break
		}
		cursor := data.Orders.PageInfo.EndCursor
		after = &cursor
	}
	return lines, nil
}

// gidNumericID extracts the trailing numeric id from a GraphQL gid.
func gidNumericID(gid string) int64 {
	idx := strings.LastIndex(gid, "/")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.ParseInt(gid[idx+1:], 10, 64)
	return n
}
