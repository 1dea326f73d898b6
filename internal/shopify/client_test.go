package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient("test.myshopify.com", "shpat_test_token", "2024-07", nil)
	c.SetBaseURL(srv.URL)
	return c, srv
}

func TestGetShop(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/2024-07/shop.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "shpat_test_token" {
			t.Errorf("access token header = %q", got)
		}
		fmt.Fprint(w, `{"shop":{"id":1,"name":"Test","iana_timezone":"America/New_York","currency":"USD"}}`)
	}))
	defer srv.Close()

	shop, err := c.GetShop(context.Background())
	if err != nil {
		t.Fatalf("GetShop() error: %v", err)
	}
	if shop.IANATimezone != "America/New_York" {
		t.Errorf("IANATimezone = %q", shop.IANATimezone)
	}
}

func TestGetCollectionProducts_FollowsPagination(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-07/collections/42/products.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(`<%s/page2.json>; rel="next"`, srv.URL))
		fmt.Fprint(w, `{"products":[{"id":1,"title":"One"},{"id":2,"title":"Two"}]}`)
	})
	mux.HandleFunc("/page2.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"products":[{"id":3,"title":"Three"}]}`)
	})
	c, s := newTestClient(mux)
	srv = s
	defer srv.Close()

	products, err := c.GetCollectionProducts(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetCollectionProducts() error: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("got %d products, want 3", len(products))
	}
	// Order must be preserved across pages
	if products[0].ID != 1 || products[2].ID != 3 {
		t.Errorf("products out of order: %+v", products)
	}
}

func TestSetProductTags(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var payload struct {
			Product struct {
				ID   int64  `json:"id"`
				Tags string `json:"tags"`
			} `json:"product"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Product.Tags != "summer, replaced_24-08-2026" {
			t.Errorf("tags = %q", payload.Product.Tags)
		}
		fmt.Fprint(w, `{"product":{}}`)
	}))
	defer srv.Close()

	err := c.SetProductTags(context.Background(), 55, []string{"summer", "replaced_24-08-2026"})
	if err != nil {
		t.Fatalf("SetProductTags() error: %v", err)
	}
}

func TestOrderLinesForProduct_UnionDedup(t *testing.T) {
	// REST returns the same line twice (search + scan hit the same
	// endpoint); GraphQL contributes one extra line. The union must hold
	// exactly two lines.
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-07/orders.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orders":[
			{"id":100,"created_at":"2026-08-10T12:00:00Z","line_items":[
				{"id":9001,"product_id":55,"quantity":2},
				{"id":9002,"product_id":77,"quantity":1}
			]}
		]}`)
	})
	mux.HandleFunc("/admin/api/2024-07/graphql.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"orders":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[
				{"legacyResourceId":"100","createdAt":"2026-08-10T12:00:00Z","lineItems":{"nodes":[
					{"id":"gid://shopify/LineItem/9001","quantity":2,"product":{"legacyResourceId":"55"}}
				]}},
				{"legacyResourceId":"101","createdAt":"2026-08-12T09:00:00Z","lineItems":{"nodes":[
					{"id":"gid://shopify/LineItem/9010","quantity":1,"product":{"legacyResourceId":"55"}}
				]}}
			]}}}`)
	})
	c, srv := newTestClient(mux)
	defer srv.Close()

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lines, err := c.OrderLinesForProduct(context.Background(), 55, since)
	if err != nil {
		t.Fatalf("OrderLinesForProduct() error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 after dedup: %+v", len(lines), lines)
	}
	total := 0
	for _, l := range lines {
		if l.ProductID != 55 {
			t.Errorf("line for wrong product: %+v", l)
		}
		total += l.Quantity
	}
	if total != 3 {
		t.Errorf("total quantity = %d, want 3", total)
	}
}

func TestGetProductsByTag(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if q, _ := req.Variables["query"].(string); q != "tag:'QK' AND status:active" {
			t.Errorf("query = %q", q)
		}
		fmt.Fprint(w, `{"data":{"products":{"nodes":[
			{"legacyResourceId":"301","title":"Candidate","handle":"candidate","tags":["QK","summer"],"status":"ACTIVE"}
		]}}}`)
	}))
	defer srv.Close()

	products, err := c.GetProductsByTag(context.Background(), "QK", 50)
	if err != nil {
		t.Fatalf("GetProductsByTag() error: %v", err)
	}
	if len(products) != 1 || products[0].ID != 301 {
		t.Fatalf("products = %+v", products)
	}
	if !products[0].HasTag("QK") {
		t.Error("candidate should carry QK")
	}
}

func TestReorderCollection(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		moves, _ := req.Variables["moves"].([]interface{})
		if len(moves) != 1 {
			t.Errorf("moves = %v", req.Variables["moves"])
		}
		fmt.Fprint(w, `{"data":{"collectionReorderProducts":{"job":{"id":"gid://shopify/Job/abc"},"userErrors":[]}}}`)
	}))
	defer srv.Close()

	jobID, err := c.ReorderCollection(context.Background(), "42", []Move{{ProductID: 301, NewPosition: 1}})
	if err != nil {
		t.Fatalf("ReorderCollection() error: %v", err)
	}
	if jobID != "gid://shopify/Job/abc" {
		t.Errorf("jobID = %q", jobID)
	}
}

func TestSmartCollectionHelpers(t *testing.T) {
	col := &SmartCollection{
		SortOrder: "manual",
		Rules: []CollectionRule{
			{Column: "type", Relation: "equals", Condition: "mug"},
			{Column: "tag", Relation: "equals", Condition: "front-page"},
		},
	}
	tag, ok := col.CollectionTag()
	if !ok || tag != "front-page" {
		t.Errorf("CollectionTag() = %q, %v", tag, ok)
	}
	if !col.IsManualSort() {
		t.Error("IsManualSort() = false, want true")
	}
}
