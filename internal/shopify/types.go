package shopify

import (
	"strconv"
	"strings"
	"time"
)

// Shop is the subset of shop metadata the jobs need.
type Shop struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	IANATimezone string `json:"iana_timezone"`
	Currency     string `json:"currency"`
}

type shopResponse struct {
	Shop Shop `json:"shop"`
}

// Image is a product image.
type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}

// Product is the subset of product fields the jobs need. Tags arrive as a
// single comma-separated string on the REST API.
type Product struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Handle   string  `json:"handle"`
	BodyHTML string  `json:"body_html"`
	Tags     string  `json:"tags"`
	Status   string  `json:"status"`
	Images   []Image `json:"images"`
	Image    *Image  `json:"image"`
}

// IDString returns the product id in the string form the store uses.
func (p *Product) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

// TagList splits the comma-separated tag string into trimmed tags.
func (p *Product) TagList() []string {
	if p.Tags == "" {
		return nil
	}
	parts := strings.Split(p.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, t := range parts {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// HasTag reports whether the product carries the tag (case-sensitive,
// matching the platform's behavior).
func (p *Product) HasTag(tag string) bool {
	for _, t := range p.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// PrimaryImageURL returns the first image URL, or "".
func (p *Product) PrimaryImageURL() string {
	if p.Image != nil && p.Image.Src != "" {
		return p.Image.Src
	}
	if len(p.Images) > 0 {
		return p.Images[0].Src
	}
	return ""
}

type productsResponse struct {
	Products []Product `json:"products"`
}

type productResponse struct {
	Product Product `json:"product"`
}

// CollectionRule is one membership rule of a smart collection.
type CollectionRule struct {
	Column    string `json:"column"`
	Relation  string `json:"relation"`
	Condition string `json:"condition"`
}

// SmartCollection is a rule-driven collection. Membership of the
// tag-based ones is controlled by adding or removing the rule's tag.
type SmartCollection struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Handle    string           `json:"handle"`
	SortOrder string           `json:"sort_order"`
	Rules     []CollectionRule `json:"rules"`
}

// CollectionTag returns the tag controlling membership, if the collection
// is tag-based.
func (c *SmartCollection) CollectionTag() (string, bool) {
	for _, r := range c.Rules {
		if r.Column == "tag" && r.Relation == "equals" {
			return r.Condition, true
		}
	}
	return "", false
}

// IsManualSort reports whether the merchant sorts the collection by hand,
// which obliges the replacement engine to restore positions after a swap.
func (c *SmartCollection) IsManualSort() bool {
	return c.SortOrder == "manual"
}

type smartCollectionResponse struct {
	SmartCollection SmartCollection `json:"smart_collection"`
}

// restLineItem is a line item as the REST orders endpoint returns it.
type restLineItem struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type restOrder struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	LineItems []restLineItem `json:"line_items"`
}

type ordersResponse struct {
	Orders []restOrder `json:"orders"`
}

// OrderLine is one sold line item, the unit the sales tracker buckets.
// OrderID and LineItemID together form the dedup key.
type OrderLine struct {
	OrderID    int64
	LineItemID int64
	ProductID  int64
	Quantity   int
	CreatedAt  time.Time
}

// Move is one product reposition within a collection.
type Move struct {
	ProductID   int64
	NewPosition int
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []graphqlError         `json:"errors"`
}
