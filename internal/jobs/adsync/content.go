package adsync

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ignite/podpilot/internal/shopify"
)

// Pin content limits enforced by the ad platform.
const (
	maxTitleLen       = 100
	maxDescriptionLen = 500
)

// productsPerPage matches the storefront's collection pagination, so a
// pin can deep-link to the page its product appears on.
const productsPerPage = 24

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTML reduces a product body to plain text: tags removed, entities
// unescaped, whitespace collapsed.
func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// pinTitle returns the pin title for a product.
func pinTitle(title string) string {
	return truncate(title, maxTitleLen)
}

// pinDescription returns the plaintext pin description for a product.
func pinDescription(bodyHTML string) string {
	return truncate(stripHTML(bodyHTML), maxDescriptionLen)
}

// pinLink returns the destination URL for a product's pin: the collection
// page containing the product when the collection handle is known,
// otherwise the product page.
func pinLink(shopDomain, collectionHandle, productHandle string, productIndex int) string {
	if collectionHandle == "" {
		return fmt.Sprintf("https://%s/products/%s", shopDomain, productHandle)
	}
	page := productIndex/productsPerPage + 1
	if page == 1 {
		return fmt.Sprintf("https://%s/collections/%s", shopDomain, collectionHandle)
	}
	return fmt.Sprintf("https://%s/collections/%s?page=%d", shopDomain, collectionHandle, page)
}

// batchSlice returns the batchIndex-th batchSize-sized slice of products,
// clamped to the list's end. An out-of-range index yields an empty slice.
func batchSlice(products []shopify.Product, batchIndex, batchSize int) []shopify.Product {
	start := batchIndex * batchSize
	if start < 0 || start >= len(products) {
		return nil
	}
	end := start + batchSize
	if end > len(products) {
		end = len(products)
	}
	return products[start:end]
}
