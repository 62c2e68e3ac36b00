package models

import (
	"regexp"
	"sort"
	"strings"
)

// ProductRecord is the structured result of extracting one terminal page.
// Records are persisted between pipeline stages as ordered-array JSON,
// one file per brand.
type ProductRecord struct {
	SourceCategoryURL string   `json:"source_category_url"`
	SourceProductURL  string   `json:"source_product_url"`
	Name              string   `json:"name"`
	Images            []string `json:"images"`
	Price             string   `json:"price"`
	EAN               string   `json:"ean"`
	Sizes             []string `json:"sizes"`
	ShortDescription  string   `json:"short_description"`
	LongDescription   string   `json:"long_description"`
}

// EANNotFound is stored when the detail page carries no EAN element.
const EANNotFound = "not found"

// ReconciliationEntry joins a source product URL with the identifiers the
// destination assigned on creation. Created exactly once per synced product.
type ReconciliationEntry struct {
	SourceProductURL string `json:"source_product_url"`
	InternalID       string `json:"internal_id"`
	ExternalID       string `json:"external_id"`
}

// RunSummary holds the end-of-run counts printed at the process boundary.
type RunSummary struct {
	PagesFound         int `json:"pages_found"`
	ProductsExtracted  int `json:"products_extracted"`
	ProductsCreated    int `json:"products_created"`
	ProductsFailed     int `json:"products_failed"`
	LinksEstablished   int `json:"links_established"`
	LinksFailed        int `json:"links_failed"`
	ReconciliationGaps int `json:"reconciliation_gaps"`
}

var listingCodeSuffix = regexp.MustCompile(`\s+\d+$`)

// StripListingCode removes the trailing numeric listing code the catalog
// appends to product names ("Pilot Jacket 1234" -> "Pilot Jacket").
func StripListingCode(name string) string {
	return listingCodeSuffix.ReplaceAllString(strings.TrimSpace(name), "")
}

// NormalizeSizes reduces raw variant tokens to size values: the segment after
// the last dash is kept ("BLK-M" -> "M"), then the set is deduplicated and
// sorted so records diff stably across runs.
func NormalizeSizes(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	sizes := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if idx := strings.LastIndex(token, "-"); idx >= 0 {
			token = token[idx+1:]
		}
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		sizes = append(sizes, token)
	}
	sort.Strings(sizes)
	return sizes
}

// SubcategoryKey derives the grouping key used to scope related-product
// linking: the site-and-brand prefix is stripped from the category URL and
// the trailing path segment dropped. Products are related only to products
// sharing a key.
func SubcategoryKey(categoryURL, siteScope string) string {
	key := strings.TrimPrefix(categoryURL, siteScope)
	key = strings.Trim(key, "/")
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		key = key[:idx]
	}
	return key
}
