// Package extractor turns a terminal listing page into a typed product
// record.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/models"
	"github.com/maltedev/catalog-sync/internal/textgen"
)

// Fixed document locations on the catalog site.
const (
	detailLinkSelector  = "a.product-detail"
	variantSizeSelector = "span.variant-size"
	titleSelector       = "h1.product-title"
	gallerySelector     = "div.product-gallery img[src]"
	priceSelector       = "span.product-price"
	eanSelector         = "span.product-ean"
)

// ExtractError marks a product that could not be extracted. Non-fatal:
// callers log it and skip the product.
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

type Extractor struct {
	fetcher    fetcher.Fetcher
	generator  textgen.Generator
	brandLabel string
	logger     *slog.Logger
}

// New builds an Extractor. brandLabel is passed to the text generator; it is
// configured per run rather than fixed to one brand.
func New(f fetcher.Fetcher, g textgen.Generator, brandLabel string) *Extractor {
	return &Extractor{
		fetcher:    f,
		generator:  g,
		brandLabel: brandLabel,
		logger:     slog.Default().With("component", "extractor"),
	}
}

// Extract fetches the terminal page, resolves its canonical detail page and
// assembles the product record. Sizes come from the terminal page, the other
// typed fields from the detail page; description text is generated and
// degrades to empty on any generation or parse failure.
func (e *Extractor) Extract(ctx context.Context, terminalURL string) (*models.ProductRecord, error) {
	terminalDoc, err := e.fetcher.Fetch(ctx, terminalURL)
	if err != nil {
		return nil, &ExtractError{URL: terminalURL, Err: fmt.Errorf("failed to fetch terminal page: %w", err)}
	}

	detailURL, ok := e.resolveDetailLink(terminalDoc, terminalURL)
	if !ok {
		return nil, &ExtractError{URL: terminalURL, Err: fmt.Errorf("no detail link on terminal page")}
	}

	detailDoc, err := e.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return nil, &ExtractError{URL: terminalURL, Err: fmt.Errorf("failed to fetch detail page: %w", err)}
	}

	record := &models.ProductRecord{
		SourceCategoryURL: terminalURL,
		SourceProductURL:  detailURL,
		Name:              models.StripListingCode(detailDoc.Find(titleSelector).First().Text()),
		Images:            e.extractImages(detailDoc, detailURL),
		Price:             firstTextNode(detailDoc.Find(priceSelector).First()),
		EAN:               e.extractEAN(detailDoc),
		Sizes:             e.extractSizes(terminalDoc),
	}

	record.ShortDescription, record.LongDescription = e.generateDescriptions(ctx, record.Name)
	return record, nil
}

func (e *Extractor) resolveDetailLink(doc *goquery.Document, terminalURL string) (string, bool) {
	href, ok := doc.Find(detailLinkSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}

	base, err := url.Parse(terminalURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func (e *Extractor) extractImages(doc *goquery.Document, detailURL string) []string {
	base, _ := url.Parse(detailURL)

	images := make([]string, 0, 4)
	doc.Find(gallerySelector).Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		images = append(images, src)
	})
	return images
}

func (e *Extractor) extractEAN(doc *goquery.Document) string {
	ean := strings.TrimSpace(doc.Find(eanSelector).First().Text())
	if ean == "" {
		return models.EANNotFound
	}
	return ean
}

func (e *Extractor) extractSizes(doc *goquery.Document) []string {
	var raw []string
	doc.Find(variantSizeSelector).Each(func(_ int, sel *goquery.Selection) {
		raw = append(raw, sel.Text())
	})
	return models.NormalizeSizes(raw)
}

func (e *Extractor) generateDescriptions(ctx context.Context, name string) (string, string) {
	text, err := e.generator.Generate(ctx, name, e.brandLabel)
	if err != nil {
		e.logger.Warn("description generation failed", "product", name, "error", err)
		return "", ""
	}

	desc, ok := textgen.ParseDescription(text)
	if !ok {
		e.logger.Warn("description reply malformed", "product", name)
		return "", ""
	}
	return desc.Short, desc.Long
}

// firstTextNode returns the first non-blank direct text child of sel. The
// price element nests currency decoration in child elements; descendant text
// must not leak into the price string.
func firstTextNode(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	for n := sel.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.TextNode {
			continue
		}
		if text := strings.TrimSpace(n.Data); text != "" {
			return text
		}
	}
	return ""
}
