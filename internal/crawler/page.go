package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// terminalMarker identifies a page that hosts a purchasable product listing.
// Site-specific: category index pages never carry a product block.
const terminalMarker = "div.product-block"

// IsTerminal reports whether the document is a product listing page.
// Terminal and intermediate are not mutually exclusive: a terminal page is
// still scanned for outbound links.
func IsTerminal(doc *goquery.Document) bool {
	return doc.Find(terminalMarker).Length() > 0
}

// ExtractLinks returns the absolute, normalized outbound links of doc that
// fall inside the siteScope path prefix. Relative links are resolved against
// pageURL; fragments are dropped; non-http(s) schemes are skipped.
func ExtractLinks(doc *goquery.Document, pageURL, siteScope string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, ok := normalizeLink(base, href)
		if !ok {
			return
		}
		if !strings.HasPrefix(link, siteScope) {
			return
		}
		links = append(links, link)
	})
	return links
}

func normalizeLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}
