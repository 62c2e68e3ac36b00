package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/models"
	"github.com/maltedev/catalog-sync/internal/textgen"
)

const (
	terminalURL = "https://www.jopa.nl/en/jopa/helmets/cross/alpha"
	detailURL   = "https://www.jopa.nl/en/jopa/helmets/cross/alpha/detail"
)

const terminalHTML = `<html><body>
	<div class="product-block">
		<a class="product-detail" href="/en/jopa/helmets/cross/alpha/detail">Pilot Jacket</a>
		<div class="variant"><a href="#v1">v1</a><span class="variant-size">BLK-M</span></div>
		<div class="variant"><a href="#v2">v2</a><span class="variant-size">BLK-L</span></div>
		<div class="variant"><a href="#v3">v3</a><span class="variant-size">BLK-M</span></div>
	</div>
</body></html>`

const detailHTML = `<html><body>
	<h1 class="product-title">Pilot Jacket 1234</h1>
	<div class="product-gallery">
		<img src="/img/alpha-front.jpg">
		<img src="https://cdn.jopa.nl/img/alpha-back.jpg">
	</div>
	<span class="product-price">89,95<sup class="currency">EUR</sup></span>
	<span class="product-ean">8712345678901</span>
</body></html>`

type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*goquery.Document, error) {
	html, ok := s.pages[url]
	if !ok {
		return nil, &fetcher.FetchError{URL: url, StatusCode: 404}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *stubFetcher) FetchBytes(_ context.Context, url string) ([]byte, error) {
	return nil, &fetcher.FetchError{URL: url, StatusCode: 404}
}

type stubGenerator struct {
	reply string
	err   error
	calls []string
}

func (s *stubGenerator) Generate(_ context.Context, name, brand string) (string, error) {
	s.calls = append(s.calls, name+"|"+brand)
	return s.reply, s.err
}

func fixtureFetcher() *stubFetcher {
	return &stubFetcher{pages: map[string]string{
		terminalURL: terminalHTML,
		detailURL:   detailHTML,
	}}
}

func TestExtractAssemblesRecord(t *testing.T) {
	gen := &stubGenerator{reply: "1. Short: Great jacket.\n2. Long: Details.\n- Point A."}
	e := New(fixtureFetcher(), gen, "Jopa")

	record, err := e.Extract(context.Background(), terminalURL)
	require.NoError(t, err)

	assert.Equal(t, terminalURL, record.SourceCategoryURL)
	assert.Equal(t, detailURL, record.SourceProductURL)
	assert.Equal(t, "Pilot Jacket", record.Name)
	assert.Equal(t, []string{
		"https://www.jopa.nl/img/alpha-front.jpg",
		"https://cdn.jopa.nl/img/alpha-back.jpg",
	}, record.Images)
	assert.Equal(t, "89,95", record.Price)
	assert.Equal(t, "8712345678901", record.EAN)
	assert.Equal(t, []string{"L", "M"}, record.Sizes)
	assert.Equal(t, "Great jacket.", record.ShortDescription)
	assert.Contains(t, record.LongDescription, "Details.\n- Point A.")
}

func TestExtractPassesBrandLabelToGenerator(t *testing.T) {
	gen := &stubGenerator{reply: "1. Short: S.\n2. Long: L."}
	e := New(fixtureFetcher(), gen, "Custom Brand")

	_, err := e.Extract(context.Background(), terminalURL)
	require.NoError(t, err)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "Pilot Jacket|Custom Brand", gen.calls[0])
}

func TestExtractPriceExcludesCurrencyDecoration(t *testing.T) {
	gen := &stubGenerator{reply: "1. Short: S.\n2. Long: L."}
	e := New(fixtureFetcher(), gen, "Jopa")

	record, err := e.Extract(context.Background(), terminalURL)
	require.NoError(t, err)
	assert.Equal(t, "89,95", record.Price)
	assert.NotContains(t, record.Price, "EUR")
}

func TestExtractMissingEANUsesSentinel(t *testing.T) {
	f := fixtureFetcher()
	f.pages[detailURL] = strings.Replace(detailHTML,
		`<span class="product-ean">8712345678901</span>`, "", 1)

	gen := &stubGenerator{reply: "1. Short: S.\n2. Long: L."}
	e := New(f, gen, "Jopa")

	record, err := e.Extract(context.Background(), terminalURL)
	require.NoError(t, err)
	assert.Equal(t, models.EANNotFound, record.EAN)
}

func TestExtractDegradesOnGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: textgen.ErrGenerationExhausted}
	e := New(fixtureFetcher(), gen, "Jopa")

	record, err := e.Extract(context.Background(), terminalURL)
	require.NoError(t, err)
	assert.Empty(t, record.ShortDescription)
	assert.Empty(t, record.LongDescription)
}

func TestExtractDegradesOnMalformedReply(t *testing.T) {
	gen := &stubGenerator{reply: "1. Short: Great jacket."}
	e := New(fixtureFetcher(), gen, "Jopa")

	record, err := e.Extract(context.Background(), terminalURL)
	require.NoError(t, err)
	assert.Empty(t, record.ShortDescription)
	assert.Empty(t, record.LongDescription)
}

func TestExtractFailsWithoutDetailLink(t *testing.T) {
	f := fixtureFetcher()
	f.pages[terminalURL] = `<html><body><div class="product-block">no link</div></body></html>`

	e := New(f, &stubGenerator{}, "Jopa")
	_, err := e.Extract(context.Background(), terminalURL)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, terminalURL, extractErr.URL)
}

func TestExtractFailsWhenDetailFetchFails(t *testing.T) {
	f := fixtureFetcher()
	delete(f.pages, detailURL)

	e := New(f, &stubGenerator{}, "Jopa")
	_, err := e.Extract(context.Background(), terminalURL)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)

	var fetchErr *fetcher.FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestExtractFailsWhenTerminalFetchFails(t *testing.T) {
	e := New(&stubFetcher{pages: map[string]string{}}, &stubGenerator{}, "Jopa")
	_, err := e.Extract(context.Background(), terminalURL)

	var extractErr *ExtractError
	assert.ErrorAs(t, err, &extractErr)
}
