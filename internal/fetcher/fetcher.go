// Package fetcher retrieves and parses catalog pages over HTTP.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetchError reports a transport failure or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher is the page-retrieval boundary the crawler and extractor depend on.
type Fetcher interface {
	// Fetch downloads url and returns the parsed document.
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
	// FetchBytes downloads url and returns the raw body. Used for images.
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher implements Fetcher with a gocolly collector.
type CollyFetcher struct {
	cfg  Config
	base *colly.Collector
}

func New(cfg Config) *CollyFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; a bare NewCollector is synchronous, matching the intent
	// of Async(false).
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &CollyFetcher{cfg: cfg, base: c}
}

func (f *CollyFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to parse document: %w", err)}
	}
	return doc, nil
}

func (f *CollyFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	collector := f.base.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The Visit goroutine cannot be interrupted mid-request; it keeps
		// running until the request timeout and then exits via the buffered
		// channel.
		return nil, &FetchError{URL: url, Err: ctx.Err()}
	case err := <-done:
		if fetchErr != nil {
			return nil, &FetchError{URL: url, StatusCode: status, Err: fetchErr}
		}
		if err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}
	}

	if status < 200 || status > 299 {
		return nil, &FetchError{URL: url, StatusCode: status}
	}
	return body, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
