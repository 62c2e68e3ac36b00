// Package crawler discovers product listing pages by breadth-first traversal
// of one brand/category subtree.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/frontier"
	"github.com/maltedev/catalog-sync/internal/ratelimit"
)

type Config struct {
	// SiteScope is the path prefix that keeps the crawl inside one
	// brand/category subtree, e.g. "https://www.jopa.nl/en/jopa/helmets".
	SiteScope string
	Workers   int
	RateMin   time.Duration
	RateMax   time.Duration
}

// Result carries the crawl output. TerminalURLs is deterministic for a given
// reachable-page graph: sorted, each URL at most once.
type Result struct {
	TerminalURLs []string
	// PagesFetched counts successfully retrieved pages; failed attempts are
	// listed in Unreachable instead.
	PagesFetched int
	Unreachable  []string
}

type Crawler struct {
	fetcher  fetcher.Fetcher
	frontier frontier.Frontier
	limiter  *ratelimit.AdaptiveRateLimiter
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	terminal map[string]struct{}
	fetched  int
	failed   []string
}

func New(f fetcher.Fetcher, fr frontier.Frontier, cfg Config) *Crawler {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.RateMin == 0 {
		cfg.RateMin = time.Second
	}
	if cfg.RateMax < cfg.RateMin {
		cfg.RateMax = cfg.RateMin
	}
	return &Crawler{
		fetcher:  f,
		frontier: fr,
		limiter:  ratelimit.NewAdaptiveRateLimiter(cfg.RateMin, cfg.RateMax),
		logger:   slog.Default().With("component", "crawler"),
		cfg:      cfg,
		terminal: make(map[string]struct{}),
	}
}

// Crawl walks the subtree under seedURL and returns every terminal page URL.
// Fetch failures are non-fatal: the URL is recorded unreachable and traversal
// continues. The crawl ends when the frontier drains.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) (*Result, error) {
	c.logger.Info("starting crawl", "seed", seedURL, "scope", c.cfg.SiteScope, "workers", c.cfg.Workers)

	c.frontier.Enqueue(seedURL)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runWorker(ctx)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	urls := make([]string, 0, len(c.terminal))
	for u := range c.terminal {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	result := &Result{
		TerminalURLs: urls,
		PagesFetched: c.fetched,
		Unreachable:  append([]string(nil), c.failed...),
	}
	c.logger.Info("crawl finished",
		"pages", result.PagesFetched,
		"terminal", len(result.TerminalURLs),
		"unreachable", len(result.Unreachable))
	return result, nil
}

func (c *Crawler) runWorker(ctx context.Context) {
	for {
		url, err := c.frontier.Next(ctx)
		if err != nil {
			if !errors.Is(err, frontier.ErrDrained) && !errors.Is(err, frontier.ErrClosed) &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				c.logger.Error("frontier error", "error", err)
			}
			return
		}
		c.processPage(ctx, url)
		c.frontier.Done(url)
	}
}

func (c *Crawler) processPage(ctx context.Context, pageURL string) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	doc, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.limiter.RecordError()
		c.logger.Warn("page unreachable", "url", pageURL, "error", err)
		c.mu.Lock()
		c.failed = append(c.failed, pageURL)
		c.mu.Unlock()
		return
	}
	c.limiter.RecordSuccess()

	terminal := IsTerminal(doc)

	c.mu.Lock()
	c.fetched++
	if terminal {
		c.terminal[pageURL] = struct{}{}
	}
	c.mu.Unlock()

	for _, link := range ExtractLinks(doc, pageURL, c.cfg.SiteScope) {
		c.frontier.Enqueue(link)
	}
}
