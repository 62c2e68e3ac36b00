package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-sync/internal/config"
	"github.com/maltedev/catalog-sync/internal/crawler"
	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/frontier"
	"github.com/maltedev/catalog-sync/internal/storage"
	"github.com/maltedev/catalog-sync/pkg/logger"
)

func main() {
	var (
		dataDir = flag.String("data", "data", "Directory crawl artifacts are written to")
		seed    = flag.String("seed", "", "Seed URL (defaults to the configured site scope)")
		reset   = flag.Bool("reset", false, "Drop the persisted redis frontier state before crawling")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting catalog crawl",
		"brand", cfg.Source.BrandLabel,
		"scope", cfg.Source.SiteScope())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	f := fetcher.New(fetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Crawler.FetchTimeout,
	})

	var fr frontier.Frontier
	switch cfg.Crawler.FrontierBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Crawler.RedisAddr})
		defer client.Close()
		rf := frontier.NewRedis(client, cfg.Source.Brand)
		if *reset {
			// The visited set persists across runs; without a reset a
			// re-crawl drains immediately and overwrites the pages
			// artifact with an empty list.
			if err := rf.Reset(ctx); err != nil {
				logger.Error("failed to reset frontier", "error", err)
				os.Exit(1)
			}
			logger.Info("frontier state reset", "run", cfg.Source.Brand)
		}
		fr = rf
	default:
		fr = frontier.NewInMemory()
	}
	defer fr.Close()

	c := crawler.New(f, fr, crawler.Config{
		SiteScope: cfg.Source.SiteScope(),
		Workers:   cfg.Crawler.Workers,
		RateMin:   cfg.Crawler.RateLimitMin,
		RateMax:   cfg.Crawler.RateLimitMax,
	})

	seedURL := *seed
	if seedURL == "" {
		seedURL = cfg.Source.SiteScope()
	}

	result, err := c.Crawl(ctx, seedURL)
	if err != nil {
		logger.Error("crawl aborted", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewStore(*dataDir)
	if err != nil {
		logger.Error("failed to open data directory", "error", err)
		os.Exit(1)
	}
	if err := store.SaveTerminalURLs(cfg.Source.BrandLabel, result.TerminalURLs); err != nil {
		logger.Error("failed to save crawl output", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Crawl finished\n")
	fmt.Printf("  pages fetched:  %d\n", result.PagesFetched)
	fmt.Printf("  listing pages:  %d\n", len(result.TerminalURLs))
	fmt.Printf("  unreachable:    %d\n", len(result.Unreachable))
}
