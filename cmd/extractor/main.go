package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/catalog-sync/internal/config"
	"github.com/maltedev/catalog-sync/internal/extractor"
	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/models"
	"github.com/maltedev/catalog-sync/internal/ratelimit"
	"github.com/maltedev/catalog-sync/internal/storage"
	"github.com/maltedev/catalog-sync/internal/textgen"
	"github.com/maltedev/catalog-sync/pkg/logger"
)

func main() {
	var (
		dataDir = flag.String("data", "data", "Directory pipeline artifacts live in")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.ValidateTextGen(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	store, err := storage.NewStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open data directory: %v", err)
	}

	terminalURLs, err := store.LoadTerminalURLs(cfg.Source.BrandLabel)
	if err != nil {
		log.Fatalf("Failed to load crawl output (run the crawler first): %v", err)
	}
	logger.Info("starting extraction",
		"brand", cfg.Source.BrandLabel,
		"pages", len(terminalURLs))

	ring, err := textgen.NewKeyRing(cfg.TextGen.APIKeys)
	if err != nil {
		log.Fatalf("Failed to build key ring: %v", err)
	}
	generator := textgen.NewClient(textgen.Config{
		BaseURL: cfg.TextGen.BaseURL,
		Models:  cfg.TextGen.Models,
		Timeout: cfg.TextGen.Timeout,
	}, ring)

	f := fetcher.New(fetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Crawler.FetchTimeout,
	})
	ext := extractor.New(f, generator, cfg.Source.BrandLabel)
	limiter := ratelimit.NewSimpleRateLimiter(cfg.Crawler.RateLimitMin, cfg.Crawler.RateLimitMax)

	var records []*models.ProductRecord
	failed := 0
	for _, pageURL := range terminalURLs {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		record, err := ext.Extract(ctx, pageURL)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			failed++
			logger.Error("extraction failed", "url", pageURL, "error", err)
			continue
		}
		records = append(records, record)
	}

	if err := store.SaveProducts(cfg.Source.BrandLabel, records); err != nil {
		logger.Error("failed to save products", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Extraction finished\n")
	fmt.Printf("  pages:     %d\n", len(terminalURLs))
	fmt.Printf("  products:  %d\n", len(records))
	fmt.Printf("  failed:    %d\n", failed)
}
