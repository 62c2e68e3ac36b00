package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/catalog-sync/internal/config"
	"github.com/maltedev/catalog-sync/internal/destination"
	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/journal"
	"github.com/maltedev/catalog-sync/internal/storage"
	"github.com/maltedev/catalog-sync/internal/uploader"
	"github.com/maltedev/catalog-sync/pkg/logger"
)

func main() {
	var (
		dataDir  = flag.String("data", "data", "Directory pipeline artifacts live in")
		headless = flag.Bool("headless", true, "Run the browser in headless mode")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.ValidateDestination(); err != nil {
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
	records, err := store.LoadProducts(cfg.Source.BrandLabel)
	if err != nil {
		log.Fatalf("Failed to load products (run the extractor first): %v", err)
	}
	logger.Info("starting sync",
		"brand", cfg.Source.BrandLabel,
		"products", len(records))

	categoryURL := strings.TrimRight(cfg.Destination.AdminURL, "/") + "/" + cfg.Destination.CategoryPath
	session, err := destination.NewPlaywrightSession(&destination.Options{
		Headless:    *headless && cfg.Destination.Headless,
		StepTimeout: cfg.Destination.StepTimeout,
		CategoryURL: categoryURL,
	})
	if err != nil {
		logger.Error("failed to start browser session", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	f := fetcher.New(fetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Crawler.FetchTimeout,
	})

	engine := uploader.New(session, f, uploader.Config{
		AdminURL:    cfg.Destination.AdminURL,
		Username:    cfg.Destination.Username,
		Password:    cfg.Destination.Password,
		BrandOption: cfg.Destination.BrandOption,
		SiteScope:   cfg.Source.SiteScope(),
		PriceSource: cfg.Destination.PriceSource,
	})

	var runJournal *journal.Journal
	if cfg.Journal.DSN != "" {
		runJournal, err = journal.Open(ctx, cfg.Journal.DSN, cfg.Source.BrandLabel)
		if err != nil {
			logger.Warn("journal unavailable, continuing without it", "error", err)
		} else {
			defer runJournal.Close()
			engine.WithJournal(runJournal)
		}
	}

	summary, err := engine.Run(ctx, records)
	if err != nil {
		logger.Error("sync aborted", "error", err)
	}
	if pages, perr := store.LoadTerminalURLs(cfg.Source.BrandLabel); perr == nil {
		summary.PagesFound = len(pages)
	}
	if runJournal != nil {
		if jerr := runJournal.FinishRun(context.Background(), summary); jerr != nil {
			logger.Warn("failed to finish journal run", "error", jerr)
		}
	}

	fmt.Printf("Sync finished\n")
	fmt.Printf("  pages found:         %d\n", summary.PagesFound)
	fmt.Printf("  products:            %d\n", summary.ProductsExtracted)
	fmt.Printf("  created:             %d\n", summary.ProductsCreated)
	fmt.Printf("  failed:              %d\n", summary.ProductsFailed)
	fmt.Printf("  links established:   %d\n", summary.LinksEstablished)
	fmt.Printf("  links failed:        %d\n", summary.LinksFailed)
	fmt.Printf("  reconciliation gaps: %d\n", summary.ReconciliationGaps)
	if err != nil {
		os.Exit(1)
	}
}
