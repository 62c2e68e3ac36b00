// Package uploader syncs extracted product records into the destination shop
// through its browser-only admin interface, then links products within the
// same subcategory as related items.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/maltedev/catalog-sync/internal/destination"
	"github.com/maltedev/catalog-sync/internal/fetcher"
	"github.com/maltedev/catalog-sync/internal/models"
)

// Destination admin field keys driven through the inline editors.
const (
	fieldEAN         = "CPolozka.ean"
	fieldSupplierURL = "CZbozi.dodavatelurl"
	fieldBrand       = "CZbozi.vyrobce_id"
	fieldShortDesc   = "zbozi.popis"
	fieldLongDesc    = "zbozi.popis2"
)

// Config controls one sync run.
type Config struct {
	AdminURL string
	Username string
	Password string
	// BrandOption is the manufacturer dropdown label selected for every
	// created entry.
	BrandOption string
	// SiteScope is the source catalog prefix subcategory keys are derived
	// against.
	SiteScope string
	// PriceSource is the pricing mode selected for every created entry.
	PriceSource string
}

// Journal receives sync events for durable bookkeeping. Implementations
// return errors for logging only; a journal failure never affects the run.
type Journal interface {
	ProductSynced(ctx context.Context, entry *models.ReconciliationEntry, name string) error
	ProductFailed(ctx context.Context, sourceURL, name string, cause error) error
	RelationLinked(ctx context.Context, fromInternalID, toExternalID string) error
}

// Engine runs the two-phase sync: create every product first, then link
// related products. Phase 2 never starts before phase 1 has fully resolved,
// because linking needs the destination identifiers creation assigns.
type Engine struct {
	session destination.Session
	fetcher fetcher.Fetcher
	cfg     Config
	logger  *slog.Logger
	journal Journal

	states map[string]State
	recon  map[string]*models.ReconciliationEntry
}

func New(session destination.Session, f fetcher.Fetcher, cfg Config) *Engine {
	if cfg.PriceSource == "" {
		cfg.PriceSource = "manual"
	}
	return &Engine{
		session: session,
		fetcher: f,
		cfg:     cfg,
		logger:  slog.Default().With("component", "uploader"),
		states:  make(map[string]State),
		recon:   make(map[string]*models.ReconciliationEntry),
	}
}

// WithJournal attaches an optional sync journal.
func (e *Engine) WithJournal(j Journal) *Engine {
	e.journal = j
	return e
}

// StateOf reports the create-phase state for a source product URL.
func (e *Engine) StateOf(sourceURL string) State {
	if s, ok := e.states[sourceURL]; ok {
		return s
	}
	return StateNotStarted
}

// Lookup returns the reconciliation entry recorded for a source product URL,
// or nil when the product was not successfully created.
func (e *Engine) Lookup(sourceURL string) *models.ReconciliationEntry {
	return e.recon[sourceURL]
}

// Reconciliation returns a copy of the source-to-destination identifier table
// built during the create phase.
func (e *Engine) Reconciliation() map[string]*models.ReconciliationEntry {
	out := make(map[string]*models.ReconciliationEntry, len(e.recon))
	for k, v := range e.recon {
		entry := *v
		out[k] = &entry
	}
	return out
}

// Run logs in and executes both phases over the given records. Individual
// product and link failures are absorbed into the summary; only login
// failure and cancellation abort the run.
func (e *Engine) Run(ctx context.Context, records []*models.ProductRecord) (*models.RunSummary, error) {
	summary := &models.RunSummary{ProductsExtracted: len(records)}

	if err := e.session.Login(ctx, e.cfg.AdminURL, e.cfg.Username, e.cfg.Password); err != nil {
		return summary, fmt.Errorf("failed to log in to destination: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := e.createProduct(ctx, rec); err != nil {
			summary.ProductsFailed++
			e.logger.Error("product sync failed",
				"product", rec.Name,
				"source_url", rec.SourceProductURL,
				"error", err)
			if e.journal != nil {
				if jerr := e.journal.ProductFailed(ctx, rec.SourceProductURL, rec.Name, err); jerr != nil {
					e.logger.Warn("journal write failed", "error", jerr)
				}
			}
			continue
		}
		summary.ProductsCreated++
		if e.journal != nil {
			if jerr := e.journal.ProductSynced(ctx, e.recon[rec.SourceProductURL], rec.Name); jerr != nil {
				e.logger.Warn("journal write failed", "error", jerr)
			}
		}
	}

	linked, failed, gaps, err := e.linkRelated(ctx, records)
	summary.LinksEstablished = linked
	summary.LinksFailed = failed
	summary.ReconciliationGaps = gaps
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// createProduct drives the full create choreography for one record. The
// reconciliation entry is committed only when every step succeeded, so a
// failed product never leaks a half-synced identifier into phase 2.
func (e *Engine) createProduct(ctx context.Context, rec *models.ProductRecord) error {
	if err := e.setState(rec.SourceProductURL, StateCreating); err != nil {
		return err
	}

	entry, err := e.runCreateSteps(ctx, rec)
	if err != nil {
		if serr := e.setState(rec.SourceProductURL, StateCreateFailed); serr != nil {
			e.logger.Error("state bookkeeping error", "error", serr)
		}
		return err
	}

	e.recon[rec.SourceProductURL] = entry
	return e.setState(rec.SourceProductURL, StateCreated)
}

func (e *Engine) runCreateSteps(ctx context.Context, rec *models.ProductRecord) (*models.ReconciliationEntry, error) {
	entryURL, err := e.session.CreateEntry(ctx, rec.Name, rec.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	internalID, externalID, err := destination.IdentifiersFromEntryURL(entryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry identifiers: %w", err)
	}
	e.logger.Info("entry created",
		"product", rec.Name,
		"internal_id", internalID,
		"external_id", externalID)

	if err := e.session.EditInlineField(ctx, fieldEAN, rec.EAN); err != nil {
		return nil, err
	}
	if err := e.session.EditInlineField(ctx, fieldSupplierURL, rec.SourceProductURL); err != nil {
		return nil, err
	}
	if err := e.session.SelectFromDropdown(ctx, fieldBrand, e.cfg.BrandOption); err != nil {
		return nil, err
	}
	if rec.ShortDescription != "" {
		if err := e.session.SetRichText(ctx, fieldShortDesc, rec.ShortDescription); err != nil {
			return nil, err
		}
	}
	if rec.LongDescription != "" {
		if err := e.session.SetRichText(ctx, fieldLongDesc, rec.LongDescription); err != nil {
			return nil, err
		}
	}

	if err := e.uploadImages(ctx, rec); err != nil {
		return nil, err
	}

	for _, size := range rec.Sizes {
		if err := e.session.AddVariant(ctx, size); err != nil {
			return nil, err
		}
	}

	if err := e.session.SetPriceSource(ctx, e.cfg.PriceSource); err != nil {
		return nil, err
	}
	if err := e.session.SetAvailability(ctx, true); err != nil {
		return nil, err
	}

	return &models.ReconciliationEntry{
		SourceProductURL: rec.SourceProductURL,
		InternalID:       internalID,
		ExternalID:       externalID,
	}, nil
}

// uploadImages stages the source gallery into a temp directory so the browser
// file chooser has local paths to hand over. Staging is released as soon as
// the upload step settles.
func (e *Engine) uploadImages(ctx context.Context, rec *models.ProductRecord) error {
	if len(rec.Images) == 0 {
		return nil
	}

	dir, err := os.MkdirTemp("", "catalog-sync-images-")
	if err != nil {
		return fmt.Errorf("failed to create image staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths := make([]string, 0, len(rec.Images))
	for i, imageURL := range rec.Images {
		body, err := e.fetcher.FetchBytes(ctx, imageURL)
		if err != nil {
			return fmt.Errorf("failed to download image %s: %w", imageURL, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("image-%02d%s", i, imageExt(imageURL)))
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("failed to stage image: %w", err)
		}
		paths = append(paths, path)
	}

	return e.session.UploadImages(ctx, paths)
}

func imageExt(imageURL string) string {
	ext := filepath.Ext(imageURL)
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return ext
	}
	return ".jpg"
}

// linkRelated runs phase 2: every created product is linked to every other
// created product sharing its subcategory key. Links are directed, so a
// group of n products issues n*(n-1) attempts. Pair failures are counted and
// skipped; a product with no reconciliation entry is counted as a gap and
// excluded because there is no identifier to link against.
func (e *Engine) linkRelated(ctx context.Context, records []*models.ProductRecord) (linked, failed, gaps int, err error) {
	groups := make(map[string][]*models.ProductRecord)
	var keys []string
	for _, rec := range records {
		if _, ok := e.recon[rec.SourceProductURL]; !ok {
			gaps++
			continue
		}
		key := models.SubcategoryKey(rec.SourceCategoryURL, e.cfg.SiteScope)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], rec)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := groups[key]
		e.logger.Info("linking subcategory group", "subcategory", key, "products", len(members))
		for _, subject := range members {
			subjectEntry := e.recon[subject.SourceProductURL]
			for _, target := range members {
				targetEntry := e.recon[target.SourceProductURL]
				if subjectEntry.InternalID == targetEntry.InternalID {
					continue
				}
				if cerr := ctx.Err(); cerr != nil {
					return linked, failed, gaps, cerr
				}
				if lerr := e.linkPair(ctx, subjectEntry, targetEntry); lerr != nil {
					failed++
					e.logger.Error("relation link failed",
						"from", subjectEntry.InternalID,
						"to", targetEntry.ExternalID,
						"error", lerr)
					continue
				}
				linked++
				if e.journal != nil {
					if jerr := e.journal.RelationLinked(ctx, subjectEntry.InternalID, targetEntry.ExternalID); jerr != nil {
						e.logger.Warn("journal write failed", "error", jerr)
					}
				}
			}
		}
	}
	return linked, failed, gaps, nil
}

func (e *Engine) linkPair(ctx context.Context, from, to *models.ReconciliationEntry) error {
	if err := e.session.OpenRelationEditor(ctx, from.InternalID); err != nil {
		return err
	}
	return e.session.FilterAndSelectRelation(ctx, to.ExternalID)
}

func (e *Engine) setState(sourceURL string, to State) error {
	next, err := transition(e.StateOf(sourceURL), to)
	if err != nil {
		return err
	}
	e.states[sourceURL] = next
	return nil
}
