// Package journal keeps a durable record of sync runs in Postgres. The
// journal is strictly best-effort bookkeeping: the pipeline runs the same
// with or without it, and write failures are reported to the caller for
// logging only.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maltedev/catalog-sync/internal/models"
)

const (
	statusSynced = "synced"
	statusFailed = "failed"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id UUID PRIMARY KEY,
		brand TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at TIMESTAMPTZ,
		summary JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS sync_products (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES sync_runs(id),
		source_product_url TEXT NOT NULL,
		name TEXT NOT NULL,
		internal_id TEXT,
		external_id TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sync_relations (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES sync_runs(id),
		from_internal_id TEXT NOT NULL,
		to_external_id TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Journal writes sync events for one run, identified by a fresh UUID.
type Journal struct {
	pool   *pgxpool.Pool
	runID  uuid.UUID
	logger *slog.Logger
}

// Open connects to Postgres, ensures the schema and opens a run row.
func Open(ctx context.Context, dsn, brand string) (*Journal, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse journal dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure journal schema: %w", err)
		}
	}

	j := &Journal{
		pool:   pool,
		runID:  uuid.New(),
		logger: slog.Default().With("component", "journal"),
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO sync_runs (id, brand) VALUES ($1, $2)`,
		j.runID, brand,
	); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open run: %w", err)
	}
	j.logger.Info("journal run opened", "run_id", j.runID, "brand", brand)

	return j, nil
}

func (j *Journal) RunID() uuid.UUID { return j.runID }

func (j *Journal) Close() {
	j.pool.Close()
}

func (j *Journal) ProductSynced(ctx context.Context, entry *models.ReconciliationEntry, name string) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO sync_products (run_id, source_product_url, name, internal_id, external_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		j.runID, entry.SourceProductURL, name, entry.InternalID, entry.ExternalID, statusSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to record synced product: %w", err)
	}
	return nil
}

func (j *Journal) ProductFailed(ctx context.Context, sourceURL, name string, cause error) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO sync_products (run_id, source_product_url, name, status, error_message)
		 VALUES ($1, $2, $3, $4, $5)`,
		j.runID, sourceURL, name, statusFailed, cause.Error(),
	)
	if err != nil {
		return fmt.Errorf("failed to record failed product: %w", err)
	}
	return nil
}

func (j *Journal) RelationLinked(ctx context.Context, fromInternalID, toExternalID string) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO sync_relations (run_id, from_internal_id, to_external_id)
		 VALUES ($1, $2, $3)`,
		j.runID, fromInternalID, toExternalID,
	)
	if err != nil {
		return fmt.Errorf("failed to record relation: %w", err)
	}
	return nil
}

// FinishRun closes the run row with the final counts.
func (j *Journal) FinishRun(ctx context.Context, summary *models.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = j.pool.Exec(ctx,
		`UPDATE sync_runs SET finished_at = now(), summary = $2 WHERE id = $1`,
		j.runID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}
