package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

var DB *sql.DB

// InitDatabase opens the connection pool against DATABASE_URL.
func InitDatabase(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	var err error
	DB, err = sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %v", err)
	}

	log.Println("Successfully connected to database")
	return nil
}

// CreateTables bootstraps the schema described in spec.md §3.
func CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tracked_items (
			id SERIAL PRIMARY KEY,
			url TEXT NOT NULL,
			canonical_url TEXT NOT NULL,
			site_host TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracked_items_active_canonical_url
			ON tracked_items (canonical_url) WHERE active = true`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_items_site_host ON tracked_items (site_host)`,

		`CREATE TABLE IF NOT EXISTS price_snapshots (
			id SERIAL PRIMARY KEY,
			item_id INTEGER NOT NULL REFERENCES tracked_items(id),
			checked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			product_name TEXT NOT NULL,
			price_cents BIGINT,
			in_stock BOOLEAN,
			stock_state VARCHAR(16) NOT NULL,
			extraction_method VARCHAR(20) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			evidence_json TEXT NOT NULL DEFAULT '',
			content_hash VARCHAR(64) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_snapshots_item_checked
			ON price_snapshots (item_id, checked_at DESC)`,

		`CREATE TABLE IF NOT EXISTS check_runs (
			id SERIAL PRIMARY KEY,
			item_id INTEGER NOT NULL REFERENCES tracked_items(id),
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ,
			status VARCHAR(16) NOT NULL DEFAULT 'FAILED',
			error_code TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			used_playwright BOOLEAN NOT NULL DEFAULT FALSE,
			used_ai BOOLEAN NOT NULL DEFAULT FALSE,
			token_input INTEGER NOT NULL DEFAULT 0,
			token_output INTEGER NOT NULL DEFAULT 0,
			estimated_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_check_runs_item ON check_runs (item_id, started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_check_runs_ai_budget
			ON check_runs (started_at) WHERE used_ai = true`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			item_id INTEGER NOT NULL REFERENCES tracked_items(id),
			snapshot_id INTEGER NOT NULL REFERENCES price_snapshots(id),
			event_type VARCHAR(20) NOT NULL,
			webhook_status INTEGER NOT NULL DEFAULT 0,
			webhook_response TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMPTZ,
			UNIQUE (item_id, snapshot_id, event_type)
		)`,
	}

	for _, query := range queries {
		if _, err := DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create schema: %v", err)
		}
	}

	return nil
}

// CloseDatabase closes the pool.
func CloseDatabase() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
