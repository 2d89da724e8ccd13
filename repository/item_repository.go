package repository

import (
	"database/sql"
	"fmt"

	"pricewatch/models"
)

// ItemRepository persists TrackedItem rows.
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetActiveByCanonicalURL returns the active item for a canonical URL, if any.
func (r *ItemRepository) GetActiveByCanonicalURL(canonicalURL string) (*models.TrackedItem, error) {
	query := `
		SELECT id, url, canonical_url, site_host, active, created_at
		FROM tracked_items
		WHERE canonical_url = $1 AND active = true
	`
	var item models.TrackedItem
	err := r.db.QueryRow(query, canonicalURL).Scan(
		&item.ID, &item.URL, &item.CanonicalURL, &item.SiteHost, &item.Active, &item.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item by canonical url: %v", err)
	}
	return &item, nil
}

// Create inserts a new tracked item. Callers must first check
// GetActiveByCanonicalURL to honor the "at most one active item per
// canonicalUrl" invariant (spec.md §3).
func (r *ItemRepository) Create(url, canonicalURL, siteHost string) (*models.TrackedItem, error) {
	query := `
		INSERT INTO tracked_items (url, canonical_url, site_host, active, created_at)
		VALUES ($1, $2, $3, true, now())
		RETURNING id, url, canonical_url, site_host, active, created_at
	`
	var item models.TrackedItem
	err := r.db.QueryRow(query, url, canonicalURL, siteHost).Scan(
		&item.ID, &item.URL, &item.CanonicalURL, &item.SiteHost, &item.Active, &item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracked item: %v", err)
	}
	return &item, nil
}

// GetByID returns an item regardless of active state (snapshot history must
// resolve even after soft-delete).
func (r *ItemRepository) GetByID(id int64) (*models.TrackedItem, error) {
	query := `
		SELECT id, url, canonical_url, site_host, active, created_at
		FROM tracked_items WHERE id = $1
	`
	var item models.TrackedItem
	err := r.db.QueryRow(query, id).Scan(
		&item.ID, &item.URL, &item.CanonicalURL, &item.SiteHost, &item.Active, &item.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %v", err)
	}
	return &item, nil
}

// ListActive returns active items ordered by createdAt ascending, bounded by
// limit (DailySweep reads up to 200 — spec.md §4.9).
func (r *ItemRepository) ListActive(limit int) ([]models.TrackedItem, error) {
	query := `
		SELECT id, url, canonical_url, site_host, active, created_at
		FROM tracked_items
		WHERE active = true
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active items: %v", err)
	}
	defer rows.Close()

	var items []models.TrackedItem
	for rows.Next() {
		var item models.TrackedItem
		if err := rows.Scan(&item.ID, &item.URL, &item.CanonicalURL, &item.SiteHost, &item.Active, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %v", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Deactivate soft-deletes an item; rows are never deleted (snapshot history
// is preserved).
func (r *ItemRepository) Deactivate(id int64) error {
	_, err := r.db.Exec(`UPDATE tracked_items SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate item: %v", err)
	}
	return nil
}
