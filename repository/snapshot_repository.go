package repository

import (
	"database/sql"
	"fmt"

	"pricewatch/models"
)

// SnapshotRepository persists immutable PriceSnapshot rows.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a new snapshot. Snapshots are never updated once created.
func (r *SnapshotRepository) Create(s *models.PriceSnapshot) (*models.PriceSnapshot, error) {
	query := `
		INSERT INTO price_snapshots
			(item_id, checked_at, product_name, price_cents, in_stock, stock_state,
			 extraction_method, confidence, evidence_json, content_hash)
		VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, checked_at
	`
	err := r.db.QueryRow(
		query, s.ItemID, s.ProductName, s.PriceCents, s.InStock, s.StockState,
		s.ExtractionMethod, s.Confidence, s.EvidenceJSON, s.ContentHash,
	).Scan(&s.ID, &s.CheckedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %v", err)
	}
	return s, nil
}

// GetLatest returns the most recent snapshot for an item, or nil if none exists.
func (r *SnapshotRepository) GetLatest(itemID int64) (*models.PriceSnapshot, error) {
	query := `
		SELECT id, item_id, checked_at, product_name, price_cents, in_stock, stock_state,
		       extraction_method, confidence, evidence_json, content_hash
		FROM price_snapshots
		WHERE item_id = $1
		ORDER BY checked_at DESC
		LIMIT 1
	`
	var s models.PriceSnapshot
	err := r.db.QueryRow(query, itemID).Scan(
		&s.ID, &s.ItemID, &s.CheckedAt, &s.ProductName, &s.PriceCents, &s.InStock, &s.StockState,
		&s.ExtractionMethod, &s.Confidence, &s.EvidenceJSON, &s.ContentHash,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %v", err)
	}
	return &s, nil
}

// ListRecentForHost returns up to limit snapshots from other active items on
// the same siteHost, newest first. Used to build AiExtractor hints (spec.md §4.8 step 4).
func (r *SnapshotRepository) ListRecentForHost(siteHost string, excludeItemID int64, limit int) ([]models.PriceSnapshot, error) {
	query := `
		SELECT s.id, s.item_id, s.checked_at, s.product_name, s.price_cents, s.in_stock, s.stock_state,
		       s.extraction_method, s.confidence, s.evidence_json, s.content_hash
		FROM price_snapshots s
		JOIN tracked_items i ON i.id = s.item_id
		WHERE i.site_host = $1 AND i.active = true AND i.id != $2
		ORDER BY s.checked_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(query, siteHost, excludeItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent snapshots for host: %v", err)
	}
	defer rows.Close()

	var out []models.PriceSnapshot
	for rows.Next() {
		var s models.PriceSnapshot
		if err := rows.Scan(
			&s.ID, &s.ItemID, &s.CheckedAt, &s.ProductName, &s.PriceCents, &s.InStock, &s.StockState,
			&s.ExtractionMethod, &s.Confidence, &s.EvidenceJSON, &s.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %v", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ListForItem returns up to limit snapshots for an item, newest first
// (spec.md §6 "GET /items/:id" — 30 snapshots/runs/notifications).
func (r *SnapshotRepository) ListForItem(itemID int64, limit int) ([]models.PriceSnapshot, error) {
	query := `
		SELECT id, item_id, checked_at, product_name, price_cents, in_stock, stock_state,
		       extraction_method, confidence, evidence_json, content_hash
		FROM price_snapshots
		WHERE item_id = $1
		ORDER BY checked_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for item: %v", err)
	}
	defer rows.Close()

	var out []models.PriceSnapshot
	for rows.Next() {
		var s models.PriceSnapshot
		if err := rows.Scan(
			&s.ID, &s.ItemID, &s.CheckedAt, &s.ProductName, &s.PriceCents, &s.InStock, &s.StockState,
			&s.ExtractionMethod, &s.Confidence, &s.EvidenceJSON, &s.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %v", err)
		}
		out = append(out, s)
	}
	return out, nil
}
