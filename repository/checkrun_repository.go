package repository

import (
	"database/sql"
	"fmt"
	"time"

	"pricewatch/models"
)

// CheckRunRepository persists CheckRun rows.
type CheckRunRepository struct {
	db *sql.DB
}

func NewCheckRunRepository(db *sql.DB) *CheckRunRepository {
	return &CheckRunRepository{db: db}
}

// Create inserts the durable pessimistic sentinel row (spec.md §4.8 step 2):
// every run starts as FAILED and is promoted on finalization.
func (r *CheckRunRepository) Create(itemID int64) (*models.CheckRun, error) {
	query := `
		INSERT INTO check_runs (item_id, started_at, status)
		VALUES ($1, now(), $2)
		RETURNING id, started_at
	`
	run := &models.CheckRun{ItemID: itemID, Status: models.RunFailed}
	err := r.db.QueryRow(query, itemID, models.RunFailed).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create check run: %v", err)
	}
	return run, nil
}

// Finalize updates a check run to its terminal state.
func (r *CheckRunRepository) Finalize(run *models.CheckRun) error {
	query := `
		UPDATE check_runs
		SET finished_at = $2, status = $3, error_code = $4, error_message = $5,
		    used_playwright = $6, used_ai = $7, token_input = $8, token_output = $9,
		    estimated_cost_usd = $10
		WHERE id = $1
	`
	now := time.Now()
	run.FinishedAt = &now
	_, err := r.db.Exec(
		query, run.ID, run.FinishedAt, run.Status, run.ErrorCode, run.ErrorMessage,
		run.UsedPlaywright, run.UsedAI, run.TokenInput, run.TokenOutput, run.EstimatedCostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize check run: %v", err)
	}
	return nil
}

// SumAIEstimatedCostToday sums estimatedCostUsd for runs that used the AI
// fallback and started today (spec.md §4.8 step 3: read-time aggregation,
// no in-memory counter, per spec.md §5/§9).
func (r *CheckRunRepository) SumAIEstimatedCostToday() (float64, error) {
	startOfDay := time.Now().Truncate(24 * time.Hour)
	var total sql.NullFloat64
	err := r.db.QueryRow(
		`SELECT SUM(estimated_cost_usd) FROM check_runs WHERE used_ai = true AND started_at >= $1`,
		startOfDay,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ai spend: %v", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}

// ListForItem returns up to limit runs for an item, newest first.
func (r *CheckRunRepository) ListForItem(itemID int64, limit int) ([]models.CheckRun, error) {
	query := `
		SELECT id, item_id, started_at, finished_at, status, error_code, error_message,
		       used_playwright, used_ai, token_input, token_output, estimated_cost_usd
		FROM check_runs
		WHERE item_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check runs: %v", err)
	}
	defer rows.Close()

	var out []models.CheckRun
	for rows.Next() {
		var run models.CheckRun
		if err := rows.Scan(
			&run.ID, &run.ItemID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.ErrorCode, &run.ErrorMessage,
			&run.UsedPlaywright, &run.UsedAI, &run.TokenInput, &run.TokenOutput, &run.EstimatedCostUSD,
		); err != nil {
			return nil, fmt.Errorf("failed to scan check run: %v", err)
		}
		out = append(out, run)
	}
	return out, nil
}
