package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pricewatch/models"
)

// NotificationRepository persists Notification rows.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Claim inserts the notification row that reserves the at-most-once slot
// for (itemId, snapshotId, eventType). Returns (nil, nil) if the row already
// exists — the unique constraint violation is the concurrency primitive
// (spec.md §4.10, §9 "claim-then-send"): the caller must abort silently, not
// treat it as an error.
func (r *NotificationRepository) Claim(itemID, snapshotID int64, eventType models.NotificationEventType) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (item_id, snapshot_id, event_type, webhook_status, webhook_response)
		VALUES ($1, $2, $3, 0, '')
		ON CONFLICT (item_id, snapshot_id, event_type) DO NOTHING
		RETURNING id
	`
	n := &models.Notification{ItemID: itemID, SnapshotID: snapshotID, EventType: eventType}
	err := r.db.QueryRow(query, itemID, snapshotID, eventType).Scan(&n.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // already claimed by a concurrent run
		}
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim notification: %v", err)
	}
	return n, nil
}

// MarkSent records the webhook delivery outcome for a claimed notification.
func (r *NotificationRepository) MarkSent(id int64, status int, response string) error {
	if len(response) > 1000 {
		response = response[:1000]
	}
	_, err := r.db.Exec(
		`UPDATE notifications SET webhook_status = $2, webhook_response = $3, sent_at = $4 WHERE id = $1`,
		id, status, response, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %v", err)
	}
	return nil
}

// ListForItem returns up to limit notifications for an item, newest first.
func (r *NotificationRepository) ListForItem(itemID int64, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, item_id, snapshot_id, event_type, webhook_status, webhook_response, sent_at
		FROM notifications
		WHERE item_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %v", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.ItemID, &n.SnapshotID, &n.EventType, &n.WebhookStatus, &n.WebhookResponse, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %v", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// LastPriceChange returns the most recent PRICE_CHANGED notification for an
// item, or nil (spec.md §6 "GET /items" -> "lastPriceChange").
func (r *NotificationRepository) LastPriceChange(itemID int64) (*models.Notification, error) {
	query := `
		SELECT id, item_id, snapshot_id, event_type, webhook_status, webhook_response, sent_at
		FROM notifications
		WHERE item_id = $1 AND event_type = $2
		ORDER BY id DESC
		LIMIT 1
	`
	var n models.Notification
	err := r.db.QueryRow(query, itemID, models.EventPriceChanged).Scan(
		&n.ID, &n.ItemID, &n.SnapshotID, &n.EventType, &n.WebhookStatus, &n.WebhookResponse, &n.SentAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last price change: %v", err)
	}
	return &n, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint") ||
		strings.Contains(err.Error(), "23505")
}
