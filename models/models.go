package models

import (
	"time"
)

// StockState is the arbitrated stock status of a product page.
type StockState string

const (
	StockUnknown    StockState = "UNKNOWN"
	StockInStock    StockState = "IN_STOCK"
	StockOutOfStock StockState = "OUT_OF_STOCK"
	StockPartial    StockState = "PARTIAL"
)

// ExtractionMethod identifies which layer of the pipeline produced a snapshot.
type ExtractionMethod string

// MethodBestBuyAPI is not emitted by the Best Buy adapter: §4.4 tags that
// adapter's output "static", not a separate method, so this constant exists
// only because the enum names it. See DESIGN.md.
const (
	MethodShopifyJSON ExtractionMethod = "shopify_json"
	MethodBestBuyAPI  ExtractionMethod = "bestbuy_api"
	MethodStatic      ExtractionMethod = "static"
	MethodPlaywright  ExtractionMethod = "playwright"
	MethodAI          ExtractionMethod = "ai"
)

// CheckRunStatus is the terminal status of a CheckRun row.
type CheckRunStatus string

const (
	RunFailed      CheckRunStatus = "FAILED"
	RunSuccess     CheckRunStatus = "SUCCESS"
	RunNeedsReview CheckRunStatus = "NEEDS_REVIEW"
)

// NotificationEventType is the kind of transition a Notification records.
type NotificationEventType string

const (
	EventPriceChanged NotificationEventType = "PRICE_CHANGED"
	EventBackInStock  NotificationEventType = "BACK_IN_STOCK"
)

// TrackedItem is a user-tracked product URL. Unique by CanonicalURL while active.
type TrackedItem struct {
	ID           int64     `json:"id" db:"id"`
	URL          string    `json:"url" db:"url"`
	CanonicalURL string    `json:"canonicalUrl" db:"canonical_url"`
	SiteHost     string    `json:"siteHost" db:"site_host"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// VariantStock is a single variant's availability, part of an ExtractResult.
type VariantStock struct {
	Label string     `json:"label"`
	State StockState `json:"state"`
}

// PriceSnapshot is an immutable record of one successful extraction.
type PriceSnapshot struct {
	ID               int64            `json:"id" db:"id"`
	ItemID           int64            `json:"itemId" db:"item_id"`
	CheckedAt        time.Time        `json:"checkedAt" db:"checked_at"`
	ProductName      string           `json:"productName" db:"product_name"`
	PriceCents       *int64           `json:"priceCents" db:"price_cents"`
	InStock          *bool            `json:"inStock" db:"in_stock"`
	StockState       StockState       `json:"stockState" db:"stock_state"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod" db:"extraction_method"`
	Confidence       float64          `json:"confidence" db:"confidence"`
	EvidenceJSON     string           `json:"evidenceJson" db:"evidence_json"`
	ContentHash      string           `json:"contentHash" db:"content_hash"`
}

// CheckRun is one record per check attempt, created pessimistically as FAILED
// and promoted on finalization.
type CheckRun struct {
	ID               int64          `json:"id" db:"id"`
	ItemID           int64          `json:"itemId" db:"item_id"`
	StartedAt        time.Time      `json:"startedAt" db:"started_at"`
	FinishedAt       *time.Time     `json:"finishedAt" db:"finished_at"`
	Status           CheckRunStatus `json:"status" db:"status"`
	ErrorCode        string         `json:"errorCode" db:"error_code"`
	ErrorMessage     string         `json:"errorMessage" db:"error_message"`
	UsedPlaywright   bool           `json:"usedPlaywright" db:"used_playwright"`
	UsedAI           bool           `json:"usedAi" db:"used_ai"`
	TokenInput       int            `json:"tokenInput" db:"token_input"`
	TokenOutput      int            `json:"tokenOutput" db:"token_output"`
	EstimatedCostUSD float64        `json:"estimatedCostUsd" db:"estimated_cost_usd"`
}

// Notification is one row per (itemId, snapshotId, eventType); the unique
// composite key enforces at-most-once emission.
type Notification struct {
	ID              int64                 `json:"id" db:"id"`
	ItemID          int64                 `json:"itemId" db:"item_id"`
	SnapshotID      int64                 `json:"snapshotId" db:"snapshot_id"`
	EventType       NotificationEventType `json:"eventType" db:"event_type"`
	WebhookStatus   int                   `json:"webhookStatus" db:"webhook_status"`
	WebhookResponse string                `json:"webhookResponse" db:"webhook_response"`
	SentAt          *time.Time            `json:"sentAt" db:"sent_at"`
}

// InStockFromState projects StockState onto the nullable trinary inStock field
// per spec.md §4.3: IN_STOCK/PARTIAL -> true, OUT_OF_STOCK -> false, UNKNOWN -> nil.
func InStockFromState(s StockState) *bool {
	switch s {
	case StockInStock, StockPartial:
		t := true
		return &t
	case StockOutOfStock:
		f := false
		return &f
	default:
		return nil
	}
}
