// Package handlers implements spec.md §6's HTTP surface.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pricewatch/checkrun"
	"pricewatch/models"
	"pricewatch/notify"
	"pricewatch/parser"
	"pricewatch/repository"
)

// Handlers holds the repositories and services the HTTP surface dispatches
// to. Grounded on the teacher's handlers.go constructor shape (a single
// struct holding every repository plus the long-lived scraper/task-manager
// instances), generalized to the spec's domain: item/snapshot/check-run/
// notification repositories, the CheckRunner, and the Notifier.
type Handlers struct {
	items         *repository.ItemRepository
	snapshots     *repository.SnapshotRepository
	checkRuns     *repository.CheckRunRepository
	notifications *repository.NotificationRepository
	runner        *checkrun.Runner
	notifier      *notify.Notifier
	urlNormalizer *parser.UrlNormalizer
}

func NewHandlers(
	items *repository.ItemRepository,
	snapshots *repository.SnapshotRepository,
	checkRuns *repository.CheckRunRepository,
	notifications *repository.NotificationRepository,
	runner *checkrun.Runner,
	notifier *notify.Notifier,
) *Handlers {
	return &Handlers{
		items:         items,
		snapshots:     snapshots,
		checkRuns:     checkRuns,
		notifications: notifications,
		runner:        runner,
		notifier:      notifier,
		urlNormalizer: parser.NewUrlNormalizer(),
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "pricewatch",
	})
}

type createItemRequest struct {
	URL      string `json:"url"`
	Currency string `json:"currency,omitempty"`
}

type createItemResponse struct {
	ItemID       int64               `json:"itemId"`
	Created      bool                `json:"created"`
	InitialCheck *models.CheckResult `json:"initialCheck,omitempty"`
}

// CreateItem implements "POST /items" (spec.md §6). A second call with the
// same URL returns the existing itemId and created=false (spec.md §8's
// idempotence property), rather than erroring.
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	canonicalURL, err := h.urlNormalizer.Normalize(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	siteHost, err := h.urlNormalizer.Host(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	existing, err := h.items.GetActiveByCanonicalURL(canonicalURL)
	if err != nil {
		log.Printf("failed to look up item by canonical url: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, createItemResponse{ItemID: existing.ID, Created: false})
		return
	}

	item, err := h.items.Create(req.URL, canonicalURL, siteHost)
	if err != nil {
		log.Printf("failed to create item: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	result, runErr := h.runner.Run(item.ID)
	if runErr != nil {
		log.Printf("initial check for item %d failed: %v", item.ID, runErr)
	}

	writeJSON(w, http.StatusCreated, createItemResponse{
		ItemID:       item.ID,
		Created:      true,
		InitialCheck: &result,
	})
}

type itemSummary struct {
	ID              int64                 `json:"id"`
	URL             string                `json:"url"`
	CanonicalURL    string                `json:"canonicalUrl"`
	SiteHost        string                `json:"siteHost"`
	Active          bool                  `json:"active"`
	CreatedAt       time.Time             `json:"createdAt"`
	LatestSnapshot  *models.PriceSnapshot `json:"latestSnapshot,omitempty"`
	LatestCheckRun  *models.CheckRun      `json:"latestCheckRun,omitempty"`
	LastPriceChange *models.Notification  `json:"lastPriceChange,omitempty"`
}

// ListItems implements "GET /items": each item with its newest snapshot,
// newest check run, and last PRICE_CHANGED notification (spec.md §6).
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	active, err := h.items.ListActive(200)
	if err != nil {
		log.Printf("failed to list items: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	summaries := make([]itemSummary, 0, len(active))
	for _, item := range active {
		summary := itemSummary{
			ID:           item.ID,
			URL:          item.URL,
			CanonicalURL: item.CanonicalURL,
			SiteHost:     item.SiteHost,
			Active:       item.Active,
			CreatedAt:    item.CreatedAt,
		}

		if snap, err := h.snapshots.GetLatest(item.ID); err != nil {
			log.Printf("failed to load latest snapshot for item %d: %v", item.ID, err)
		} else {
			summary.LatestSnapshot = snap
		}

		if runs, err := h.checkRuns.ListForItem(item.ID, 1); err != nil {
			log.Printf("failed to load latest check run for item %d: %v", item.ID, err)
		} else if len(runs) > 0 {
			summary.LatestCheckRun = &runs[0]
		}

		if n, err := h.notifications.LastPriceChange(item.ID); err != nil {
			log.Printf("failed to load last price change for item %d: %v", item.ID, err)
		} else {
			summary.LastPriceChange = n
		}

		summaries = append(summaries, summary)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": summaries})
}

type itemDetail struct {
	itemSummary
	Snapshots     []models.PriceSnapshot `json:"snapshots"`
	CheckRuns     []models.CheckRun      `json:"checkRuns"`
	Notifications []models.Notification  `json:"notifications"`
}

// GetItem implements "GET /items/:id": up to 30 snapshots/runs/notifications.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r)
	if !ok {
		return
	}

	item, err := h.items.GetByID(id)
	if err != nil {
		log.Printf("failed to load item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	snapshots, err := h.snapshots.ListForItem(id, 30)
	if err != nil {
		log.Printf("failed to load snapshots for item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	runs, err := h.checkRuns.ListForItem(id, 30)
	if err != nil {
		log.Printf("failed to load check runs for item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	notifications, err := h.notifications.ListForItem(id, 30)
	if err != nil {
		log.Printf("failed to load notifications for item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}

	detail := itemDetail{
		itemSummary: itemSummary{
			ID:           item.ID,
			URL:          item.URL,
			CanonicalURL: item.CanonicalURL,
			SiteHost:     item.SiteHost,
			Active:       item.Active,
			CreatedAt:    item.CreatedAt,
		},
		Snapshots:     snapshots,
		CheckRuns:     runs,
		Notifications: notifications,
	}
	if len(snapshots) > 0 {
		detail.LatestSnapshot = &snapshots[0]
	}
	if len(runs) > 0 {
		detail.LatestCheckRun = &runs[0]
	}
	if n, err := h.notifications.LastPriceChange(id); err == nil {
		detail.LastPriceChange = n
	}

	writeJSON(w, http.StatusOK, detail)
}

// DeleteItem implements "DELETE /items/:id": soft-delete, snapshot history
// survives (ItemRepository.Deactivate only clears the active flag; rows are
// never deleted). A missing or already inactive item is a 404.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r)
	if !ok {
		return
	}

	item, err := h.items.GetByID(id)
	if err != nil {
		log.Printf("failed to load item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	if item == nil || !item.Active {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if err := h.items.Deactivate(id); err != nil {
		log.Printf("failed to deactivate item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// CheckItemNow implements "POST /items/:id/check": runs the CheckRunner
// synchronously and returns its CheckResult (spec.md §6).
func (h *Handlers) CheckItemNow(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r)
	if !ok {
		return
	}

	item, err := h.items.GetByID(id)
	if err != nil {
		log.Printf("failed to load item %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to check item")
		return
	}
	if item == nil || !item.Active {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	result, runErr := h.runner.Run(id)
	if runErr != nil {
		log.Printf("check for item %d failed: %v", id, runErr)
	}
	writeJSON(w, http.StatusOK, result)
}

// TestDiscordWebhook implements "POST /discord/test".
func (h *Handlers) TestDiscordWebhook(w http.ResponseWriter, r *http.Request) {
	status, body, err := h.notifier.TestWebhook()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reach webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "body": body})
}

func parsePathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
