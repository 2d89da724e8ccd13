// Package checkrun implements spec.md §4.8-§4.9: the per-item check state
// machine and the daily sweep that drives it across all active items.
package checkrun

import (
	"fmt"

	"pricewatch/models"
)

// itemStore, snapshotStore, checkRunStore, notifier and pipeline are narrow
// interfaces naming only the methods Runner calls, per spec.md §9: "both
// must be swappable for fakes in tests; the CheckRunner already accepts
// injected dependencies." The concrete *repository.*Repository,
// *notify.Notifier and *extract.ExtractionPipeline types satisfy these
// structurally; production wiring passes them directly.
type itemStore interface {
	GetByID(id int64) (*models.TrackedItem, error)
}

type snapshotStore interface {
	GetLatest(itemID int64) (*models.PriceSnapshot, error)
	Create(s *models.PriceSnapshot) (*models.PriceSnapshot, error)
	ListRecentForHost(siteHost string, excludeItemID int64, limit int) ([]models.PriceSnapshot, error)
}

type checkRunStore interface {
	Create(itemID int64) (*models.CheckRun, error)
	Finalize(run *models.CheckRun) error
	SumAIEstimatedCostToday() (float64, error)
}

type notifier interface {
	NotifyPriceChanged(item *models.TrackedItem, snapshot *models.PriceSnapshot, oldPriceCents *int64) error
	NotifyBackInStock(item *models.TrackedItem, snapshot *models.PriceSnapshot) error
}

type pipeline interface {
	Run(pageURL string, opts models.PipelineOptions) models.ExtractionAttempt
}

// Runner implements runCheckForItem (spec.md §4.8).
type Runner struct {
	items     itemStore
	snapshots snapshotStore
	checkRuns checkRunStore
	notifier  notifier
	pipeline  pipeline

	dailyBudgetUSD   float64
	enablePlaywright bool
	scrapeTimeoutMS  int
	model            string
}

func NewRunner(
	items itemStore,
	snapshots snapshotStore,
	checkRuns checkRunStore,
	notifier notifier,
	pipeline pipeline,
	dailyBudgetUSD float64,
	enablePlaywright bool,
	scrapeTimeoutMS int,
	model string,
) *Runner {
	return &Runner{
		items:            items,
		snapshots:        snapshots,
		checkRuns:        checkRuns,
		notifier:         notifier,
		pipeline:         pipeline,
		dailyBudgetUSD:   dailyBudgetUSD,
		enablePlaywright: enablePlaywright,
		scrapeTimeoutMS:  scrapeTimeoutMS,
		model:            model,
	}
}

// Run implements the 9-step state machine of spec.md §4.8.
func (r *Runner) Run(itemID int64) (result models.CheckResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("check run panicked: %v", rec)
			result = models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}
		}
	}()

	// Step 1: load active item, fail-fast if missing.
	item, loadErr := r.items.GetByID(itemID)
	if loadErr != nil {
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, loadErr
	}
	if item == nil || !item.Active {
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, fmt.Errorf("no active item with id %d", itemID)
	}

	// Step 2: durable pessimistic sentinel.
	run, createErr := r.checkRuns.Create(item.ID)
	if createErr != nil {
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, createErr
	}

	// Step 3: remaining AI budget via read-time aggregation.
	spentToday, sumErr := r.checkRuns.SumAIEstimatedCostToday()
	if sumErr != nil {
		r.finalizeFailed(run, models.ErrCheckRunFailed)
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, sumErr
	}
	remainingBudget := r.dailyBudgetUSD - spentToday
	if remainingBudget < 0 {
		remainingBudget = 0
	}

	// Step 4: up to 4 prior snapshots from other active items on the same host.
	priorSnapshots, listErr := r.snapshots.ListRecentForHost(item.SiteHost, item.ID, 4)
	if listErr != nil {
		r.finalizeFailed(run, models.ErrCheckRunFailed)
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, listErr
	}
	aiHints := buildAIHints(priorSnapshots)

	// Step 5: invoke the extraction pipeline.
	attempt := r.pipeline.Run(item.URL, models.PipelineOptions{
		TimeoutMS:       r.scrapeTimeoutMS,
		AllowPlaywright: r.enablePlaywright,
		AllowAI:         remainingBudget > 0,
		Model:           r.model,
		AIHints:         aiHints,
	})

	run.UsedPlaywright = attempt.UsedPlaywright
	run.UsedAI = attempt.UsedAI
	run.TokenInput = attempt.TokenInput
	run.TokenOutput = attempt.TokenOutput
	run.EstimatedCostUSD = attempt.EstimatedCostUSD

	// Step 6: needs_review branch.
	if attempt.Status == models.ExtractionNeedsReview {
		status := models.RunFailed
		if isReviewableReason(attempt.Reason) {
			status = models.RunNeedsReview
		}
		run.Status = status
		run.ErrorCode = attempt.Reason
		if finalizeErr := r.checkRuns.Finalize(run); finalizeErr != nil {
			return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, finalizeErr
		}
		return models.CheckResult{Status: status, ErrorCode: attempt.Reason}, nil
	}

	// Step 7: success branch.
	prevSnapshot, prevErr := r.snapshots.GetLatest(item.ID)
	if prevErr != nil {
		r.finalizeFailed(run, models.ErrCheckRunFailed)
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, prevErr
	}

	snapshot := &models.PriceSnapshot{
		ItemID:           item.ID,
		ProductName:      attempt.Result.ProductName,
		PriceCents:       attempt.Result.PriceCents,
		InStock:          attempt.Result.InStock,
		StockState:       attempt.Result.StockState,
		ExtractionMethod: attempt.Result.Method,
		Confidence:       attempt.Result.Confidence,
		EvidenceJSON:     attempt.Result.Evidence,
		ContentHash:      attempt.Result.ContentHash,
	}
	created, createSnapErr := r.snapshots.Create(snapshot)
	if createSnapErr != nil {
		r.finalizeFailed(run, models.ErrCheckRunFailed)
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, createSnapErr
	}

	priceChanged := priceChangedBetween(prevSnapshot, created)
	backInStock := backInStockBetween(prevSnapshot, created)

	// Step 8: dispatch notifications, finalize as SUCCESS.
	if priceChanged {
		var oldPrice *int64
		if prevSnapshot != nil {
			oldPrice = prevSnapshot.PriceCents
		}
		if notifyErr := r.notifier.NotifyPriceChanged(item, created, oldPrice); notifyErr != nil {
			// webhook/claim failures are operator-visible via the notifications
			// table, not a check-run failure (spec.md §7: "locally-recovered").
			_ = notifyErr
		}
	}
	if backInStock {
		if notifyErr := r.notifier.NotifyBackInStock(item, created); notifyErr != nil {
			_ = notifyErr
		}
	}

	run.Status = models.RunSuccess
	if finalizeErr := r.checkRuns.Finalize(run); finalizeErr != nil {
		return models.CheckResult{Status: models.RunFailed, ErrorCode: models.ErrCheckRunFailed}, finalizeErr
	}

	return models.CheckResult{
		Status:       models.RunSuccess,
		Snapshot:     created,
		PriceChanged: priceChanged,
		BackInStock:  backInStock,
	}, nil
}

func (r *Runner) finalizeFailed(run *models.CheckRun, errorCode string) {
	run.Status = models.RunFailed
	run.ErrorCode = errorCode
	_ = r.checkRuns.Finalize(run)
}

// isReviewableReason implements spec.md §4.8 step 6's reason check: the
// reason must equal one of the four reviewable error codes.
func isReviewableReason(reason string) bool {
	switch reason {
	case models.ErrAIBudgetExceededOrOff, models.ErrLowConfidenceExtraction,
		models.ErrRegionalRedirectMismatch, models.ErrURLRedirectBlocked:
		return true
	}
	return false
}

// priceChangedBetween implements spec.md §4.8 step 7: both prices must be
// numeric and differ.
func priceChangedBetween(prev *models.PriceSnapshot, next *models.PriceSnapshot) bool {
	if prev == nil || prev.PriceCents == nil || next.PriceCents == nil {
		return false
	}
	return *prev.PriceCents != *next.PriceCents
}

// backInStockBetween implements spec.md §4.8 step 7: prev.inStock===false AND
// next.inStock===true.
func backInStockBetween(prev *models.PriceSnapshot, next *models.PriceSnapshot) bool {
	if prev == nil || prev.InStock == nil || next.InStock == nil {
		return false
	}
	return !*prev.InStock && *next.InStock
}

// buildAIHints formats prior-host snapshots as AiExtractor hint lines
// (spec.md §4.6: "name | price=X | stock=Y").
func buildAIHints(snapshots []models.PriceSnapshot) []string {
	hints := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		price := "unknown"
		if s.PriceCents != nil {
			price = fmt.Sprintf("%.2f", float64(*s.PriceCents)/100)
		}
		hints = append(hints, fmt.Sprintf("%s | price=%s | stock=%s", s.ProductName, price, s.StockState))
	}
	return hints
}
