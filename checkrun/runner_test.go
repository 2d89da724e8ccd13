package checkrun

import (
	"testing"

	"pricewatch/models"
)

type fakeItemStore struct {
	item *models.TrackedItem
}

func (f *fakeItemStore) GetByID(id int64) (*models.TrackedItem, error) { return f.item, nil }

type fakeSnapshotStore struct {
	latest  *models.PriceSnapshot
	created []*models.PriceSnapshot
	nextID  int64
}

func (f *fakeSnapshotStore) GetLatest(itemID int64) (*models.PriceSnapshot, error) {
	return f.latest, nil
}

func (f *fakeSnapshotStore) Create(s *models.PriceSnapshot) (*models.PriceSnapshot, error) {
	f.nextID++
	s.ID = f.nextID
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeSnapshotStore) ListRecentForHost(siteHost string, excludeItemID int64, limit int) ([]models.PriceSnapshot, error) {
	return nil, nil
}

type fakeCheckRunStore struct {
	createCalls   int
	finalizeCalls int
	spentToday    float64
	lastRun       *models.CheckRun
}

func (f *fakeCheckRunStore) Create(itemID int64) (*models.CheckRun, error) {
	f.createCalls++
	return &models.CheckRun{ID: int64(f.createCalls), ItemID: itemID, Status: models.RunFailed}, nil
}

func (f *fakeCheckRunStore) Finalize(run *models.CheckRun) error {
	f.finalizeCalls++
	f.lastRun = run
	return nil
}

func (f *fakeCheckRunStore) SumAIEstimatedCostToday() (float64, error) {
	return f.spentToday, nil
}

type fakeNotifier struct {
	priceChangedCalls int
	backInStockCalls  int
}

func (f *fakeNotifier) NotifyPriceChanged(item *models.TrackedItem, snapshot *models.PriceSnapshot, oldPriceCents *int64) error {
	f.priceChangedCalls++
	return nil
}

func (f *fakeNotifier) NotifyBackInStock(item *models.TrackedItem, snapshot *models.PriceSnapshot) error {
	f.backInStockCalls++
	return nil
}

type fakePipeline struct {
	attempt models.ExtractionAttempt
	lastOpts models.PipelineOptions
}

func (f *fakePipeline) Run(pageURL string, opts models.PipelineOptions) models.ExtractionAttempt {
	f.lastOpts = opts
	return f.attempt
}

func newTestItem() *models.TrackedItem {
	return &models.TrackedItem{ID: 1, URL: "https://shop.example.com/p/x", CanonicalURL: "https://shop.example.com/p/x", SiteHost: "shop.example.com", Active: true}
}

func ptrInt64(v int64) *int64 { return &v }
func ptrBool(v bool) *bool    { return &v }

// TestRunnerExactlyOneCheckRunCreated covers spec.md §8's "exactly one
// CheckRun is created per runCheckForItem invocation" invariant.
func TestRunnerExactlyOneCheckRunCreated(t *testing.T) {
	checkRuns := &fakeCheckRunStore{}
	p := &fakePipeline{attempt: models.ExtractionAttempt{
		Status: models.ExtractionSuccess,
		Result: &models.ExtractResult{ProductName: "Widget", PriceCents: ptrInt64(999), InStock: ptrBool(true), StockState: models.StockInStock, Confidence: 0.9},
	}}
	r := NewRunner(&fakeItemStore{item: newTestItem()}, &fakeSnapshotStore{}, checkRuns, &fakeNotifier{}, p, 1.0, true, 20000, "gpt-5-mini")

	if _, err := r.Run(1); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if checkRuns.createCalls != 1 {
		t.Errorf("Create called %d times, want 1", checkRuns.createCalls)
	}
	if checkRuns.finalizeCalls != 1 {
		t.Errorf("Finalize called %d times, want 1", checkRuns.finalizeCalls)
	}
}

// TestRunnerSuccessCreatesExactlyOneSnapshot covers spec.md §8's "on success,
// exactly one PriceSnapshot is created" invariant.
func TestRunnerSuccessCreatesExactlyOneSnapshot(t *testing.T) {
	snapshots := &fakeSnapshotStore{}
	p := &fakePipeline{attempt: models.ExtractionAttempt{
		Status: models.ExtractionSuccess,
		Result: &models.ExtractResult{ProductName: "Widget", PriceCents: ptrInt64(999), InStock: ptrBool(true), StockState: models.StockInStock, Confidence: 0.9},
	}}
	r := NewRunner(&fakeItemStore{item: newTestItem()}, snapshots, &fakeCheckRunStore{}, &fakeNotifier{}, p, 1.0, true, 20000, "gpt-5-mini")

	result, err := r.Run(1)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.RunSuccess {
		t.Fatalf("Status = %v, want SUCCESS", result.Status)
	}
	if len(snapshots.created) != 1 {
		t.Errorf("snapshots created = %d, want 1", len(snapshots.created))
	}
}

// TestRunnerNeedsReviewCreatesNoSnapshot covers spec.md §8's "no snapshot is
// created on non-success" invariant.
func TestRunnerNeedsReviewCreatesNoSnapshot(t *testing.T) {
	snapshots := &fakeSnapshotStore{}
	p := &fakePipeline{attempt: models.ExtractionAttempt{
		Status: models.ExtractionNeedsReview,
		Reason: models.ErrLowConfidenceExtraction,
	}}
	checkRuns := &fakeCheckRunStore{}
	r := NewRunner(&fakeItemStore{item: newTestItem()}, snapshots, checkRuns, &fakeNotifier{}, p, 1.0, true, 20000, "gpt-5-mini")

	result, err := r.Run(1)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.RunNeedsReview {
		t.Fatalf("Status = %v, want NEEDS_REVIEW", result.Status)
	}
	if len(snapshots.created) != 0 {
		t.Errorf("snapshots created = %d, want 0", len(snapshots.created))
	}
	if checkRuns.lastRun.Status != models.RunNeedsReview {
		t.Errorf("finalized run status = %v, want NEEDS_REVIEW", checkRuns.lastRun.Status)
	}
}

// TestRunnerBackInStockTransition covers spec.md §8 scenario 5: prior
// snapshot inStock=false, current inStock=true with a price, prior price
// null -> BACK_IN_STOCK fires, PRICE_CHANGED does not (no numeric prior price).
func TestRunnerBackInStockTransition(t *testing.T) {
	prev := &models.PriceSnapshot{ID: 10, ItemID: 1, InStock: ptrBool(false), PriceCents: nil}
	snapshots := &fakeSnapshotStore{latest: prev}
	notifier := &fakeNotifier{}
	p := &fakePipeline{attempt: models.ExtractionAttempt{
		Status: models.ExtractionSuccess,
		Result: &models.ExtractResult{ProductName: "Widget", PriceCents: ptrInt64(14999), InStock: ptrBool(true), StockState: models.StockInStock, Confidence: 0.9},
	}}
	r := NewRunner(&fakeItemStore{item: newTestItem()}, snapshots, &fakeCheckRunStore{}, notifier, p, 1.0, true, 20000, "gpt-5-mini")

	result, err := r.Run(1)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.BackInStock {
		t.Error("BackInStock = false, want true")
	}
	if result.PriceChanged {
		t.Error("PriceChanged = true, want false (prior price was null)")
	}
	if notifier.backInStockCalls != 1 {
		t.Errorf("NotifyBackInStock called %d times, want 1", notifier.backInStockCalls)
	}
	if notifier.priceChangedCalls != 0 {
		t.Errorf("NotifyPriceChanged called %d times, want 0", notifier.priceChangedCalls)
	}
}

// TestRunnerAIBudgetExhausted covers spec.md §8 scenario 6: low-confidence
// extraction with allowAi computed false (budget exhausted) -> NEEDS_REVIEW
// with AI_BUDGET_EXCEEDED_OR_DISABLED, no snapshot.
func TestRunnerAIBudgetExhausted(t *testing.T) {
	snapshots := &fakeSnapshotStore{}
	checkRuns := &fakeCheckRunStore{spentToday: 5.00} // already over the 1.00 daily budget
	p := &fakePipeline{attempt: models.ExtractionAttempt{
		Status: models.ExtractionNeedsReview,
		Reason: models.ErrAIBudgetExceededOrOff,
	}}
	r := NewRunner(&fakeItemStore{item: newTestItem()}, snapshots, checkRuns, &fakeNotifier{}, p, 1.0, true, 20000, "gpt-5-mini")

	result, err := r.Run(1)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Status != models.RunNeedsReview || result.ErrorCode != models.ErrAIBudgetExceededOrOff {
		t.Fatalf("got status=%v errorCode=%v, want NEEDS_REVIEW/%s", result.Status, result.ErrorCode, models.ErrAIBudgetExceededOrOff)
	}
	if len(snapshots.created) != 0 {
		t.Errorf("snapshots created = %d, want 0", len(snapshots.created))
	}
	if p.lastOpts.AllowAI {
		t.Error("AllowAI = true, want false (budget exhausted)")
	}
}

// TestRunnerFailsFastWhenItemMissing covers spec.md §4.8 step 1.
func TestRunnerFailsFastWhenItemMissing(t *testing.T) {
	checkRuns := &fakeCheckRunStore{}
	p := &fakePipeline{}
	r := NewRunner(&fakeItemStore{item: nil}, &fakeSnapshotStore{}, checkRuns, &fakeNotifier{}, p, 1.0, true, 20000, "gpt-5-mini")

	result, err := r.Run(999)
	if err == nil {
		t.Fatal("expected an error for a missing item")
	}
	if result.Status != models.RunFailed {
		t.Errorf("Status = %v, want FAILED", result.Status)
	}
	if checkRuns.createCalls != 0 {
		t.Errorf("Create called %d times, want 0 (fail-fast before sentinel row)", checkRuns.createCalls)
	}
}
