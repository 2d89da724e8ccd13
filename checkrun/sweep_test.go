package checkrun

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricewatch/models"
)

type fakeActiveItemLister struct {
	items []models.TrackedItem
}

func (f *fakeActiveItemLister) ListActive(limit int) ([]models.TrackedItem, error) {
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

type fakeChecker struct {
	inFlight    int32
	maxInFlight int32
	calls       int32
	mu          sync.Mutex
	statusFor   func(itemID int64) models.CheckRunStatus
}

func (f *fakeChecker) Run(itemID int64) (models.CheckResult, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	if cur > f.maxInFlight {
		f.maxInFlight = cur
	}
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	status := models.RunSuccess
	if f.statusFor != nil {
		status = f.statusFor(itemID)
	}
	return models.CheckResult{Status: status}, nil
}

func makeItems(n int) []models.TrackedItem {
	items := make([]models.TrackedItem, n)
	for i := range items {
		items[i] = models.TrackedItem{ID: int64(i + 1), Active: true}
	}
	return items
}

// TestSweepRespectsConcurrencyLimit covers spec.md §4.9's "global concurrency
// limit of 3 in-flight checks".
func TestSweepRespectsConcurrencyLimit(t *testing.T) {
	checker := &fakeChecker{}
	sweep := NewSweep(&fakeActiveItemLister{items: makeItems(40)}, checker)

	result, err := sweep.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Attempted != 40 {
		t.Errorf("Attempted = %d, want 40", result.Attempted)
	}
	if checker.maxInFlight > sweepConcurrency {
		t.Errorf("observed %d in-flight checks, want <= %d", checker.maxInFlight, sweepConcurrency)
	}
}

// TestSweepCapsAtItemLimit covers spec.md §4.9's 200-item cap.
func TestSweepCapsAtItemLimit(t *testing.T) {
	checker := &fakeChecker{}
	sweep := NewSweep(&fakeActiveItemLister{items: makeItems(250)}, checker)

	result, err := sweep.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Attempted != sweepItemLimit {
		t.Errorf("Attempted = %d, want %d", result.Attempted, sweepItemLimit)
	}
}

// TestSweepTalliesOutcomes checks the per-status counters used for
// diagnostics reflect each item's terminal CheckRun status.
func TestSweepTalliesOutcomes(t *testing.T) {
	checker := &fakeChecker{statusFor: func(itemID int64) models.CheckRunStatus {
		switch itemID % 3 {
		case 0:
			return models.RunFailed
		case 1:
			return models.RunNeedsReview
		default:
			return models.RunSuccess
		}
	}}
	sweep := NewSweep(&fakeActiveItemLister{items: makeItems(9)}, checker)

	result, err := sweep.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Succeeded+result.Failed+result.NeedsReview != result.Attempted {
		t.Errorf("counters do not sum to attempted: %+v", result)
	}
	if result.Succeeded != 3 || result.Failed != 3 || result.NeedsReview != 3 {
		t.Errorf("got %+v, want 3 succeeded, 3 failed, 3 needs review", result)
	}
}
