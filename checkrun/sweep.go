package checkrun

import (
	"sync"

	"pricewatch/models"
)

const (
	sweepItemLimit   = 200
	sweepBatchSize   = 25
	sweepConcurrency = 3
)

type activeItemLister interface {
	ListActive(limit int) ([]models.TrackedItem, error)
}

type checker interface {
	Run(itemID int64) (models.CheckResult, error)
}

// Sweep implements spec.md §4.9: load up to 200 active items, process in
// sequential batches of 25, with a global concurrency limit of 3 in-flight
// checks. Grounded on the teacher's scheduler package's batch-plus-worker-pool
// shape for its own price-check cron job, generalized to a plain semaphore
// since the teacher's retry/task-manager machinery has no equivalent here
// (spec.md §4.9: "no per-item retry").
type Sweep struct {
	items  activeItemLister
	runner checker
}

func NewSweep(items activeItemLister, runner checker) *Sweep {
	return &Sweep{items: items, runner: runner}
}

// SweepResult summarizes one DailySweep pass for logging/diagnostics.
type SweepResult struct {
	Attempted   int
	Succeeded   int
	Failed      int
	NeedsReview int
}

// Run executes one full sweep over active items.
func (s *Sweep) Run() (SweepResult, error) {
	active, err := s.items.ListActive(sweepItemLimit)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	var mu sync.Mutex

	for batchStart := 0; batchStart < len(active); batchStart += sweepBatchSize {
		batchEnd := batchStart + sweepBatchSize
		if batchEnd > len(active) {
			batchEnd = len(active)
		}
		batch := active[batchStart:batchEnd]

		sem := make(chan struct{}, sweepConcurrency)
		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(itemID int64) {
				defer wg.Done()
				defer func() { <-sem }()

				checkResult, runErr := s.runner.Run(itemID)

				mu.Lock()
				result.Attempted++
				switch {
				case runErr != nil || checkResult.Status == models.RunFailed:
					result.Failed++
				case checkResult.Status == models.RunNeedsReview:
					result.NeedsReview++
				case checkResult.Status == models.RunSuccess:
					result.Succeeded++
				}
				mu.Unlock()
			}(item.ID)
		}
		wg.Wait()
	}

	return result, nil
}
