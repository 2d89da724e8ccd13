// Package scheduler wires the daily price-check sweep to a cron trigger
// (spec.md §4.9, §6 "CHECK_SCHEDULE_CRON"/"WORKER_RUN_ON_BOOT").
package scheduler

import (
	"log"

	"github.com/robfig/cron/v3"

	"pricewatch/checkrun"
)

// Scheduler drives checkrun.Sweep on a cron schedule. Grounded on the
// teacher's PriceChecker (price_checker.go): same cron.New()+AddFunc+Start
// shape and the same "also run once on startup" convenience, generalized
// from the teacher's fixed 12-hour interval to the spec's configurable
// CHECK_SCHEDULE_CRON expression.
type Scheduler struct {
	cron  *cron.Cron
	sweep *checkrun.Sweep
}

func NewScheduler(sweep *checkrun.Sweep) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		sweep: sweep,
	}
}

// Start schedules the sweep on cronExpr and, if runOnBoot is set, kicks off
// one sweep immediately in the background.
func (s *Scheduler) Start(cronExpr string, runOnBoot bool) error {
	if _, err := s.cron.AddFunc(cronExpr, s.runSweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("scheduler: daily sweep scheduled (%s)", cronExpr)

	if runOnBoot {
		go s.runSweep()
	}
	return nil
}

// Stop halts the cron scheduler. In-flight sweeps are not interrupted.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) runSweep() {
	log.Println("scheduler: starting daily sweep")
	result, err := s.sweep.Run()
	if err != nil {
		log.Printf("scheduler: sweep failed: %v", err)
		return
	}
	log.Printf("scheduler: sweep complete attempted=%d succeeded=%d needsReview=%d failed=%d",
		result.Attempted, result.Succeeded, result.NeedsReview, result.Failed)
}
