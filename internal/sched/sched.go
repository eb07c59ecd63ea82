// Package sched runs the background jobs: periodic reconciliation, retry
// replay, and idle-session sweeps.
package sched

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner with per-job timeouts and error logging.
type Scheduler struct {
	cron *cron.Cron
}

// New returns a stopped scheduler.
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddEvery registers jobFunc to run every interval, bounded by timeout.
// Failures are logged under errMsg and retried on the next tick.
func (s *Scheduler) AddEvery(interval, timeout time.Duration, jobFunc func(context.Context) error, errMsg string) {
	_, _ = s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := jobFunc(ctx); err != nil {
			log.Printf("%s: %v", errMsg, err)
		}
	})
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
