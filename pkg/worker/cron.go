package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTask is one scheduled maintenance job (approval expiry, orphan
// reclaim, retention sweep). robfig/cron/v3's default scheduler can
// re-enter a job if a run overruns its tick; coalescing is handled here
// with a per-task mutex so at most one run of a given task is ever active
// and the next tick that finds one in flight is simply skipped (missed
// ticks coalesce, spec §4.6).
type CronTask struct {
	Name string
	Spec string // standard 5-field cron expression
	Run  func(ctx context.Context) error
}

// CronScheduler wraps robfig/cron/v3 with the runtime's single-flight and
// logging conventions.
type CronScheduler struct {
	c   *cron.Cron
	log *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewCronScheduler builds a scheduler. Stop ends scheduling; the ctx given
// to Register is only passed through to each task run.
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		c:       cron.New(),
		log:     slog.With("component", "worker_cron"),
		running: make(map[string]bool),
	}
}

// Register adds a task. Call before Start.
func (s *CronScheduler) Register(ctx context.Context, task CronTask) error {
	_, err := s.c.AddFunc(task.Spec, func() { s.runOnce(ctx, task) })
	return err
}

func (s *CronScheduler) runOnce(ctx context.Context, task CronTask) {
	s.mu.Lock()
	if s.running[task.Name] {
		s.mu.Unlock()
		s.log.Debug("cron tick skipped, previous run still active", "task", task.Name)
		return
	}
	s.running[task.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[task.Name] = false
		s.mu.Unlock()
	}()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		s.log.Error("cron task failed", "task", task.Name, "error", err, "elapsed", time.Since(start))
		return
	}
	s.log.Debug("cron task completed", "task", task.Name, "elapsed", time.Since(start))
}

// Start begins the scheduler.
func (s *CronScheduler) Start() { s.c.Start() }

// Stop stops the scheduler and waits for in-flight runs to return.
func (s *CronScheduler) Stop() { <-s.c.Stop().Done() }
