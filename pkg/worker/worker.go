// Package worker implements the Worker Runtime (C6): a concurrency-capped
// pool that claims SCHEDULED jobs from the Job Store, dispatches them to
// registered task handlers under a per-job timeout, and reschedules or
// dead-letters on failure. Grounded on the teacher's pkg/queue/pool.go and
// pkg/queue/worker.go poll loop, generalized from ent-backed AlertSession
// polling to pkg/jobs.Store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/buffer"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
)

// ErrNoJobsAvailable indicates nothing was eligible to claim this poll.
var ErrNoJobsAvailable = errors.New("worker: no jobs available")

// ErrAtCapacity indicates the concurrency cap is reached.
var ErrAtCapacity = errors.New("worker: at capacity")

// CancelToken is handed to task handlers for cooperative cancellation,
// mirroring the spec's "handlers receive a cancellation token" contract
// (§4.6) distinct from ctx.Err() alone so handlers can check it at tool/turn
// boundaries without depending on context internals.
type CancelToken struct {
	ctx context.Context
}

// Cancelled reports whether the runtime has asked this handler to stop.
func (c CancelToken) Cancelled() bool { return c.ctx.Err() != nil }

// Done returns the underlying done channel for select loops.
func (c CancelToken) Done() <-chan struct{} { return c.ctx.Done() }

// Handler executes one job's task. Implementations should append a final
// CHECKPOINT to the job's Event Buffer before returning when cancelled, if
// safe to resume from. The returned result is stored verbatim on COMPLETED.
type Handler func(ctx context.Context, job jobs.Job, cancel CancelToken) (result interface{}, err error)

// Config configures the runtime (spec §4.6: "concurrency cap, task list,
// cron entries" — cron entries live in pkg/worker/cron.go).
type Config struct {
	Concurrency        int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	JobTimeout         time.Duration
	HeartbeatInterval  time.Duration
	BufferBaseDir      string
}

// DefaultConfig mirrors the teacher's QueueConfig defaults in spirit.
func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		PollInterval:       500 * time.Millisecond,
		PollIntervalJitter: 150 * time.Millisecond,
		JobTimeout:         5 * time.Minute,
		HeartbeatInterval:  15 * time.Second,
	}
}

// Runtime is the Worker Runtime.
type Runtime struct {
	cfg      Config
	store    *jobs.Store
	handlers map[string]Handler

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	started bool
	stopCh  chan struct{}
	stopOne sync.Once
	wg      sync.WaitGroup

	log *slog.Logger
}

// New creates a Worker Runtime over store. Register handlers with
// RegisterHandler before calling Start.
func New(cfg Config, store *jobs.Store) *Runtime {
	return &Runtime{
		cfg:      cfg,
		store:    store,
		handlers: make(map[string]Handler),
		active:   make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
		log:      slog.With("component", "worker"),
	}
}

// RegisterHandler binds a task name (the job payload's Type tag) to a
// Handler. Must be called before Start.
func (r *Runtime) RegisterHandler(taskName string, h Handler) {
	r.handlers[taskName] = h
}

// Start launches cfg.Concurrency polling goroutines.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.log.Info("worker runtime starting", "concurrency", r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		r.wg.Add(1)
		id := fmt.Sprintf("worker-%d", i)
		go r.run(ctx, id)
	}
}

// StopGracefully stops dequeueing new jobs, lets in-flight handlers finish
// up to deadline, then cancels their contexts.
func (r *Runtime) StopGracefully(deadline time.Duration) {
	r.stopOne.Do(func() { close(r.stopCh) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("worker runtime stopped gracefully")
	case <-time.After(deadline):
		r.log.Warn("worker runtime shutdown deadline exceeded, cancelling in-flight jobs")
		r.mu.Lock()
		for _, cancel := range r.active {
			cancel()
		}
		r.mu.Unlock()
		<-done
	}
}

func (r *Runtime) run(ctx context.Context, id string) {
	defer r.wg.Done()
	log := r.log.With("worker_id", id)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := r.pollAndProcess(ctx, id); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, ErrAtCapacity) {
					r.sleep(r.pollInterval())
					continue
				}
				log.Error("job processing error", "error", err)
				r.sleep(time.Second)
			}
		}
	}
}

func (r *Runtime) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}

func (r *Runtime) pollInterval() time.Duration {
	base, jitter := r.cfg.PollInterval, r.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (r *Runtime) pollAndProcess(ctx context.Context, workerID string) error {
	r.mu.Lock()
	if len(r.active) >= r.cfg.Concurrency {
		r.mu.Unlock()
		return ErrAtCapacity
	}
	r.mu.Unlock()

	job, err := r.store.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoRowsClaimed) {
			return ErrNoJobsAvailable
		}
		return err
	}

	log := r.log.With("job_id", job.ID, "worker_id", workerID, "task", job.Payload.Type)
	log.Info("job claimed")

	handler, ok := r.handlers[job.Payload.Type]
	if !ok {
		log.Error("no handler registered for task", "task", job.Payload.Type)
		r.fail(ctx, job, ctlerrors.Permanent, "unregistered_task", fmt.Sprintf("no handler for %q", job.Payload.Type))
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.timeoutFor(job))
	r.mu.Lock()
	r.active[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.active, job.ID)
		r.mu.Unlock()
	}()

	heartbeatCtx, cancelHB := context.WithCancel(jobCtx)
	go r.runHeartbeat(heartbeatCtx, job.ID)

	result, runErr := handler(jobCtx, job, CancelToken{ctx: jobCtx})
	cancelHB()

	if runErr != nil {
		kind := ctlerrors.Classify(runErr)
		r.fail(context.Background(), job, kind, string(kind), runErr.Error())
		log.Warn("job failed", "classification", kind, "error", runErr)
		return nil
	}

	if err := r.store.Complete(context.Background(), job.ID, result); err != nil {
		log.Error("failed to record completion", "error", err)
		return err
	}
	log.Info("job completed")
	return nil
}

func (r *Runtime) timeoutFor(job jobs.Job) time.Duration {
	if job.TimeoutSeconds > 0 {
		return time.Duration(job.TimeoutSeconds) * time.Second
	}
	return r.cfg.JobTimeout
}

func (r *Runtime) runHeartbeat(ctx context.Context, jobID string) {
	interval := r.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Heartbeat(ctx, jobID); err != nil {
				r.log.Warn("heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (r *Runtime) fail(ctx context.Context, job jobs.Job, kind ctlerrors.Classification, errKind, errMsg string) {
	// UNKNOWN gets one retry: a second consecutive UNKNOWN failure is
	// treated as PERMANENT so the job dead-letters.
	if kind == ctlerrors.Unknown && job.ErrorKind == string(ctlerrors.Unknown) {
		kind = ctlerrors.Permanent
	}
	retry, err := jobs.Fail(ctx, r.store.Repo(), job.ID, job.Attempt, job.MaxAttempts, kind, errKind, errMsg,
		1*time.Second, 5*time.Minute)
	if err != nil {
		r.log.Error("failed to record job failure", "job_id", job.ID, "error", err)
		return
	}
	r.log.Info("job failure recorded", "job_id", job.ID, "next_status", retry.Status, "delay", retry.Delay)
}

// RecoverFromCheckpoint implements the spec's checkpoint recovery
// preference: the buffer's last checkpoint is authoritative if its CRC
// matches, otherwise the store's checkpoint is used. Handlers call this at
// the start of execution to resume cooperatively.
func RecoverFromCheckpoint(bufBaseDir, jobID string, storeChecksum []byte) (buffer.Recovery, bool, error) {
	rec, err := buffer.Recover(bufBaseDir, jobID)
	if err != nil {
		return buffer.Recovery{}, false, err
	}
	if rec.LastCheckpoint != nil && buffer.VerifyCRC(*rec.LastCheckpoint) {
		return rec, true, nil
	}
	return rec, false, nil
}
