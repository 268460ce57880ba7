// Package jobs implements the Job Store (C5): the durable job state
// machine, retry/backoff scheduling, and checkpoint handling, on top of
// internal/store's pgx repository. Grounded on the teacher's
// pkg/queue/orphan.go stale-heartbeat reclaim and claimNextSession pattern.
package jobs

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/internal/store"
)

// Status is a Job's status, mirroring spec §3.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusScheduled  Status = "SCHEDULED"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusDeadLetter Status = "DEAD_LETTER"
)

// Job is the domain view of a job, decoded from its store.JobRow.
type Job struct {
	ID                string
	AgentID           string
	SessionID         string
	Status            Status
	Priority          int
	Attempt           int
	MaxAttempts       int
	TimeoutSeconds    int
	Payload           Payload
	Result            json.RawMessage
	ErrorKind         string
	ErrorMessage      string
	HeartbeatAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store is the Job Store facade used by the Worker Runtime and Request
// Router.
type Store struct {
	repo *store.JobRepository
}

// New wraps a store.JobRepository.
func New(repo *store.JobRepository) *Store {
	return &Store{repo: repo}
}

// Submit creates a new job in PENDING status and immediately transitions it
// to SCHEDULED, matching the Message Dispatcher's §4.11 step 5.
func (s *Store) Submit(ctx context.Context, agentID, sessionID string, priority, maxAttempts, timeoutSeconds int, payload Payload) (Job, error) {
	raw, err := payload.Marshal()
	if err != nil {
		return Job{}, ctlerrors.WithClassification(err, ctlerrors.Permanent)
	}

	row := store.JobRow{
		ID: uuid.NewString(), AgentID: agentID, Status: "PENDING",
		Priority: priority, MaxAttempts: maxAttempts, TimeoutSeconds: timeoutSeconds, Payload: raw,
	}
	if sessionID != "" {
		row.SessionID = &sessionID
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return Job{}, err
	}

	// PENDING -> SCHEDULED (spec §4.11 step 5 / §4.5 transition table).
	if err := s.schedule(ctx, row.ID); err != nil {
		return Job{}, err
	}

	return s.Get(ctx, row.ID)
}

func (s *Store) schedule(ctx context.Context, id string) error {
	// Reuses FailAndReschedule to move the freshly inserted PENDING row to
	// SCHEDULED (attempt 0, no attempt ceiling, empty error kind and
	// message); ClaimNext only picks up SCHEDULED rows.
	_, err := s.repo.FailAndReschedule(ctx, id, 0, math.MaxInt32, "", "")
	return err
}

func decodeJob(row store.JobRow) (Job, error) {
	var payload Payload
	if len(row.Payload) > 0 {
		if err := payload.Unmarshal(row.Payload); err != nil {
			return Job{}, err
		}
	}
	j := Job{
		ID: row.ID, AgentID: row.AgentID, Status: Status(row.Status), Priority: row.Priority,
		Attempt: row.Attempt, MaxAttempts: row.MaxAttempts, TimeoutSeconds: row.TimeoutSeconds,
		Payload: payload, Result: row.Result, HeartbeatAt: row.HeartbeatAt,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if row.SessionID != nil {
		j.SessionID = *row.SessionID
	}
	if row.ErrorKind != nil {
		j.ErrorKind = *row.ErrorKind
	}
	if row.ErrorMessage != nil {
		j.ErrorMessage = *row.ErrorMessage
	}
	return j, nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return decodeJob(row)
}

// List lists jobs by status (empty = all).
func (s *Store) List(ctx context.Context, status Status, limit int) ([]Job, error) {
	rows, err := s.repo.List(ctx, store.JobStatus(status), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(rows))
	for _, row := range rows {
		j, err := decodeJob(row)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// ClaimNext transactionally claims the next SCHEDULED job (priority, then
// age order) and marks it RUNNING with a fresh heartbeat.
func (s *Store) ClaimNext(ctx context.Context) (Job, error) {
	row, err := s.repo.ClaimNext(ctx)
	if err != nil {
		return Job{}, err
	}
	return decodeJob(row)
}

// Heartbeat refreshes a RUNNING job's heartbeat timestamp.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	return s.repo.Heartbeat(ctx, id)
}

// Complete marks a job COMPLETED with result.
func (s *Store) Complete(ctx context.Context, id string, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return ctlerrors.FailedTo("jobs", "marshal result", err)
	}
	return s.repo.Complete(ctx, id, raw)
}

// Retry is the outcome of Fail: whether the job was rescheduled or sent to
// the dead letter, and the computed backoff delay (zero for dead-letter).
type Retry struct {
	Status Status
	Delay  time.Duration
}

// Fail records a failure for job id at the given attempt with classify. If
// classify is Permanent, or attempt has reached maxAttempts, the job moves
// to DEAD_LETTER; otherwise it moves to SCHEDULED after a jittered
// exponential backoff (spec §4.5: min(max_delay, base*2^(attempt-1)) ±20%).
func Fail(ctx context.Context, repo *store.JobRepository, id string, attempt, maxAttempts int, classify ctlerrors.Classification, errKind, errMsg string, baseDelay, maxDelay time.Duration) (Retry, error) {
	nextAttempt := attempt + 1
	forceDeadLetter := !classify.Retriable()

	effectiveMax := maxAttempts
	if forceDeadLetter {
		effectiveMax = attempt // nextAttempt (attempt+1) > effectiveMax forces DEAD_LETTER below
	}

	status, err := repo.FailAndReschedule(ctx, id, nextAttempt, effectiveMax, errKind, errMsg)
	if err != nil {
		return Retry{}, err
	}

	result := Retry{Status: Status(status)}
	if status == "SCHEDULED" {
		result.Delay = BackoffDelay(nextAttempt, baseDelay, maxDelay)
	}
	return result, nil
}

// BackoffDelay computes min(maxDelay, baseDelay*2^(attempt-1)) jittered by
// up to ±20%, per spec §4.5.
func BackoffDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	raw := float64(baseDelay) * math.Pow(2, float64(attempt-1))
	if raw > float64(maxDelay) {
		raw = float64(maxDelay)
	}
	jitterRange := raw * 0.4 // ±20% => total spread 40% of raw
	jitter := (secureRandFloat() - 0.5) * jitterRange
	delay := raw + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func secureRandFloat() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / float64(int64(1)<<53)
}

// ReclaimStaleHeartbeats moves stale RUNNING jobs back to SCHEDULED.
func (s *Store) ReclaimStaleHeartbeats(ctx context.Context, threshold time.Duration) ([]string, error) {
	return s.repo.ReclaimStaleHeartbeats(ctx, threshold)
}

// SaveCheckpoint persists checkpoint with its CRC.
func (s *Store) SaveCheckpoint(ctx context.Context, id string, checkpoint interface{}, crc int64) error {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return ctlerrors.FailedTo("jobs", "marshal checkpoint", err)
	}
	return s.repo.SaveCheckpoint(ctx, id, raw, crc)
}

// Repo exposes the underlying repository for callers (e.g. pkg/worker) that
// need the lower-level Fail API.
func (s *Store) Repo() *store.JobRepository { return s.repo }
