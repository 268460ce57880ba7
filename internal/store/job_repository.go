package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// JobStatus mirrors pkg/jobs.Status without importing it, to keep this
// package free of domain vocabulary beyond raw strings (per spec §9's
// "capability-narrowed interfaces... keep the core free of
// database-specific vocabulary" — applied symmetrically here so the store
// stays free of upper-layer vocabulary too).
type JobStatus string

// JobRow is the raw persisted shape of a job row.
type JobRow struct {
	ID                string
	AgentID           string
	SessionID         *string
	Status            JobStatus
	Priority          int
	Attempt           int
	MaxAttempts       int
	TimeoutSeconds    int
	Payload           json.RawMessage
	Result            json.RawMessage
	ErrorKind         *string
	ErrorMessage      *string
	Checkpoint        json.RawMessage
	CheckpointCRC     *int64
	HeartbeatAt       *time.Time
	ApprovalExpiresAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrNoRowsClaimed is returned by ClaimNext when no eligible job exists.
var ErrNoRowsClaimed = errors.New("store: no rows claimed")

// JobRepository persists Job Store (C5) state.
type JobRepository struct {
	pool *pgxpool.Pool
}

// Insert creates a new job row in PENDING status.
func (r *JobRepository) Insert(ctx context.Context, job JobRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, agent_id, session_id, status, priority, attempt, max_attempts,
			timeout_seconds, payload, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())`,
		job.ID, job.AgentID, job.SessionID, job.Status, job.Priority, job.Attempt,
		job.MaxAttempts, job.TimeoutSeconds, job.Payload)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "insert job", job.ID, err)
	}
	return nil
}

// Get fetches a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (JobRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, agent_id, session_id, status, priority, attempt, max_attempts, timeout_seconds,
			payload, result, error_kind, error_message, checkpoint, checkpoint_crc,
			heartbeat_at, approval_expires_at, created_at, updated_at
		FROM jobs WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanJobRow(row)
}

func scanJobRow(row pgx.Row) (JobRow, error) {
	var j JobRow
	err := row.Scan(&j.ID, &j.AgentID, &j.SessionID, &j.Status, &j.Priority, &j.Attempt,
		&j.MaxAttempts, &j.TimeoutSeconds, &j.Payload, &j.Result, &j.ErrorKind, &j.ErrorMessage,
		&j.Checkpoint, &j.CheckpointCRC, &j.HeartbeatAt, &j.ApprovalExpiresAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobRow{}, ErrNotFound
	}
	if err != nil {
		return JobRow{}, ctlerrors.FailedTo("store", "scan job row", err)
	}
	return j, nil
}

// List returns jobs, optionally filtered by status, newest first.
func (r *JobRepository) List(ctx context.Context, status JobStatus, limit int) ([]JobRow, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = r.pool.Query(ctx, `
			SELECT id, agent_id, session_id, status, priority, attempt, max_attempts, timeout_seconds,
				payload, result, error_kind, error_message, checkpoint, checkpoint_crc,
				heartbeat_at, approval_expires_at, created_at, updated_at
			FROM jobs WHERE status = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT $2`, status, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, agent_id, session_id, status, priority, attempt, max_attempts, timeout_seconds,
				payload, result, error_kind, error_message, checkpoint, checkpoint_crc,
				heartbeat_at, approval_expires_at, created_at, updated_at
			FROM jobs WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, ctlerrors.FailedTo("store", "list jobs", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ClaimNext transactionally claims the highest-priority, oldest SCHEDULED
// job using SELECT ... FOR UPDATE SKIP LOCKED, sets it RUNNING with a fresh
// heartbeat, and returns it. Ported from the teacher's
// pkg/queue/worker.go claimNextSession to raw SQL. Returns ErrNoRowsClaimed
// if nothing is eligible.
func (r *JobRepository) ClaimNext(ctx context.Context) (JobRow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return JobRow{}, ctlerrors.FailedTo("store", "begin claim tx", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, agent_id, session_id, status, priority, attempt, max_attempts, timeout_seconds,
			payload, result, error_kind, error_message, checkpoint, checkpoint_crc,
			heartbeat_at, approval_expires_at, created_at, updated_at
		FROM jobs
		WHERE status = 'SCHEDULED' AND deleted_at IS NULL
		ORDER BY priority ASC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`)
	j, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return JobRow{}, ErrNoRowsClaimed
		}
		return JobRow{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE jobs SET status = 'RUNNING', heartbeat_at = now(), updated_at = now() WHERE id = $1`, j.ID); err != nil {
		return JobRow{}, ctlerrors.FailedToWithDetails("store", "mark job running", j.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return JobRow{}, ctlerrors.FailedTo("store", "commit claim tx", err)
	}

	j.Status = "RUNNING"
	return j, nil
}

// Heartbeat bumps heartbeat_at for a RUNNING job.
func (r *JobRepository) Heartbeat(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs SET heartbeat_at = now(), updated_at = now() WHERE id = $1 AND status = 'RUNNING'`, id)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "heartbeat", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete marks a job COMPLETED with the given result.
func (r *JobRepository) Complete(ctx context.Context, id string, result json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `UPDATE jobs SET status = 'COMPLETED', result = $2, updated_at = now() WHERE id = $1`, id, result)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "complete job", id, err)
	}
	return nil
}

// FailAndReschedule records a failure. If attempt < max_attempts, moves to
// SCHEDULED with attempt incremented (caller computes the attempt value and
// the backoff is applied by the Worker Runtime, not here); otherwise moves
// to DEAD_LETTER.
func (r *JobRepository) FailAndReschedule(ctx context.Context, id string, nextAttempt int, maxAttempts int, kind, message string) (JobStatus, error) {
	next := JobStatus("SCHEDULED")
	if nextAttempt > maxAttempts {
		next = "DEAD_LETTER"
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempt = $3, error_kind = $4, error_message = $5, heartbeat_at = NULL, updated_at = now()
		WHERE id = $1`, id, next, nextAttempt, kind, message)
	if err != nil {
		return "", ctlerrors.FailedToWithDetails("store", "fail job", id, err)
	}
	return next, nil
}

// ReclaimStaleHeartbeats moves any RUNNING job whose heartbeat is older than
// threshold back to SCHEDULED with attempt unchanged, and returns the
// affected job ids (process-crash recovery, spec §4.5/§4.6).
func (r *JobRepository) ReclaimStaleHeartbeats(ctx context.Context, threshold time.Duration) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE jobs
		SET status = 'SCHEDULED', heartbeat_at = NULL, updated_at = now()
		WHERE status = 'RUNNING' AND (heartbeat_at IS NULL OR heartbeat_at < now() - $1::interval)
		RETURNING id`, threshold.String())
	if err != nil {
		return nil, ctlerrors.FailedTo("store", "reclaim stale heartbeats", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveCheckpoint persists the job's resumable checkpoint state and CRC.
func (r *JobRepository) SaveCheckpoint(ctx context.Context, id string, checkpoint json.RawMessage, crc int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE jobs SET checkpoint = $2, checkpoint_crc = $3, updated_at = now() WHERE id = $1`, id, checkpoint, crc)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "save checkpoint", id, err)
	}
	return nil
}
