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

// ApprovalRow is the raw persisted shape of an approval request row.
type ApprovalRow struct {
	ID             string
	JobID          string
	AgentID        string
	Summary        string
	Detail         string
	RiskLevel      string
	Status         string
	ApproveToken   string
	RejectToken    string
	Notifications  json.RawMessage
	DecisionReason *string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	DecidedAt      *time.Time
}

// ApprovalRepository persists Approval Gate (C8) state.
type ApprovalRepository struct {
	pool *pgxpool.Pool
}

// Insert creates a new PENDING approval request.
func (r *ApprovalRepository) Insert(ctx context.Context, a ApprovalRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO approval_requests (id, job_id, agent_id, summary, detail, risk_level, status,
			approve_token, reject_token, notifications, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'PENDING',$7,$8,$9,$10, now())`,
		a.ID, a.JobID, a.AgentID, a.Summary, a.Detail, a.RiskLevel, a.ApproveToken, a.RejectToken, a.Notifications, a.ExpiresAt)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "insert approval", a.ID, err)
	}
	return nil
}

// Get fetches an approval request by id.
func (r *ApprovalRepository) Get(ctx context.Context, id string) (ApprovalRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, job_id, agent_id, summary, detail, risk_level, status, approve_token, reject_token,
			notifications, decision_reason, expires_at, created_at, decided_at
		FROM approval_requests WHERE id = $1`, id)
	return scanApprovalRow(row)
}

func scanApprovalRow(row pgx.Row) (ApprovalRow, error) {
	var a ApprovalRow
	err := row.Scan(&a.ID, &a.JobID, &a.AgentID, &a.Summary, &a.Detail, &a.RiskLevel, &a.Status,
		&a.ApproveToken, &a.RejectToken, &a.Notifications, &a.DecisionReason, &a.ExpiresAt, &a.CreatedAt, &a.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ApprovalRow{}, ErrNotFound
	}
	if err != nil {
		return ApprovalRow{}, ctlerrors.FailedTo("store", "scan approval row", err)
	}
	return a, nil
}

// ErrStateConflict is returned when a decision is attempted on a
// non-PENDING approval (already decided or expired).
var ErrStateConflict = errors.New("store: approval not pending")

// Decide transactionally transitions a PENDING approval to APPROVED or
// REJECTED, failing with ErrStateConflict if it is no longer PENDING
// (including already-EXPIRED).
func (r *ApprovalRepository) Decide(ctx context.Context, id, newStatus, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_requests
		SET status = $2, decision_reason = $3, decided_at = now()
		WHERE id = $1 AND status = 'PENDING'`, id, newStatus, reason)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "decide approval", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// ExpirePending transitions every PENDING approval whose expires_at has
// passed to EXPIRED and returns their ids, for the expiry cron.
func (r *ApprovalRepository) ExpirePending(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE approval_requests SET status = 'EXPIRED', decided_at = $1
		WHERE status = 'PENDING' AND expires_at < $1
		RETURNING id`, now)
	if err != nil {
		return nil, ctlerrors.FailedTo("store", "expire approvals", err)
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

// CountPending returns the number of PENDING approvals, for the backlog
// metric.
func (r *ApprovalRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM approval_requests WHERE status = 'PENDING'`).Scan(&n)
	if err != nil {
		return 0, ctlerrors.FailedTo("store", "count pending approvals", err)
	}
	return n, nil
}
