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

// SessionRow is the raw persisted shape of a session row.
type SessionRow struct {
	ID            string
	AgentID       string
	UserAccountID string
	ChannelType   string
	ChatID        string
	Status        string
	Messages      json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionRepository persists Session state for the Message Dispatcher and
// Request Router.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// FindActive returns the active (agent, user, channel) session, if any.
func (r *SessionRepository) FindActive(ctx context.Context, agentID, userAccountID, channelType, chatID string) (SessionRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, agent_id, user_account_id, channel_type, chat_id, status, messages, created_at, updated_at
		FROM sessions
		WHERE agent_id=$1 AND user_account_id=$2 AND channel_type=$3 AND chat_id=$4
			AND status='active' AND deleted_at IS NULL`,
		agentID, userAccountID, channelType, chatID)
	return scanSessionRow(row)
}

func scanSessionRow(row pgx.Row) (SessionRow, error) {
	var s SessionRow
	err := row.Scan(&s.ID, &s.AgentID, &s.UserAccountID, &s.ChannelType, &s.ChatID, &s.Status, &s.Messages, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRow{}, ErrNotFound
	}
	if err != nil {
		return SessionRow{}, ctlerrors.FailedTo("store", "scan session row", err)
	}
	return s, nil
}

// Create inserts a new active session.
func (r *SessionRepository) Create(ctx context.Context, s SessionRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, agent_id, user_account_id, channel_type, chat_id, status, messages, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,'active','[]', now(), now())`,
		s.ID, s.AgentID, s.UserAccountID, s.ChannelType, s.ChatID)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "create session", s.ID, err)
	}
	return nil
}

// AppendMessage appends one message to a session's ordered message array.
func (r *SessionRepository) AppendMessage(ctx context.Context, id string, message json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET messages = messages || $2::jsonb, updated_at = now() WHERE id = $1`, id, message)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "append session message", id, err)
	}
	return nil
}

// Get fetches a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (SessionRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, agent_id, user_account_id, channel_type, chat_id, status, messages, created_at, updated_at
		FROM sessions WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanSessionRow(row)
}

// End marks a session ended.
func (r *SessionRepository) End(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET status='ended', updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "end session", id, err)
	}
	return nil
}

// SoftDeleteOlderThan soft-deletes ended sessions last updated before the
// cutoff, returning the number of affected rows. Grounded on the
// teacher's pkg/cleanup/service.go retention sweep.
func (r *SessionRepository) SoftDeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET deleted_at = now()
		WHERE deleted_at IS NULL AND status = 'ended' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, ctlerrors.FailedTo("store", "soft delete old sessions", err)
	}
	return tag.RowsAffected(), nil
}
