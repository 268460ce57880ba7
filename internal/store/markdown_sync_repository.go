package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// MarkdownSyncRow is one persisted markdown->vector sync-state entry, keyed
// by content hash per the spec's `.memory-sync-state.json` layout (here
// persisted in Postgres instead of a sidecar file, since internal/store
// already owns durable state).
type MarkdownSyncRow struct {
	ContentHash  string
	PointID      string
	FilePath     string
	Heading      string
	LastSyncedAt time.Time
}

// MarkdownSyncRepository persists C9b sync state.
type MarkdownSyncRepository struct {
	pool *pgxpool.Pool
}

// ListByFile returns every sync entry for a given file path.
func (r *MarkdownSyncRepository) ListByFile(ctx context.Context, filePath string) ([]MarkdownSyncRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT content_hash, point_id, file_path, heading, last_synced_at
		FROM markdown_sync_state WHERE file_path = $1`, filePath)
	if err != nil {
		return nil, ctlerrors.FailedTo("store", "list markdown sync state", err)
	}
	defer rows.Close()

	var out []MarkdownSyncRow
	for rows.Next() {
		var e MarkdownSyncRow
		if err := rows.Scan(&e.ContentHash, &e.PointID, &e.FilePath, &e.Heading, &e.LastSyncedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get fetches a single entry by content hash.
func (r *MarkdownSyncRepository) Get(ctx context.Context, contentHash string) (MarkdownSyncRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT content_hash, point_id, file_path, heading, last_synced_at
		FROM markdown_sync_state WHERE content_hash = $1`, contentHash)
	var e MarkdownSyncRow
	err := row.Scan(&e.ContentHash, &e.PointID, &e.FilePath, &e.Heading, &e.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MarkdownSyncRow{}, ErrNotFound
	}
	if err != nil {
		return MarkdownSyncRow{}, ctlerrors.FailedTo("store", "scan markdown sync row", err)
	}
	return e, nil
}

// Upsert persists (or replaces) one sync entry.
func (r *MarkdownSyncRepository) Upsert(ctx context.Context, e MarkdownSyncRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO markdown_sync_state (content_hash, point_id, file_path, heading, last_synced_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (content_hash) DO UPDATE SET point_id=$2, file_path=$3, heading=$4, last_synced_at=now()`,
		e.ContentHash, e.PointID, e.FilePath, e.Heading)
	if err != nil {
		return ctlerrors.FailedToWithDetails("store", "upsert markdown sync state", e.ContentHash, err)
	}
	return nil
}

// DeleteOrphans removes filePath's entries whose content hash is not in
// keep, returning the point ids of the removed entries.
func (r *MarkdownSyncRepository) DeleteOrphans(ctx context.Context, filePath string, keep []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM markdown_sync_state
		WHERE file_path = $1 AND NOT (content_hash = ANY($2))
		RETURNING point_id`, filePath, keep)
	if err != nil {
		return nil, ctlerrors.FailedTo("store", "delete orphaned sync state", err)
	}
	defer rows.Close()

	var pointIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		pointIDs = append(pointIDs, id)
	}
	return pointIDs, rows.Err()
}
