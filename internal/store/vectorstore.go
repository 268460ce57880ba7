package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// MemoryRow is the raw persisted shape of a memory record.
type MemoryRow struct {
	ID             string
	Type           string
	Content        string
	Tags           []string
	People         []string
	Projects       []string
	Importance     int
	Confidence     float64
	Source         string
	Embedding      []float64
	SupersedesID   *string
	CreatedAt      time.Time
	AccessCount    int
	LastAccessedAt *time.Time
}

// ScoredMemory pairs a MemoryRow with its cosine similarity to a query
// vector, for Search results.
type ScoredMemory struct {
	MemoryRow
	Similarity float64
}

// MemoryRepository is the spec's opaque vector-store abstraction
// (Upsert/Search/GetById/Delete), implemented as a pgx-backed brute-force
// cosine store. No vector database SDK appears anywhere in the retrieval
// pack, and the spec explicitly treats the real vector store as an opaque
// external backend — this implementation exists to exercise and test the
// Memory Pipeline end-to-end, not to be the production vector database.
type MemoryRepository struct {
	pool *pgxpool.Pool
}

// Upsert inserts or replaces memory records.
func (r *MemoryRepository) Upsert(ctx context.Context, records []MemoryRow) error {
	for _, rec := range records {
		tags, _ := json.Marshal(rec.Tags)
		people, _ := json.Marshal(rec.People)
		projects, _ := json.Marshal(rec.Projects)
		_, err := r.pool.Exec(ctx, `
			INSERT INTO memory_records (id, type, content, tags, people, projects, importance,
				confidence, source, embedding, supersedes_id, created_at, access_count, last_accessed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (id) DO UPDATE SET
				type=$2, content=$3, tags=$4, people=$5, projects=$6, importance=$7,
				confidence=$8, source=$9, embedding=$10, supersedes_id=$11`,
			rec.ID, rec.Type, rec.Content, tags, people, projects, rec.Importance, rec.Confidence,
			rec.Source, rec.Embedding, rec.SupersedesID, rec.CreatedAt, rec.AccessCount, rec.LastAccessedAt)
		if err != nil {
			return ctlerrors.FailedToWithDetails("store", "upsert memory record", rec.ID, err)
		}
	}
	return nil
}

// GetByID fetches a single record.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (MemoryRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, type, content, tags, people, projects, importance, confidence, source,
			embedding, supersedes_id, created_at, access_count, last_accessed_at
		FROM memory_records WHERE id = $1`, id)
	return scanMemoryRow(row)
}

func scanMemoryRow(row pgx.Row) (MemoryRow, error) {
	var m MemoryRow
	var tags, people, projects json.RawMessage
	err := row.Scan(&m.ID, &m.Type, &m.Content, &tags, &people, &projects, &m.Importance, &m.Confidence,
		&m.Source, &m.Embedding, &m.SupersedesID, &m.CreatedAt, &m.AccessCount, &m.LastAccessedAt)
	if err == pgx.ErrNoRows {
		return MemoryRow{}, ErrNotFound
	}
	if err != nil {
		return MemoryRow{}, ctlerrors.FailedTo("store", "scan memory row", err)
	}
	_ = json.Unmarshal(tags, &m.Tags)
	_ = json.Unmarshal(people, &m.People)
	_ = json.Unmarshal(projects, &m.Projects)
	return m, nil
}

// Delete removes records by id.
func (r *MemoryRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM memory_records WHERE id = ANY($1)`, ids)
	if err != nil {
		return ctlerrors.FailedTo("store", "delete memory records", err)
	}
	return nil
}

// Search scans every record of the given type (empty = all types) and
// returns the top `limit` by cosine similarity to query, descending. This
// is intentionally brute-force: adequate for the record volumes this
// exercise's tests create, not for production scale.
func (r *MemoryRepository) Search(ctx context.Context, query []float64, memType string, limit int) ([]ScoredMemory, error) {
	var rows pgx.Rows
	var err error
	if memType != "" {
		rows, err = r.pool.Query(ctx, `
			SELECT id, type, content, tags, people, projects, importance, confidence, source,
				embedding, supersedes_id, created_at, access_count, last_accessed_at
			FROM memory_records WHERE type = $1`, memType)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, type, content, tags, people, projects, importance, confidence, source,
				embedding, supersedes_id, created_at, access_count, last_accessed_at
			FROM memory_records`)
	}
	if err != nil {
		return nil, ctlerrors.FailedTo("store", "search memory records", err)
	}
	defer rows.Close()

	var scored []ScoredMemory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		scored = append(scored, ScoredMemory{MemoryRow: m, Similarity: CosineSimilarity(query, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either is empty or lengths mismatch.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
