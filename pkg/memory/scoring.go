package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/codeready-toolchain/agentctl/internal/store"
)

// Scoring weights (spec §4.9: "score = α·similarity + β·decay(type, age) +
// γ·utility(accessCount)").
const (
	alphaSimilarity = 0.55
	betaDecay       = 0.25
	gammaUtility    = 0.20
)

// Decay half-lives per memory type; system_rule never decays.
var decayHalfLives = map[Type]time.Duration{
	TypeFact:       365 * 24 * time.Hour,
	TypePreference: 180 * 24 * time.Hour,
	TypeEvent:      14 * 24 * time.Hour,
}

// Decay computes the exponential-decay weight for a memory of the given
// type at the given age. system_rule (or any type without a configured
// half-life) never decays (decay = 1).
func Decay(t Type, age time.Duration) float64 {
	halfLife, ok := decayHalfLives[t]
	if !ok || halfLife <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// Utility computes the access-frequency utility term, saturating at 1 once
// accessCount reaches 999 (log10(1000)/3 = 1).
func Utility(accessCount int) float64 {
	if accessCount < 0 {
		accessCount = 0
	}
	u := math.Log10(float64(accessCount)+1) / 3
	if u > 1 {
		return 1
	}
	return u
}

// Score combines similarity, decay, and utility into the retrieval ranking
// score.
func Score(similarity float64, t Type, age time.Duration, accessCount int) float64 {
	return alphaSimilarity*similarity + betaDecay*Decay(t, age) + gammaUtility*Utility(accessCount)
}

// ScoredRecord pairs a Record with its ranking score for Retrieve results.
type ScoredRecord struct {
	Record
	Similarity float64
	Score      float64
}

// Retrieve searches the vector store for query (optionally filtered by
// memType) and re-ranks the candidates by the combined scoring formula,
// descending, returning at most limit results.
func (p *Pipeline) Retrieve(ctx context.Context, query []float64, memType string, limit int) ([]ScoredRecord, error) {
	// Over-fetch before re-ranking: cosine order alone is not the final
	// order once decay/utility are mixed in.
	candidates, err := p.repo.Search(ctx, query, memType, limit*4+20)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]ScoredRecord, 0, len(candidates))
	for _, c := range candidates {
		age := now.Sub(c.CreatedAt)
		out = append(out, ScoredRecord{
			Record:     rowToRecord(c.MemoryRow),
			Similarity: c.Similarity,
			Score:      Score(c.Similarity, Type(c.Type), age, c.AccessCount),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func rowToRecord(r store.MemoryRow) Record {
	rec := Record{
		ID: r.ID, Type: Type(r.Type), Content: r.Content, Tags: r.Tags, People: r.People, Projects: r.Projects,
		Importance: r.Importance, Confidence: r.Confidence, Source: r.Source, Embedding: r.Embedding,
		CreatedAt: r.CreatedAt, AccessCount: r.AccessCount, LastAccessedAt: r.LastAccessedAt,
	}
	if r.SupersedesID != nil {
		rec.SupersedesID = *r.SupersedesID
	}
	return rec
}
