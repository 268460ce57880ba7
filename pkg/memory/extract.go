package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/internal/store"
)

// Extractor produces raw fact JSON from a session transcript. The prompt
// text itself is opaque to this package (spec §4.9 step 1): callers supply
// system+user prompt construction, this package only needs the model's raw
// text response to parse.
type Extractor interface {
	Extract(ctx context.Context, systemPrompt, userPrompt string) (rawJSON string, err error)
}

// Embedder computes a vector embedding for arbitrary text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Summary is the extraction pipeline's result per spec §4.9.
type Summary struct {
	Extracted  int
	Deduped    int
	Superseded int
	Failed     int
}

const (
	dedupThreshold     = 0.92
	supersedeThreshold = 0.75
)

// Pipeline runs the Memory Pipeline's extraction/retrieval/sync flows.
type Pipeline struct {
	repo      *store.MemoryRepository
	extractor Extractor
	embedder  Embedder
	log       *slog.Logger
}

// New builds a Pipeline.
func New(repo *store.MemoryRepository, extractor Extractor, embedder Embedder) *Pipeline {
	return &Pipeline{repo: repo, extractor: extractor, embedder: embedder, log: slog.With("component", "memory")}
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseFacts robustly parses the extractor's output: tolerates an optional
// fenced code block wrapping the JSON object (spec §4.9 step 2).
func parseFacts(raw string) ([]Fact, error) {
	raw = strings.TrimSpace(raw)
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var payload struct {
		Facts []Fact `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, ctlerrors.WithClassification(fmt.Errorf("memory: parse extraction output: %w", err), ctlerrors.Permanent)
	}
	return payload.Facts, nil
}

// validateFact checks the extraction schema invariants (spec §4.9 step 2).
func validateFact(f Fact) error {
	switch f.Type {
	case TypeFact, TypePreference, TypeEvent, TypeSystemRule:
	default:
		return fmt.Errorf("memory: invalid fact type %q", f.Type)
	}
	if f.Content == "" {
		return fmt.Errorf("memory: fact content is empty")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("memory: confidence %f out of [0,1]", f.Confidence)
	}
	if f.Importance < 1 || f.Importance > 5 {
		return fmt.Errorf("memory: importance %d out of [1,5]", f.Importance)
	}
	if len(f.Tags) > maxListCap || len(f.People) > maxListCap || len(f.Projects) > maxListCap {
		return fmt.Errorf("memory: tags/people/projects exceed the %d-item cap", maxListCap)
	}
	return nil
}

// ExtractSession runs the full extraction pipeline for one session message
// window: build prompts (caller-supplied, opaque), call the extractor,
// parse+validate, embed, dedup/supersede/insert each fact.
func (p *Pipeline) ExtractSession(ctx context.Context, systemPrompt, userPrompt string) (Summary, error) {
	raw, err := p.extractor.Extract(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Summary{}, err
	}

	facts, err := parseFacts(raw)
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	for _, f := range facts {
		if err := validateFact(f); err != nil {
			p.log.Warn("rejected malformed fact", "error", err)
			s.Failed++
			continue
		}
		outcome, err := p.processFact(ctx, f)
		if err != nil {
			p.log.Warn("failed to process fact", "error", err)
			s.Failed++
			continue
		}
		switch outcome {
		case outcomeDeduped:
			s.Deduped++
		case outcomeSuperseded:
			s.Superseded++
		case outcomeInserted:
			s.Extracted++
		}
	}
	return s, nil
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeDeduped
	outcomeSuperseded
)

func (p *Pipeline) processFact(ctx context.Context, f Fact) (outcome, error) {
	vec, err := p.embedder.Embed(ctx, f.Content)
	if err != nil {
		return 0, err
	}

	neighbors, err := p.repo.Search(ctx, vec, string(f.Type), 1)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	if len(neighbors) > 0 {
		nearest := neighbors[0]
		if nearest.Similarity >= dedupThreshold {
			return outcomeDeduped, nil
		}
		if nearest.Similarity >= supersedeThreshold && f.Confidence >= nearest.Confidence {
			rec := store.MemoryRow{
				ID: uuid.NewString(), Type: string(f.Type), Content: f.Content,
				Tags: unionCapped(capList(f.Tags), nearest.Tags), People: unionCapped(capList(f.People), nearest.People),
				Projects: unionCapped(capList(f.Projects), nearest.Projects),
				Importance: f.Importance, Confidence: f.Confidence, Source: f.Source,
				Embedding: vec, SupersedesID: &nearest.ID, CreatedAt: now,
			}
			if err := p.repo.Upsert(ctx, []store.MemoryRow{rec}); err != nil {
				return 0, err
			}
			return outcomeSuperseded, nil
		}
	}

	rec := store.MemoryRow{
		ID: uuid.NewString(), Type: string(f.Type), Content: f.Content,
		Tags: capList(f.Tags), People: capList(f.People), Projects: capList(f.Projects),
		Importance: f.Importance, Confidence: f.Confidence, Source: f.Source,
		Embedding: vec, CreatedAt: now,
	}
	if err := p.repo.Upsert(ctx, []store.MemoryRow{rec}); err != nil {
		return 0, err
	}
	return outcomeInserted, nil
}
