package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"strings"
	"time"

	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
	"github.com/codeready-toolchain/agentctl/pkg/memory"
	"github.com/codeready-toolchain/agentctl/pkg/provider"
	"github.com/codeready-toolchain/agentctl/pkg/worker"
)

// anthropicExtractor implements memory.Extractor over the Provider Router,
// mirroring the chat handler's own Invoke call but with a fact-extraction
// system prompt instead of a conversational one.
type anthropicExtractor struct {
	router      *provider.Router
	acquireWait time.Duration
}

func (e *anthropicExtractor) Extract(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := provider.AnthropicTaskPayload{
		Model:  "claude-sonnet-4-5",
		System: systemPrompt,
		Messages: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{{Role: "user", Content: userPrompt}},
		MaxTokens: 2048,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	result, err := e.router.Invoke(ctx, provider.Task{Type: "llm_extract", Payload: raw}, e.acquireWait)
	if err != nil {
		return "", err
	}
	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(result.Payload, &decoded); err != nil {
		return "", err
	}
	return decoded.Text, nil
}

// hashEmbedder is a deterministic bag-of-words embedder: each token hashes
// into one of embeddingDims buckets, accumulating a term-frequency vector.
// No embeddings SDK is available in the dependency set this module draws
// from, so this stands in for a real embedding model; it is good enough to
// exercise cosine similarity dedup/supersede/cluster thresholds in a
// self-hosted deployment with no external embeddings provider configured.
type hashEmbedder struct{}

const embeddingDims = 64

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, embeddingDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		bucket := binary.BigEndian.Uint32(sum[:4]) % embeddingDims
		vec[bucket]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] *= norm
	}
	return vec, nil
}

// newMemoryExtractHandler builds the MEMORY_EXTRACT worker handler: it runs
// a session transcript through the Memory Pipeline's extract/dedup/supersede
// flow and returns the resulting counts as the job's result.
func newMemoryExtractHandler(pipeline *memory.Pipeline) worker.Handler {
	return func(ctx context.Context, job jobs.Job, cancel worker.CancelToken) (interface{}, error) {
		payload, err := job.Payload.AsMemoryExtract()
		if err != nil {
			return nil, err
		}
		summary, err := pipeline.ExtractSession(ctx,
			"Extract durable facts, preferences, and system rules from the following session transcript as a JSON object with a \"facts\" array.",
			payload.Transcript,
		)
		if err != nil {
			return nil, err
		}
		return summary, nil
	}
}

// newMarkdownSyncHandler builds the MARKDOWN_SYNC worker handler: it reads
// the named file from disk and resyncs its fact chunks against the vector
// store.
func newMarkdownSyncHandler(pipeline *memory.Pipeline, syncRepo *store.MarkdownSyncRepository) worker.Handler {
	return func(ctx context.Context, job jobs.Job, cancel worker.CancelToken) (interface{}, error) {
		payload, err := job.Payload.AsMarkdownSync()
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(payload.FilePath)
		if err != nil {
			return nil, err
		}
		if err := pipeline.SyncMarkdown(ctx, syncRepo, payload.FilePath, string(content), memory.TypeFact); err != nil {
			return nil, err
		}
		return map[string]string{"file": payload.FilePath, "status": "synced"}, nil
	}
}

// newCorrectionStrengthenHandler builds the CORRECTION_STRENGTHEN worker
// handler: it loads the memories named in the job payload and clusters them
// into correction proposals, returning the clusters as the job's result for
// an operator (or a future auto-apply path) to act on.
func newCorrectionStrengthenHandler(memRepo *store.MemoryRepository) worker.Handler {
	return func(ctx context.Context, job jobs.Job, cancel worker.CancelToken) (interface{}, error) {
		payload, err := job.Payload.AsCorrectionStrengthen()
		if err != nil {
			return nil, err
		}

		entries := make([]memory.FeedbackEntry, 0, len(payload.MemoryIDs))
		for _, id := range payload.MemoryIDs {
			row, err := memRepo.GetByID(ctx, id)
			if err != nil {
				continue
			}
			entries = append(entries, memory.FeedbackEntry{ID: row.ID, Embedding: row.Embedding, TargetFile: payload.TargetFile})
		}

		const similarityThreshold = 0.8
		const minClusterSize = 2
		proposals := memory.ClusterCorrections(entries, similarityThreshold, minClusterSize)
		return proposals, nil
	}
}
