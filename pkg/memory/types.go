// Package memory implements the Memory Pipeline (C9): fact extraction with
// dedup/supersede, retrieval scoring, markdown-to-vector sync, correction
// clustering, and cross-signal correlation. All four sub-pipelines share
// the vector-store abstraction in internal/store (MemoryRepository),
// consistent with the spec's "opaque vector-store abstraction" framing.
package memory

import "time"

// Type is a memory record's category, driving its retrieval decay curve.
type Type string

const (
	TypeFact       Type = "fact"
	TypePreference Type = "preference"
	TypeEvent      Type = "event"
	TypeSystemRule Type = "system_rule"
)

// Fact is one extracted memory candidate, pre-persistence.
type Fact struct {
	Type       Type     `json:"type"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	People     []string `json:"people,omitempty"`
	Projects   []string `json:"projects,omitempty"`
	Importance int      `json:"importance"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
}

// Record is a persisted memory with its embedding and access stats.
type Record struct {
	ID             string
	Type           Type
	Content        string
	Tags           []string
	People         []string
	Projects       []string
	Importance     int
	Confidence     float64
	Source         string
	Embedding      []float64
	SupersedesID   string
	CreatedAt      time.Time
	AccessCount    int
	LastAccessedAt *time.Time
}

// maxListCap bounds tags/people/projects per the extraction schema's
// "10-item caps" rule.
const maxListCap = 10

func capList(items []string) []string {
	if len(items) > maxListCap {
		return items[:maxListCap]
	}
	return items
}

func unionCapped(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) >= maxListCap {
			break
		}
	}
	return out
}
