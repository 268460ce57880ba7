package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFacts_PlainJSON(t *testing.T) {
	facts, err := parseFacts(`{"facts":[{"type":"fact","content":"likes tea","importance":3,"confidence":0.8}]}`)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "likes tea", facts[0].Content)
}

func TestParseFacts_FencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"facts\":[{\"type\":\"preference\",\"content\":\"x\",\"importance\":1,\"confidence\":0.5}]}\n```\n"
	facts, err := parseFacts(raw)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, TypePreference, facts[0].Type)
}

func TestValidateFact_RejectsOutOfRangeConfidence(t *testing.T) {
	err := validateFact(Fact{Type: TypeFact, Content: "x", Importance: 1, Confidence: 1.5})
	assert.Error(t, err)
}

func TestValidateFact_RejectsOutOfRangeImportance(t *testing.T) {
	err := validateFact(Fact{Type: TypeFact, Content: "x", Importance: 6, Confidence: 0.5})
	assert.Error(t, err)
}

func TestValidateFact_RejectsTagCapOverflow(t *testing.T) {
	tags := make([]string, 11)
	for i := range tags {
		tags[i] = "t"
	}
	err := validateFact(Fact{Type: TypeFact, Content: "x", Importance: 1, Confidence: 0.5, Tags: tags})
	assert.Error(t, err)
}

func TestValidateFact_AcceptsValid(t *testing.T) {
	err := validateFact(Fact{Type: TypeEvent, Content: "deployed v2", Importance: 4, Confidence: 0.9})
	assert.NoError(t, err)
}

func TestDecay_FactHalfLifeAtOneYear(t *testing.T) {
	d := Decay(TypeFact, 365*24*time.Hour)
	assert.InDelta(t, 0.5, d, 0.01)
}

func TestDecay_SystemRuleNeverDecays(t *testing.T) {
	d := Decay(TypeSystemRule, 10*365*24*time.Hour)
	assert.Equal(t, 1.0, d)
}

func TestUtility_ZeroAccessIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Utility(0))
}

func TestUtility_SaturatesAtOne(t *testing.T) {
	assert.InDelta(t, 1.0, Utility(999), 0.01)
}

func TestSplitMarkdown_DiscardsTinyChunks(t *testing.T) {
	chunks := SplitMarkdown("notes.md", "## Heading\n\ntiny\n")
	assert.Empty(t, chunks)
}

func TestSplitMarkdown_KeepsSubstantialChunk(t *testing.T) {
	body := "## Heading\n\n" + stringsRepeat("word ", 20)
	chunks := SplitMarkdown("notes.md", body)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Heading", chunks[0].Heading)
}

func TestSplitMarkdown_DeterministicIDs(t *testing.T) {
	body := "## Heading\n\n" + stringsRepeat("word ", 20)
	c1 := SplitMarkdown("notes.md", body)
	c2 := SplitMarkdown("notes.md", body)
	require.Len(t, c1, 1)
	require.Len(t, c2, 1)
	assert.Equal(t, c1[0].ID, c2[0].ID)
	assert.Equal(t, c1[0].ContentHash, c2[0].ContentHash)
}

func TestNormalize_CollapsesBlankLines(t *testing.T) {
	out := normalize("a\n\n\n\n\nb")
	assert.Equal(t, "a\n\n\nb", out)
}

func TestClusterCorrections_KeepsClustersAboveMinSize(t *testing.T) {
	entries := []FeedbackEntry{
		{ID: "1", Embedding: []float64{1, 0}, TargetFile: "a.go"},
		{ID: "2", Embedding: []float64{0.99, 0.01}, TargetFile: "a.go"},
		{ID: "3", Embedding: []float64{0, 1}},
	}
	proposals := ClusterCorrections(entries, 0.9, 2)
	require.Len(t, proposals, 1)
	assert.Equal(t, 2, proposals[0].Size)
	assert.Equal(t, "a.go", proposals[0].TargetFile)
}

func TestClusterCorrections_ConfidenceCappedAt99(t *testing.T) {
	entries := make([]FeedbackEntry, 10)
	for i := range entries {
		entries[i] = FeedbackEntry{ID: string(rune('a' + i)), Embedding: []float64{1, 0}}
	}
	proposals := ClusterCorrections(entries, 0.5, 2)
	require.Len(t, proposals, 1)
	assert.LessOrEqual(t, proposals[0].Confidence, 0.99)
}

func TestTokenize_DropsStopwordsAndShortTokens(t *testing.T) {
	toks := Tokenize("The database and the API are down")
	assert.NotContains(t, toks, "the")
	assert.NotContains(t, toks, "are")
	assert.Contains(t, toks, "database")
	assert.Contains(t, toks, "api")
}

func TestCorrelateSignals_RequiresDistinctSources(t *testing.T) {
	signals := []Signal{
		{ID: "1", Source: "prometheus", Title: "database connection pool exhausted"},
		{ID: "2", Source: "prometheus", Title: "database connection pool exhausted again"},
	}
	out := CorrelateSignals(signals, 2)
	assert.Empty(t, out)
}

func TestCorrelateSignals_EmitsForSharedTokensAcrossSources(t *testing.T) {
	signals := []Signal{
		{ID: "1", Source: "prometheus", Title: "database connection pool exhausted"},
		{ID: "2", Source: "pagerduty", Title: "database connection pool errors spiking"},
	}
	out := CorrelateSignals(signals, 3)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"1", "2"}, out[0].SignalIDs)
}

func TestCorrelateSignals_FingerprintIsOrderIndependent(t *testing.T) {
	s1 := Signal{ID: "a", Source: "x", Title: "database pool exhausted errors"}
	s2 := Signal{ID: "b", Source: "y", Title: "database pool exhausted spikes"}
	out1 := CorrelateSignals([]Signal{s1, s2}, 2)
	out2 := CorrelateSignals([]Signal{s2, s1}, 2)
	require.Len(t, out1, 1)
	require.Len(t, out2, 1)
	assert.Equal(t, out1[0].Fingerprint, out2[0].Fingerprint)
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
