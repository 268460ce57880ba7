package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_SequenceGapFree(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 5; i++ {
		ev, err := b.Append("job-1", "sess-1", "agent-1", LLMResponse, map[string]string{"n": "x"}, false)
		require.NoError(t, err)
		assert.Equal(t, i, ev.Sequence)
	}
}

func TestNewSession_ResetsSequence(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Append("job-1", "s1", "a1", SessionStart, nil, false)
	require.NoError(t, err)
	require.NoError(t, b.NewSession())
	ev, err := b.Append("job-1", "s2", "a1", SessionStart, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Sequence)
	assert.Equal(t, 2, b.sessionNum)
}

func TestScanFile_ContractCases(t *testing.T) {
	valid := `{"type":"CHECKPOINT","timestamp":"2024-01-01T00:00:00Z","sequence":0}`
	interiorCorrupt := `not json at all`
	arrayCorrupt := `["a","b"]`
	typelessCorrupt := `{"timestamp":"2024-01-01T00:00:00Z"}`
	truncated := `{"type":"LLM_RESPONSE","timestamp":"2024-01-01T0`

	content := []byte(valid + "\n" + interiorCorrupt + "\n" + arrayCorrupt + "\n" + typelessCorrupt + "\n" + truncated)
	result := ScanFile(content)

	assert.Len(t, result.Events, 1)
	assert.Equal(t, 3, result.CorruptedLines)
	assert.True(t, result.LastLineTruncated)
}

func TestScanFile_ValidOnly(t *testing.T) {
	content := []byte(`{"type":"SESSION_START","timestamp":"2024-01-01T00:00:00Z"}
{"type":"SESSION_END","timestamp":"2024-01-01T00:00:01Z"}
`)
	result := ScanFile(content)
	assert.Len(t, result.Events, 2)
	assert.Equal(t, 0, result.CorruptedLines)
	assert.False(t, result.LastLineTruncated)
}

func TestRecover_NoCheckpoint(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	_, _ = b.Append("job-1", "s1", "a1", SessionStart, nil, false)
	_, _ = b.Append("job-1", "s1", "a1", LLMResponse, nil, false)
	require.NoError(t, b.Close())

	rec, err := Recover(dir, "job-1")
	require.NoError(t, err)
	assert.Nil(t, rec.LastCheckpoint)
	assert.Len(t, rec.EventsAfter, 2)
}

func TestRecover_EventsAfterLastCheckpoint(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	_, _ = b.Append("job-1", "s1", "a1", SessionStart, nil, false)
	_, _ = b.Append("job-1", "s1", "a1", Checkpoint, map[string]int{"step": 1}, true)
	_, _ = b.Append("job-1", "s1", "a1", LLMResponse, nil, false)
	_, _ = b.Append("job-1", "s1", "a1", LLMResponse, nil, false)
	require.NoError(t, b.Close())

	rec, err := Recover(dir, "job-1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastCheckpoint)
	assert.Equal(t, 1, rec.LastCheckpoint.Sequence)
	assert.Len(t, rec.EventsAfter, 2)
	assert.True(t, VerifyCRC(*rec.LastCheckpoint))
}

func TestOpen_ResumesSequenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	_, _ = b.Append("job-1", "s1", "a1", SessionStart, nil, false)
	_, _ = b.Append("job-1", "s1", "a1", LLMResponse, nil, false)
	require.NoError(t, b.Close())

	reopened, err := Open(dir, "job-1")
	require.NoError(t, err)
	defer reopened.Close()

	ev, err := reopened.Append("job-1", "s1", "a1", LLMResponse, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Sequence)
}

func TestReadAll_ConcatenatesAcrossSessionFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	_, _ = b.Append("job-1", "s1", "a1", SessionStart, nil, false)
	_, _ = b.Append("job-1", "s1", "a1", LLMResponse, nil, false)
	require.NoError(t, b.NewSession())
	_, _ = b.Append("job-1", "s2", "a1", SessionStart, nil, false)
	require.NoError(t, b.Close())

	events, err := ReadAll(dir, "job-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, SessionStart, events[0].Type)
	assert.Equal(t, LLMResponse, events[1].Type)
	assert.Equal(t, SessionStart, events[2].Type)
}

func TestReadAll_MissingJobReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	events, err := ReadAll(dir, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWriteMetadata(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, "job-1")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.WriteMetadata(Metadata{JobID: "job-1", CurrentSession: 1, TotalEvents: 3}))
	data, err := os.ReadFile(filepath.Join(dir, "job-1", "metadata.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "job-1")
}
