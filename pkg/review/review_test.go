package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingStage(id string, kind StageKind) Stage {
	return Stage{ID: id, Kind: kind, Run: func(ctx context.Context, task Task, revisions []RevisionTask) (StageOutcome, error) {
		return StageOutcome{Pass: true}, nil
	}}
}

func TestRun_AllStagesPass(t *testing.T) {
	policy := Policy{
		MaxLoops: 3,
		Stages: []Stage{
			passingStage("builder", KindBuilder),
			passingStage("reviewer", KindReviewer),
			passingStage("verifier", KindVerifier),
		},
	}
	result, err := Run(context.Background(), policy, Task{ID: "t1"})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.False(t, result.EscalatedToHuman)
	assert.Equal(t, 1, result.LoopsRun)
}

func TestRun_ReviewerFailureSynthesizesRevisionsAndRetries(t *testing.T) {
	attempt := 0
	builder := Stage{ID: "builder", Kind: KindBuilder, Run: func(ctx context.Context, task Task, revisions []RevisionTask) (StageOutcome, error) {
		attempt++
		return StageOutcome{Pass: true}, nil
	}}
	reviewer := Stage{ID: "reviewer", Kind: KindReviewer, Run: func(ctx context.Context, task Task, revisions []RevisionTask) (StageOutcome, error) {
		if attempt < 2 {
			return StageOutcome{Pass: false, Comments: []Comment{
				{SourceStageID: "reviewer", File: "main.go", Step: "lint", Severity: SeverityMedium, Message: "unused var", Remediation: "remove it"},
			}}, nil
		}
		return StageOutcome{Pass: true}, nil
	}}
	verifier := passingStage("verifier", KindVerifier)

	policy := Policy{MaxLoops: 5, Stages: []Stage{builder, reviewer, verifier}}
	result, err := Run(context.Background(), policy, Task{ID: "t1"})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 2, result.LoopsRun)
	require.Len(t, result.Records[0].Revisions, 1)
	assert.Equal(t, "main.go", result.Records[0].Revisions[0].File)
}

func TestRun_UnresolvedConflictOnCriticalStageEscalates(t *testing.T) {
	verifier := Stage{ID: "verifier", Kind: KindVerifier, Critical: true, Run: func(ctx context.Context, task Task, revisions []RevisionTask) (StageOutcome, error) {
		return StageOutcome{Pass: false, UnresolvedConflict: true}, nil
	}}
	policy := Policy{MaxLoops: 3, Stages: []Stage{passingStage("builder", KindBuilder), verifier}}
	result, err := Run(context.Background(), policy, Task{ID: "t1"})
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.True(t, result.EscalatedToHuman)
	assert.Equal(t, ReasonUnresolvedConflict, result.EscalationReason)
}

func TestRun_MaxLoopsExceededEscalates(t *testing.T) {
	alwaysFails := Stage{ID: "reviewer", Kind: KindReviewer, Run: func(ctx context.Context, task Task, revisions []RevisionTask) (StageOutcome, error) {
		return StageOutcome{Pass: false, Comments: []Comment{{SourceStageID: "reviewer", Message: "still broken"}}}, nil
	}}
	policy := Policy{MaxLoops: 2, Stages: []Stage{passingStage("builder", KindBuilder), alwaysFails}}
	result, err := Run(context.Background(), policy, Task{ID: "t1"})
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.True(t, result.EscalatedToHuman)
	assert.Equal(t, ReasonMaxLoopsExceeded, result.EscalationReason)
	assert.Equal(t, 2, result.LoopsRun)
}

func TestRun_EmptyPolicyErrors(t *testing.T) {
	_, err := Run(context.Background(), Policy{}, Task{ID: "t1"})
	assert.ErrorIs(t, err, ErrEmptyPolicy)
}
