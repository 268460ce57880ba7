// Package review implements the Review Chain Engine (C12): a
// builder -> reviewer* -> verifier staged loop with escalation to a human
// when a stage reports an unresolved conflict or the loop budget is
// exhausted. Grounded on the teacher's stage/chain model
// (pkg/config/chain.go's ChainConfig/StageConfig) and its per-controller
// iteration bookkeeping (pkg/agent/iteration.go's IterationState).
package review

import (
	"context"
	"fmt"
)

// Severity classifies a reviewer comment's importance.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EscalationReason names why a run escalated to a human.
type EscalationReason string

const (
	ReasonUnresolvedConflict EscalationReason = "unresolved_conflict"
	ReasonMaxLoopsExceeded   EscalationReason = "max_loops_exceeded"
)

// Comment is one actionable item raised by a reviewer stage.
type Comment struct {
	SourceStageID string
	File          string
	Step          string
	Severity      Severity
	Message       string
	Remediation   string
}

// StageOutcome is what a stage yields when run.
type StageOutcome struct {
	Pass               bool
	Score              float64
	Comments           []Comment
	ActionableDiffs    []string
	UnresolvedConflict bool
}

// RevisionTask is synthesized from one actionable comment and fed back to
// the builder stage for the next loop.
type RevisionTask struct {
	SourceStageID string
	File          string
	Step          string
	Severity      Severity
	Message       string
	Remediation   string
}

// Stage is one step of the policy. Critical stages can trigger
// unresolved_conflict escalation; builder/reviewer/verifier are all Stages,
// distinguished only by Kind and by whether their failure synthesizes
// revision tasks (reviewer kind) or simply fails the loop (verifier kind).
type Stage struct {
	ID       string
	Kind     StageKind
	Critical bool
	Run      func(ctx context.Context, task Task, revisions []RevisionTask) (StageOutcome, error)
}

// StageKind distinguishes how a stage's failure is handled.
type StageKind string

const (
	KindBuilder  StageKind = "builder"
	KindReviewer StageKind = "reviewer"
	KindVerifier StageKind = "verifier"
)

// Policy is an ordered list of stages plus the loop budget.
type Policy struct {
	Stages   []Stage
	MaxLoops int
}

// Task is the unit of work the policy operates over (an agent change-set,
// a plan, a document revision — opaque to the engine itself).
type Task struct {
	ID string
}

// LoopRecord captures one pass through the policy's stages.
type LoopRecord struct {
	Loop      int
	Outcomes  map[string]StageOutcome
	Revisions []RevisionTask
}

// Result is the review chain's final verdict.
type Result struct {
	Passed           bool
	EscalatedToHuman bool
	EscalationReason EscalationReason
	LoopsRun         int
	Records          []LoopRecord
}

// ErrEmptyPolicy is returned by Run for a policy with no stages.
var ErrEmptyPolicy = fmt.Errorf("review: policy has no stages")

// Run drives the builder -> reviewer* -> verifier loop until every stage
// passes, a critical stage reports an unresolved conflict, or the loop
// budget (policy.MaxLoops) is exhausted.
func Run(ctx context.Context, policy Policy, task Task) (Result, error) {
	if len(policy.Stages) == 0 {
		return Result{}, ErrEmptyPolicy
	}
	maxLoops := policy.MaxLoops
	if maxLoops <= 0 {
		maxLoops = 1
	}

	var records []LoopRecord
	var pendingRevisions []RevisionTask

	for loop := 1; loop <= maxLoops; loop++ {
		record := LoopRecord{Loop: loop, Outcomes: make(map[string]StageOutcome, len(policy.Stages))}

		allPassed := true
		var nextRevisions []RevisionTask
		for _, stage := range policy.Stages {
			outcome, err := stage.Run(ctx, task, pendingRevisions)
			if err != nil {
				return Result{}, fmt.Errorf("review: stage %s: %w", stage.ID, err)
			}
			record.Outcomes[stage.ID] = outcome

			if outcome.UnresolvedConflict && stage.Critical {
				record.Revisions = nextRevisions
				records = append(records, record)
				return Result{
					Passed: false, EscalatedToHuman: true,
					EscalationReason: ReasonUnresolvedConflict,
					LoopsRun:         loop, Records: records,
				}, nil
			}

			if !outcome.Pass {
				allPassed = false
				if stage.Kind == KindReviewer {
					nextRevisions = append(nextRevisions, synthesizeRevisions(outcome.Comments)...)
				}
				// A failing non-reviewer stage (builder, verifier) still
				// stops this loop's remaining stages from running against
				// stale output; the next loop restarts from the builder.
				break
			}
		}

		record.Revisions = nextRevisions
		records = append(records, record)

		if allPassed {
			return Result{Passed: true, LoopsRun: loop, Records: records}, nil
		}

		pendingRevisions = nextRevisions
	}

	return Result{
		Passed: false, EscalatedToHuman: true,
		EscalationReason: ReasonMaxLoopsExceeded,
		LoopsRun:         maxLoops, Records: records,
	}, nil
}

func synthesizeRevisions(comments []Comment) []RevisionTask {
	tasks := make([]RevisionTask, 0, len(comments))
	for _, c := range comments {
		tasks = append(tasks, RevisionTask{
			SourceStageID: c.SourceStageID, File: c.File, Step: c.Step,
			Severity: c.Severity, Message: c.Message, Remediation: c.Remediation,
		})
	}
	return tasks
}
