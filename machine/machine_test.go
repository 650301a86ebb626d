package machine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/epicflow/epicflow/machine"
	"github.com/epicflow/epicflow/model/epic"
	amem "github.com/epicflow/epicflow/service/approval/memory"
	cmem "github.com/epicflow/epicflow/service/checkpoint/memory"
)

// fakeExecutor returns scripted results and counts dispatches per step.
type fakeExecutor struct {
	results    map[epic.Step]*epic.WorkflowResult
	dispatched map[epic.Step]int
	seq        int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		results:    make(map[epic.Step]*epic.WorkflowResult),
		dispatched: make(map[epic.Step]int),
	}
}

func (f *fakeExecutor) script(step epic.Step, result *epic.WorkflowResult) {
	result.Step = step
	if result.Status == "" {
		result.Status = epic.StatusSuccess
	}
	f.results[step] = result
}

func (f *fakeExecutor) ExecuteStep(_ context.Context, step epic.Step, _ *epic.State, _ int) *epic.WorkflowResult {
	f.dispatched[step]++
	f.seq++
	result := f.results[step]
	if result == nil {
		result = &epic.WorkflowResult{Step: step, Status: epic.StatusSuccess}
	}
	// distinct start times keep LastResult deterministic
	result.StartedAt = time.Date(2025, 1, 1, 0, 0, f.seq, 0, time.UTC)
	return result
}

func (f *fakeExecutor) Stop(context.Context, string) bool { return false }

func newRequest(mode epic.ApprovalMode) *epic.Request {
	return &epic.Request{
		Description:  "Improve retry handling in the HTTP client",
		ApprovalMode: mode,
		Steps:        []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize},
	}
}

func newMachine(executor machine.Executor) (*machine.Machine, *cmem.Service) {
	store := cmem.New()
	return machine.New(nil, amem.New(), executor, store, nil, nil), store
}

func TestRunCompletesEpic(t *testing.T) {
	executor := newFakeExecutor()
	executor.script(epic.StepBuild, &epic.WorkflowResult{Cost: 2, Commits: []string{"c1"}})
	executor.script(epic.StepVerify, &epic.WorkflowResult{Cost: 2})
	executor.script(epic.StepFinalize, &epic.WorkflowResult{Cost: 2, Commits: []string{"c2"}})
	m, store := newMachine(executor)

	state := epic.NewState("epic-1", "sess-1", "thread-1", newRequest(epic.ApprovalAuto))
	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, outcome.Phase)
	assert.False(t, outcome.Suspended)

	assert.Equal(t, []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize}, state.CompletedSteps)
	assert.Equal(t, 6.0, state.Cost())
	assert.NotNil(t, state.Totals)
	assert.Equal(t, 1.0, state.Totals.SuccessRate)
	assert.ElementsMatch(t, []string{"c1", "c2"}, state.Totals.UniqueCommits)

	saved, err := store.Load(context.Background(), "thread-1")
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, saved.Phase)
	assert.Equal(t, 6.0, saved.CostAccumulated)
}

func TestRunFailedStepDoesNotBlockRouting(t *testing.T) {
	executor := newFakeExecutor()
	executor.script(epic.StepBuild, &epic.WorkflowResult{Cost: 3})
	executor.script(epic.StepVerify, &epic.WorkflowResult{Status: epic.StatusFailed, Cost: 1, Error: "tests failed"})
	executor.script(epic.StepFinalize, &epic.WorkflowResult{Cost: 1})
	m, _ := newMachine(executor)

	state := epic.NewState("epic-2", "sess-2", "thread-2", newRequest(epic.ApprovalAuto))
	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, outcome.Phase)

	assert.Equal(t, []epic.Step{epic.StepBuild, epic.StepFinalize}, state.CompletedSteps)
	assert.Equal(t, 1, executor.dispatched[epic.StepFinalize], "failed step must not block the next one")
	assert.Equal(t, 5.0, state.Cost(), "failed step cost still accumulates")
	assert.InDelta(t, 2.0/3.0, state.Totals.SuccessRate, 1e-9)
}

func TestRunManualModeSuspendsBeforeEachStep(t *testing.T) {
	executor := newFakeExecutor()
	m, _ := newMachine(executor)

	state := epic.NewState("epic-3", "sess-3", "thread-3", newRequest(epic.ApprovalManual))
	ctx := context.Background()

	for _, step := range []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize} {
		outcome, err := m.Run(ctx, state)
		assert.NoError(t, err)
		assert.True(t, outcome.Suspended)
		assert.Equal(t, epic.PhaseReviewing, outcome.Phase)
		assert.NotNil(t, outcome.Approval)
		assert.Equal(t, step, outcome.Approval.Step)
		assert.Equal(t, epic.TriggerManual, outcome.Approval.Trigger)
		assert.Equal(t, 0, executor.dispatched[step], "step must not run before approval")

		resolved := state.ResolveApproval(outcome.Approval.ID, epic.DecisionApproved, "alice", "go ahead")
		assert.NotNil(t, resolved)
	}

	outcome, err := m.Run(ctx, state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, outcome.Phase)
	assert.Equal(t, 1, executor.dispatched[epic.StepBuild])
	assert.Equal(t, 1, executor.dispatched[epic.StepVerify])
	assert.Equal(t, 1, executor.dispatched[epic.StepFinalize])
	assert.False(t, state.HasPendingApprovals())
}

func TestRunDeniedApprovalFails(t *testing.T) {
	executor := newFakeExecutor()
	m, _ := newMachine(executor)

	state := epic.NewState("epic-4", "sess-4", "thread-4", newRequest(epic.ApprovalManual))
	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.True(t, outcome.Suspended)

	state.ResolveApproval(outcome.Approval.ID, epic.DecisionDenied, "alice", "not now")
	outcome, err = m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseFailed, outcome.Phase)
	assert.Contains(t, state.FailureReasons, "approval denied")
	assert.Equal(t, 0, executor.dispatched[epic.StepBuild])
	assert.Equal(t, 1, state.ErrorCount)
}

func TestRunSuspendsOnBreakingChanges(t *testing.T) {
	executor := newFakeExecutor()
	executor.script(epic.StepBuild, &epic.WorkflowResult{
		Cost:            2,
		Commits:         []string{"abc123"},
		BreakingChanges: []string{"removed /v1/users"},
	})
	m, _ := newMachine(executor)

	state := epic.NewState("epic-5", "sess-5", "thread-5", newRequest(epic.ApprovalAuto))
	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.True(t, outcome.Suspended)
	assert.Equal(t, epic.TriggerBreakingChange, outcome.Approval.Trigger)
	assert.Equal(t, 1, executor.dispatched[epic.StepBuild])
	assert.Equal(t, 0, executor.dispatched[epic.StepVerify])

	state.ResolveApproval(outcome.Approval.ID, epic.DecisionApproved, "alice", "")
	outcome, err = m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, outcome.Phase)
	assert.Equal(t, 1, executor.dispatched[epic.StepVerify])
}

func TestRunCostThresholdApprovedOnce(t *testing.T) {
	executor := newFakeExecutor()
	executor.script(epic.StepBuild, &epic.WorkflowResult{Cost: 9})
	executor.script(epic.StepVerify, &epic.WorkflowResult{Cost: 2})
	executor.script(epic.StepFinalize, &epic.WorkflowResult{Cost: 1})
	m, _ := newMachine(executor)

	request := newRequest(epic.ApprovalAuto)
	request.CostLimit = 10
	state := epic.NewState("epic-6", "sess-6", "thread-6", request)

	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.True(t, outcome.Suspended)
	assert.Equal(t, epic.TriggerCostThreshold, outcome.Approval.Trigger)

	state.ResolveApproval(outcome.Approval.ID, epic.DecisionApproved, "alice", "budget ok")
	outcome, err = m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, outcome.Phase, "cost approval covers the rest of the epic")
	assert.Equal(t, 12.0, state.Cost())
}

func TestRunResumesFromCheckpointWithoutRedispatch(t *testing.T) {
	executor := newFakeExecutor()
	executor.script(epic.StepBuild, &epic.WorkflowResult{
		Cost:            4,
		BreakingChanges: []string{"renamed config key"},
	})
	m, store := newMachine(executor)

	state := epic.NewState("epic-7", "sess-7", "thread-7", newRequest(epic.ApprovalAuto))
	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.True(t, outcome.Suspended)

	// a fresh machine picks up the persisted snapshot, as after a restart
	loaded, err := store.Load(context.Background(), "thread-7")
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseReviewing, loaded.Phase)
	assert.True(t, loaded.HasResult(epic.StepBuild))

	loaded.ResolveApproval(outcome.Approval.ID, epic.DecisionApproved, "alice", "")
	resumed := machine.New(nil, amem.New(), executor, store, nil, nil)
	outcome, err = resumed.Run(context.Background(), loaded)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseComplete, outcome.Phase)
	assert.Equal(t, 1, executor.dispatched[epic.StepBuild], "recorded step must not be re-dispatched")
	assert.Equal(t, 4.0, loaded.Cost(), "cost must not be double-charged")
}

func TestRunRollbackDecisionFails(t *testing.T) {
	executor := newFakeExecutor()
	executor.script(epic.StepBuild, &epic.WorkflowResult{Cost: 2, Commits: []string{"abc123"}})
	executor.script(epic.StepVerify, &epic.WorkflowResult{Cost: 1})
	executor.script(epic.StepFinalize, &epic.WorkflowResult{
		Cost:          1,
		Commits:       []string{"def456"},
		SchemaChanges: []string{"dropped index"},
	})
	m, _ := newMachine(executor)

	state := epic.NewState("epic-8", "sess-8", "thread-8", newRequest(epic.ApprovalAuto))
	outcome, err := m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.True(t, outcome.Suspended)
	assert.Equal(t, epic.TriggerSchemaChange, outcome.Approval.Trigger)

	state.ResolveApproval(outcome.Approval.ID, epic.DecisionRollback, "alice", "revert it")
	outcome, err = m.Run(context.Background(), state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseFailed, outcome.Phase, "rollback is handled like a denial")
	assert.Equal(t, 1, state.ErrorCount)
	assert.NotEmpty(t, state.FailureReasons)
	assert.Contains(t, state.FailureReasons[len(state.FailureReasons)-1], "abc123")
}

func TestRunCancelledContext(t *testing.T) {
	executor := newFakeExecutor()
	m, _ := newMachine(executor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := epic.NewState("epic-9", "sess-9", "thread-9", newRequest(epic.ApprovalAuto))
	outcome, err := m.Run(ctx, state)
	assert.NoError(t, err)
	assert.Equal(t, epic.PhaseCancelled, outcome.Phase)
	assert.Equal(t, 0, executor.dispatched[epic.StepBuild])
}

func TestRunRejectsEmptyDescription(t *testing.T) {
	executor := newFakeExecutor()
	m, _ := newMachine(executor)

	state := epic.NewState("epic-10", "sess-10", "thread-10", &epic.Request{Description: "   "})
	outcome, err := m.Run(context.Background(), state)
	assert.Error(t, err)
	assert.ErrorIs(t, err, epic.ErrEmptyDescription)
	assert.Equal(t, epic.PhaseFailed, outcome.Phase)
}
