package epic

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testState() *State {
	state := NewState("epic-1", "sess-1", "thread-1", &Request{Description: "test epic"})
	state.ApplyPlan(&Plan{
		ID:            "plan-1",
		Title:         "test epic",
		Description:   "test epic",
		Complexity:    5,
		Steps:         []Step{StepBuild, StepVerify, StepFinalize},
		EstimatedCost: 14,
	})
	return state
}

func result(step Step, status string, cost float64) *WorkflowResult {
	return &WorkflowResult{Step: step, Status: status, Cost: cost, StartedAt: time.Now()}
}

func TestRecordResultInvariants(t *testing.T) {
	state := testState()

	state.RecordResult(result(StepBuild, StatusSuccess, 3))
	state.RecordResult(result(StepVerify, StatusFailed, 1))
	state.RecordResult(result(StepFinalize, StatusSuccess, 2))

	assert.Equal(t, []Step{StepBuild, StepFinalize}, state.CompletedSteps,
		"completed steps keep plan order and exclude failures")
	assert.Equal(t, 6.0, state.Cost(), "cost accumulates for failed steps too")
	assert.True(t, state.AllAttempted())
	assert.False(t, state.AllCompleted())

	// recording the same step again must be a no-op
	state.RecordResult(result(StepBuild, StatusSuccess, 3))
	assert.Equal(t, 6.0, state.Cost())
	assert.Equal(t, []Step{StepBuild, StepFinalize}, state.CompletedSteps)
}

func TestCompletedStepsIsSubsequenceOfPlan(t *testing.T) {
	state := testState()
	state.RecordResult(result(StepBuild, StatusSuccess, 1))
	state.RecordResult(result(StepVerify, StatusSuccess, 1))
	state.RecordResult(result(StepFinalize, StatusTimeout, 1))

	planIndex := make(map[Step]int)
	for i, step := range state.PlannedSteps {
		planIndex[step] = i
	}
	last := -1
	for _, step := range state.CompletedSteps {
		idx, ok := planIndex[step]
		assert.True(t, ok)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestNextStepSkipsAttempted(t *testing.T) {
	state := testState()

	step, ok := state.NextStep()
	assert.True(t, ok)
	assert.Equal(t, StepBuild, step)

	state.RecordResult(result(StepBuild, StatusFailed, 1))
	step, ok = state.NextStep()
	assert.True(t, ok)
	assert.Equal(t, StepVerify, step, "failed step is not retried")

	state.RecordResult(result(StepVerify, StatusSuccess, 1))
	state.RecordResult(result(StepFinalize, StatusSuccess, 1))
	_, ok = state.NextStep()
	assert.False(t, ok)
}

func TestResolveApproval(t *testing.T) {
	state := testState()
	state.AddApprovalPoint(&ApprovalPoint{ID: "a1", Trigger: TriggerManual})
	assert.True(t, state.HasPendingApprovals())

	point := state.ResolveApproval("a1", DecisionApproved, "alice", "ok")
	assert.NotNil(t, point)
	assert.True(t, point.Resolved())
	assert.False(t, state.HasPendingApprovals())
	assert.Equal(t, DecisionApproved, state.ApprovalHistory["a1"])

	assert.Nil(t, state.ResolveApproval("a1", DecisionDenied, "bob", ""), "double resolve is rejected")
	assert.Nil(t, state.ResolveApproval("missing", DecisionApproved, "alice", ""))
}

func TestApprovedFor(t *testing.T) {
	state := testState()
	state.AddApprovalPoint(&ApprovalPoint{ID: "a1", Step: StepBuild, Trigger: TriggerBreakingChange})
	state.ResolveApproval("a1", DecisionApproved, "alice", "")

	assert.True(t, state.ApprovedFor(TriggerBreakingChange, StepBuild))
	assert.True(t, state.ApprovedFor(TriggerBreakingChange, ""), "empty step matches any point")
	assert.False(t, state.ApprovedFor(TriggerBreakingChange, StepVerify))
	assert.False(t, state.ApprovedFor(TriggerSchemaChange, StepBuild))
}

func TestAggregate(t *testing.T) {
	state := testState()
	r1 := result(StepBuild, StatusSuccess, 2)
	r1.Commits = []string{"c1", "c2"}
	r1.ChangedFiles = []string{"a.go", "b.go"}
	r2 := result(StepVerify, StatusFailed, 1)
	r2.ChangedFiles = []string{"a.go"}
	state.RecordResult(r1)
	state.RecordResult(r2)

	totals := state.Aggregate()
	assert.Equal(t, 3.0, totals.Cost)
	assert.ElementsMatch(t, []string{"c1", "c2"}, totals.UniqueCommits)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, totals.UniqueFiles)
	assert.Equal(t, 0.5, totals.SuccessRate)
}

func TestLastCommit(t *testing.T) {
	state := testState()
	assert.Equal(t, "", state.LastCommit())

	r1 := result(StepBuild, StatusSuccess, 1)
	r1.Commits = []string{"c1"}
	r1.StartedAt = time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)
	r2 := result(StepVerify, StatusSuccess, 1)
	r2.StartedAt = time.Date(2025, 1, 1, 0, 0, 2, 0, time.UTC)
	state.RecordResult(r1)
	state.RecordResult(r2)

	assert.Equal(t, "c1", state.LastCommit(), "results without commits are skipped")
}

func TestCloneIsDeep(t *testing.T) {
	state := testState()
	state.RecordResult(result(StepBuild, StatusSuccess, 2))
	state.AddApprovalPoint(&ApprovalPoint{ID: "a1", Trigger: TriggerManual})

	clone := state.Clone()
	clone.ResolveApproval("a1", DecisionDenied, "bob", "")
	clone.CompletedSteps = append(clone.CompletedSteps, StepVerify)

	assert.True(t, state.HasPendingApprovals(), "clone mutations stay local")
	assert.Equal(t, []Step{StepBuild}, state.CompletedSteps)
}

func TestStateJSONRoundTrip(t *testing.T) {
	state := testState()
	state.RecordResult(result(StepBuild, StatusSuccess, 2))
	state.SetPhase(PhaseExecuting)

	data, err := json.Marshal(state.Clone())
	assert.NoError(t, err)

	restored := &State{}
	assert.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, state.ID, restored.ID)
	assert.Equal(t, state.PlannedSteps, restored.PlannedSteps)
	assert.Equal(t, 2.0, restored.CostAccumulated)
	assert.Equal(t, PhaseExecuting, restored.Phase)
	assert.True(t, restored.HasResult(StepBuild))
}
