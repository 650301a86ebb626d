package machine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/epicflow/epicflow/internal/clock"
	"github.com/epicflow/epicflow/machine"
	"github.com/epicflow/epicflow/model/epic"
)

func plannedState(steps ...epic.Step) *epic.State {
	state := epic.NewState("epic-r", "sess-r", "thread-r", &epic.Request{Description: "routing"})
	state.ApplyPlan(&epic.Plan{ID: "plan-r", Title: "routing", Description: "routing", Complexity: 5, Steps: steps})
	state.SetPhase(epic.PhaseExecuting)
	return state
}

func TestRouteToNextStep(t *testing.T) {
	state := plannedState(epic.StepBuild, epic.StepVerify)

	step, route := machine.RouteToNextStep(state)
	assert.Equal(t, machine.RouteExecute, route)
	assert.Equal(t, epic.StepBuild, step)

	state.RecordResult(&epic.WorkflowResult{Step: epic.StepBuild, Status: epic.StatusFailed})
	step, route = machine.RouteToNextStep(state)
	assert.Equal(t, machine.RouteExecute, route, "failed step is skipped, not retried")
	assert.Equal(t, epic.StepVerify, step)

	state.RecordResult(&epic.WorkflowResult{Step: epic.StepVerify, Status: epic.StatusSuccess})
	_, route = machine.RouteToNextStep(state)
	assert.Equal(t, machine.RouteComplete, route)

	state.SetPhase(epic.PhaseFailed)
	_, route = machine.RouteToNextStep(state)
	assert.Equal(t, machine.RouteFailed, route)
}

func TestCheckApprovalDecision(t *testing.T) {
	state := plannedState(epic.StepBuild)
	assert.Equal(t, machine.RouteContinue, machine.CheckApprovalDecision(state))

	state.AddApprovalPoint(&epic.ApprovalPoint{ID: "a1", Trigger: epic.TriggerManual})
	assert.Equal(t, machine.RouteApprove, machine.CheckApprovalDecision(state))

	state.ResolveApproval("a1", epic.DecisionApproved, "alice", "")
	state.RecordResult(&epic.WorkflowResult{Step: epic.StepBuild, Status: epic.StatusSuccess})
	assert.Equal(t, machine.RouteComplete, machine.CheckApprovalDecision(state))

	state.SetPhase(epic.PhaseCancelled)
	assert.Equal(t, machine.RouteFailed, machine.CheckApprovalDecision(state))
}

func TestHumanDecisionRouter(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock.NowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	defer func() { clock.NowFunc = time.Now }()

	state := plannedState(epic.StepBuild)
	assert.Equal(t, machine.RouteDenied, machine.HumanDecisionRouter(state), "no decision means denied")

	state.AddApprovalPoint(&epic.ApprovalPoint{ID: "a1", Trigger: epic.TriggerManual})
	assert.Equal(t, machine.RouteDenied, machine.HumanDecisionRouter(state), "pending decision means denied")

	state.ResolveApproval("a1", epic.DecisionApproved, "alice", "")
	assert.Equal(t, machine.RouteApproved, machine.HumanDecisionRouter(state))

	state.AddApprovalPoint(&epic.ApprovalPoint{ID: "a2", Trigger: epic.TriggerSchemaChange})
	state.ResolveApproval("a2", epic.DecisionRollback, "alice", "revert")
	assert.Equal(t, machine.RouteRollback, machine.HumanDecisionRouter(state), "latest decision wins")
}
