package machine

import (
	"github.com/epicflow/epicflow/model/epic"
)

// Routing decisions returned by the pure routing functions.  They are plain
// functions of state so that resumption in another process reproduces the
// same transitions.
type Route string

const (
	RouteExecute  Route = "execute"
	RouteComplete Route = "complete"
	RouteFailed   Route = "failed"

	RouteContinue Route = "continue"
	RouteApprove  Route = "approve"

	RouteApproved Route = "approved"
	RouteDenied   Route = "denied"
	RouteRollback Route = "rollback"
)

// RouteToNextStep picks the next planned step without a recorded result, in
// plan order.
func RouteToNextStep(state *epic.State) (epic.Step, Route) {
	if state.GetPhase().Terminal() {
		return "", RouteFailed
	}
	if step, ok := state.NextStep(); ok {
		return step, RouteExecute
	}
	return "", RouteComplete
}

// CheckApprovalDecision routes after the approval check: a pending approval
// suspends, a fully attempted plan completes, anything else loops back to
// routing.
func CheckApprovalDecision(state *epic.State) Route {
	if state.GetPhase().Terminal() {
		return RouteFailed
	}
	if state.HasPendingApprovals() {
		return RouteApprove
	}
	if state.AllAttempted() {
		return RouteComplete
	}
	return RouteContinue
}

// HumanDecisionRouter reads the most recent approval decision.  Absence of
// any decision is treated as denied – the machine never re-polls for one.
func HumanDecisionRouter(state *epic.State) Route {
	latest := state.LatestDecision()
	if latest == nil {
		return RouteDenied
	}
	switch latest.Decision {
	case epic.DecisionApproved:
		return RouteApproved
	case epic.DecisionRollback:
		return RouteRollback
	default:
		return RouteDenied
	}
}
