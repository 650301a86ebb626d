// Package epicflow provides an orchestration engine for multi-step
// development epics.
//
// A request is decomposed by the workflow router into an ordered, costed
// plan; each step is dispatched to an execution backend and its outcome is
// evaluated against a chain of risk triggers that can suspend the epic for
// human approval.  Every transition is checkpointed, so a suspended or
// interrupted epic resumes exactly where it left off, with no step
// re-dispatched and no cost double-charged.
//
// End-users interact with the engine via the coordinator exposed by the
// root package:
//
//	srv := epicflow.New()
//	info, _ := srv.CreateEpic(ctx, &epic.Request{Description: "Add rate limiting, $30 budget"})
//	status, _ := srv.GetStatus(ctx, info.EpicID)
//	srv.Approve(ctx, info.EpicID, approvalID, epic.DecisionApproved, "alice", "lgtm")
//
// For more details see the README and individual sub-packages.
package epicflow
