// Package machine implements the resumable control loop that drives an epic
// from planning through execution, review and completion.
//
// Each epic is advanced by one machine invocation at a time.  The loop plans
// the epic, routes to the next step in plan order, gates each dispatch on the
// approval trigger chain, executes the step through an Executor and records
// its result, then checkpoints the state before moving on.  A fired approval
// suspends the run; a later invocation on the same state resumes it once a
// decision is recorded.  Routing decisions are pure functions of state, so a
// resumed run in another process takes the same transitions the original
// would have.
package machine
