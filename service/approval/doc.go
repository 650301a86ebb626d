// Package approval implements the human-in-the-loop approval layer.  It
// evaluates risk triggers against an epic's state and the latest step result,
// keeps the cross-epic pending-approvals registry, and records decisions
// exactly once.
package approval
