// Package epic defines the data model shared by the router, the approval
// manager, the execution client and the orchestration machine: requests,
// plans, the central mutable State record, step results, approval and
// rollback points.
package epic
