// Package backend implements the client of the external execution backend:
// it starts a workflow step, polls the run until a terminal status or the
// wait ceiling, and folds every failure mode into a WorkflowResult so that
// the orchestration machine never sees a raw transport error.
package backend
