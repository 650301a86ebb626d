package epic

import "time"

// Result statuses reported by the execution backend.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusKilled    = "killed"
)

// WorkflowResult captures the terminal outcome of one dispatched step.  It is
// created when the backend call terminates and immutable thereafter.
type WorkflowResult struct {
	Step         Step       `json:"step"`
	RunID        string     `json:"runId,omitempty"`
	ContainerID  string     `json:"containerId,omitempty"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Cost         float64    `json:"cost"`
	Summary      string     `json:"summary,omitempty"`
	Error        string     `json:"error,omitempty"`
	Commits      []string   `json:"commits,omitempty"`
	ChangedFiles []string   `json:"changedFiles,omitempty"`

	// Risk artifacts reported by the backend, inspected by the approval
	// manager.
	BreakingChanges []string `json:"breakingChanges,omitempty"`
	NewEndpoints    []string `json:"newEndpoints,omitempty"`
	SchemaChanges   []string `json:"schemaChanges,omitempty"`
	NewDependencies []string `json:"newDependencies,omitempty"`
}

// Succeeded reports whether the step finished successfully.
func (r *WorkflowResult) Succeeded() bool {
	return r != nil && (r.Status == StatusSuccess || r.Status == "completed")
}
