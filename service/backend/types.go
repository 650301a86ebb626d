package backend

// Wire payloads exchanged with the execution backend.

// runRequest is the body of POST /run/{stepType}.
type runRequest struct {
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId"`
	Config    runConfig `json:"config"`
}

type runConfig struct {
	MaxTurns    int               `json:"maxTurns,omitempty"`
	Branch      string            `json:"branch,omitempty"`
	EpicContext map[string]string `json:"epicContext,omitempty"`
}

// startResponse is returned by the start call.
type startResponse struct {
	RunID       string `json:"runId"`
	Status      string `json:"status"`
	ContainerID string `json:"containerId,omitempty"`
}

// statusResponse is returned by GET /run/{runId}/status.  Logs and artifacts
// travel on the same payload – the backend has no dedicated log endpoint.
type statusResponse struct {
	RunID       string  `json:"runId"`
	Status      string  `json:"status"`
	ContainerID string  `json:"containerId,omitempty"`
	Result      string  `json:"result,omitempty"`
	Error       string  `json:"error,omitempty"`
	CostUSD     float64 `json:"costUsd"`
	Logs        string  `json:"logs,omitempty"`

	Commits         []string `json:"commits,omitempty"`
	ChangedFiles    []string `json:"changedFiles,omitempty"`
	BreakingChanges []string `json:"breakingChanges,omitempty"`
	NewEndpoints    []string `json:"newEndpoints,omitempty"`
	SchemaChanges   []string `json:"schemaChanges,omitempty"`
	NewDependencies []string `json:"newDependencies,omitempty"`
}

// Backend terminal run statuses.
const (
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
	runStatusTimeout   = "timeout"
)
