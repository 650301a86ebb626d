package event

import (
	"time"

	"github.com/epicflow/epicflow/model/epic"
)

// Type enumerates epic lifecycle events published by the engine.
type Type string

const (
	TypeEpicCreated    Type = "epic.created"
	TypeStepStarted    Type = "step.started"
	TypeStepFinished   Type = "step.finished"
	TypeApprovalNeeded Type = "approval.needed"
	TypeEpicCompleted  Type = "epic.completed"
	TypeEpicFailed     Type = "epic.failed"
	TypeEpicCancelled  Type = "epic.cancelled"
)

// Event describes one lifecycle transition of an epic.
type Event struct {
	Type      Type                 `json:"type"`
	EpicID    string               `json:"epicId"`
	Step      epic.Step            `json:"step,omitempty"`
	Phase     epic.Phase           `json:"phase,omitempty"`
	Result    *epic.WorkflowResult `json:"result,omitempty"`
	Cost      float64              `json:"cost,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}
