package approval

import (
	"github.com/epicflow/epicflow/model/epic"
)

// Event envelope published on the approval queue.
type Event struct {
	Topic  string              `json:"topic"`
	EpicID string              `json:"epicId"`
	Point  *epic.ApprovalPoint `json:"point"`
}

// Standard event topics.
const (
	TopicRequestCreated  = "request.created"
	TopicDecisionCreated = "decision.created"
)
