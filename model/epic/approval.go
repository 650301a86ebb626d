package epic

import "time"

// Trigger classifies why an approval checkpoint was raised.
type Trigger string

const (
	TriggerManual          Trigger = "manual_mode"
	TriggerCostThreshold   Trigger = "cost_threshold"
	TriggerBreakingChange  Trigger = "breaking_changes"
	TriggerNewEndpoint     Trigger = "new_endpoints"
	TriggerSchemaChange    Trigger = "schema_changes"
	TriggerNewDependency   Trigger = "new_dependencies"
	TriggerSecurityChanges Trigger = "security_changes"
)

// Decision values recorded against an approval point.
const (
	DecisionApproved = "approved"
	DecisionDenied   = "denied"
	DecisionRollback = "rollback"
)

// ApprovalPoint records one request for human sign-off.  It is created by the
// approval manager and resolved exactly once.
type ApprovalPoint struct {
	ID          string     `json:"id"`
	Step        Step       `json:"step"`
	Trigger     Trigger    `json:"trigger"`
	Reason      string     `json:"reason"`
	Message     string     `json:"message,omitempty"`
	RequestedAt time.Time  `json:"requestedAt"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	Decision    string     `json:"decision,omitempty"`
	Approver    string     `json:"approver,omitempty"`
	Comments    string     `json:"comments,omitempty"`
}

// Resolved reports whether a decision has been recorded.
func (a *ApprovalPoint) Resolved() bool {
	return a != nil && a.DecidedAt != nil
}
