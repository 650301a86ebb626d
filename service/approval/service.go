package approval

import (
	"context"

	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/service/messaging"
)

// Service defines the approval manager interface.
type Service interface {
	// CheckApprovalNeeded evaluates the risk triggers against state and the
	// latest step result.  When one fires it registers a pending approval
	// point and returns it; otherwise it returns nil.
	CheckApprovalNeeded(ctx context.Context, state *epic.State, last *epic.WorkflowResult) (*epic.ApprovalPoint, error)

	// CreateRequest registers a pending approval point for an explicit
	// trigger, bypassing evaluation.
	CreateRequest(ctx context.Context, state *epic.State, trigger epic.Trigger, reason string) (*epic.ApprovalPoint, error)

	// RecordDecision resolves a pending approval point.  Unknown ids return
	// nil without error – logged, not fatal.
	RecordDecision(ctx context.Context, id, decision, approver, comments string) (*epic.ApprovalPoint, error)

	// GetPending lists unresolved approval points for one epic; an empty
	// epicID lists all of them.
	GetPending(ctx context.Context, epicID string) ([]*epic.ApprovalPoint, error)

	// Get returns an approval point by id, resolved or not; nil when unknown.
	Get(ctx context.Context, id string) (*epic.ApprovalPoint, error)

	// Queue exposes the event stream of created requests and recorded
	// decisions.
	Queue() messaging.Queue[Event]
}
