package epic

// Plan is derived from a Request by the workflow router.  It is immutable
// once produced; the orchestration machine copies its fields into State.
type Plan struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Complexity    int              `json:"complexity"` // 1..10
	Steps         []Step           `json:"steps"`
	StepCosts     map[Step]float64 `json:"stepCosts"`
	EstimatedCost float64          `json:"estimatedCost"`
	// EstimatedDuration is expressed in minutes.
	EstimatedDuration float64  `json:"estimatedDuration"`
	ApprovalNotes     []string `json:"approvalNotes,omitempty"`
}

// Validate checks the plan against the closed step set.
func (p *Plan) Validate() error {
	return ValidateSteps(p.Steps)
}
