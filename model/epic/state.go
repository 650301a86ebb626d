package epic

import (
	"sync"
	"time"

	"github.com/epicflow/epicflow/internal/clock"
)

// State is the central mutable record of one epic.  It is exclusively owned
// by one running machine instance at a time; the coordinator hands it over
// for advancement and the checkpoint store holds the authoritative
// last-persisted snapshot keyed by thread id.
type State struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	ThreadID  string `json:"threadId"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Request     *Request `json:"request"`

	Complexity        int              `json:"complexity"`
	PlannedSteps      []Step           `json:"plannedSteps"`
	StepCosts         map[Step]float64 `json:"stepCosts,omitempty"`
	EstimatedCost     float64          `json:"estimatedCost"`
	EstimatedDuration float64          `json:"estimatedDuration"`

	CompletedSteps []Step                   `json:"completedSteps"`
	CurrentStep    *Step                    `json:"currentStep,omitempty"`
	Results        map[Step]*WorkflowResult `json:"workflowResults,omitempty"`

	CostAccumulated float64 `json:"costAccumulated"`
	CostLimit       float64 `json:"costLimit"`

	ApprovalPoints   []*ApprovalPoint  `json:"approvalPoints,omitempty"`
	PendingApprovals []string          `json:"pendingApprovals,omitempty"`
	ApprovalHistory  map[string]string `json:"approvalHistory,omitempty"`

	Totals *Totals `json:"totals,omitempty"`

	Phase          Phase            `json:"phase"`
	ErrorCount     int              `json:"errorCount"`
	RollbackPoints []*RollbackPoint `json:"rollbackPoints,omitempty"`
	FailureReasons []string         `json:"failureReasons,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	mu sync.RWMutex
}

// NewState seeds the initial state for a validated request.  Plan-derived
// fields stay empty until the machine's planning node calls ApplyPlan.
func NewState(id, sessionID, threadID string, request *Request) *State {
	now := clock.Now()
	return &State{
		ID:              id,
		SessionID:       sessionID,
		ThreadID:        threadID,
		Request:         request,
		Results:         make(map[Step]*WorkflowResult),
		ApprovalHistory: make(map[string]string),
		CostLimit:       request.EffectiveCostLimit(),
		Phase:           PhasePlanning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ApplyPlan copies an immutable plan's fields into the state.
func (s *State) ApplyPlan(plan *Plan) {
	if plan == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Title = plan.Title
	s.Description = plan.Description
	s.Complexity = plan.Complexity
	s.PlannedSteps = append([]Step(nil), plan.Steps...)
	s.StepCosts = plan.StepCosts
	s.EstimatedCost = plan.EstimatedCost
	s.EstimatedDuration = plan.EstimatedDuration
	s.UpdatedAt = clock.Now()
}

// GetPhase returns the current phase.
func (s *State) GetPhase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase
}

// SetPhase updates the phase and stamps completion time on terminal phases.
func (s *State) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = phase
	s.UpdatedAt = clock.Now()
	if phase.Terminal() && s.CompletedAt == nil {
		now := clock.Now()
		s.CompletedAt = &now
	}
}

// SetCurrentStep records the step the machine is about to dispatch.
func (s *State) SetCurrentStep(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentStep = &step
	s.UpdatedAt = clock.Now()
}

// ClearCurrentStep resets the in-flight marker.
func (s *State) ClearCurrentStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentStep = nil
}

// Current returns the in-flight step, if any.
func (s *State) Current() (Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.CurrentStep == nil {
		return "", false
	}
	return *s.CurrentStep, true
}

// NextStep returns the first planned step without a recorded result, in plan
// order.  Failed steps do not block forward routing: a step with a recorded
// non-success result is skipped, not retried.
func (s *State) NextStep() (Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, step := range s.PlannedSteps {
		if _, done := s.Results[step]; !done {
			return step, true
		}
	}
	return "", false
}

// HasResult reports whether a result has already been recorded for step.
// Resuming from a checkpoint re-checks this before re-dispatching so that a
// restart mid-step cannot double-charge.
func (s *State) HasResult(step Step) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.Results[step]
	return ok
}

// Result returns the recorded result for step, if any.
func (s *State) Result(step Step) *WorkflowResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Results[step]
}

// LastResult returns the result of the most recently dispatched step.
func (s *State) LastResult() *WorkflowResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *WorkflowResult
	for _, r := range s.Results {
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	return latest
}

// LastCommit returns the most recent commit id across recorded results, ""
// when no step has committed yet.
func (s *State) LastCommit() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *WorkflowResult
	for _, r := range s.Results {
		if len(r.Commits) == 0 {
			continue
		}
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Commits[len(latest.Commits)-1]
}

// RecordResult appends the terminal result of one step.  Cost is always
// accumulated, even on failure – partial cost is real cost.  Only successful
// steps join CompletedSteps, which therefore stays an order-preserving
// subsequence of PlannedSteps.
func (s *State) RecordResult(result *WorkflowResult) {
	if result == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Results == nil {
		s.Results = make(map[Step]*WorkflowResult)
	}
	if _, exists := s.Results[result.Step]; exists {
		return
	}
	s.Results[result.Step] = result
	s.CostAccumulated += result.Cost
	if result.Succeeded() {
		s.CompletedSteps = append(s.CompletedSteps, result.Step)
	}
	s.UpdatedAt = clock.Now()
}

// AllCompleted reports whether every planned step finished successfully.
func (s *State) AllCompleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.CompletedSteps) == len(s.PlannedSteps)
}

// AllAttempted reports whether every planned step has a recorded result,
// successful or not.
func (s *State) AllAttempted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, step := range s.PlannedSteps {
		if _, ok := s.Results[step]; !ok {
			return false
		}
	}
	return true
}

// StepCompleted reports whether step finished successfully.
func (s *State) StepCompleted(step Step) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, done := range s.CompletedSteps {
		if done == step {
			return true
		}
	}
	return false
}

// AddApprovalPoint appends a pending approval checkpoint.
func (s *State) AddApprovalPoint(point *ApprovalPoint) {
	if point == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ApprovalPoints = append(s.ApprovalPoints, point)
	s.PendingApprovals = append(s.PendingApprovals, point.ID)
	s.UpdatedAt = clock.Now()
}

// ResolveApproval stamps a decision onto a pending approval point and removes
// it from the pending set.  Unknown ids return nil.
func (s *State) ResolveApproval(id, decision, approver, comments string) *ApprovalPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var point *ApprovalPoint
	for _, p := range s.ApprovalPoints {
		if p.ID == id {
			point = p
			break
		}
	}
	if point == nil || point.DecidedAt != nil {
		return nil
	}
	now := clock.Now()
	point.DecidedAt = &now
	point.Decision = decision
	point.Approver = approver
	point.Comments = comments

	pending := s.PendingApprovals[:0]
	for _, pid := range s.PendingApprovals {
		if pid != id {
			pending = append(pending, pid)
		}
	}
	s.PendingApprovals = pending
	if s.ApprovalHistory == nil {
		s.ApprovalHistory = make(map[string]string)
	}
	s.ApprovalHistory[id] = decision
	s.UpdatedAt = now
	return point
}

// LatestDecision returns the most recently resolved approval point, nil when
// no decision has ever been recorded.
func (s *State) LatestDecision() *ApprovalPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *ApprovalPoint
	for _, p := range s.ApprovalPoints {
		if p.DecidedAt == nil {
			continue
		}
		if latest == nil || p.DecidedAt.After(*latest.DecidedAt) {
			latest = p
		}
	}
	return latest
}

// ApprovedFor reports whether an approved decision already covers trigger at
// step.  An empty step matches any recorded point, which turns one approval
// of the cost threshold into clearance for the rest of the epic.
func (s *State) ApprovedFor(trigger Trigger, step Step) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.ApprovalPoints {
		if p.Trigger != trigger || p.Decision != DecisionApproved {
			continue
		}
		if step != "" && p.Step != "" && p.Step != step {
			continue
		}
		return true
	}
	return false
}

// HasPendingApprovals reports whether any checkpoint awaits a decision.
func (s *State) HasPendingApprovals() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.PendingApprovals) > 0
}

// AddRollbackPoint records a snapshot captured before a risky step.
func (s *State) AddRollbackPoint(point *RollbackPoint) {
	if point == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RollbackPoints = append(s.RollbackPoints, point)
	s.UpdatedAt = clock.Now()
}

// LatestRollbackPoint returns the most recent snapshot, nil when none exist.
func (s *State) LatestRollbackPoint() *RollbackPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.RollbackPoints) == 0 {
		return nil
	}
	return s.RollbackPoints[len(s.RollbackPoints)-1]
}

// AddFailure increments the error counter and records the reason.
func (s *State) AddFailure(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorCount++
	if reason != "" {
		s.FailureReasons = append(s.FailureReasons, reason)
	}
	s.UpdatedAt = clock.Now()
}

// Totals aggregates the outcome of a finished epic.
type Totals struct {
	Cost          float64  `json:"cost"`
	UniqueCommits []string `json:"uniqueCommits,omitempty"`
	UniqueFiles   []string `json:"uniqueFiles,omitempty"`
	SuccessRate   float64  `json:"successRate"`
}

// Aggregate computes and stores completion totals across recorded results.
func (s *State) Aggregate() *Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	commits := make(map[string]bool)
	files := make(map[string]bool)
	succeeded := 0
	for _, r := range s.Results {
		for _, c := range r.Commits {
			commits[c] = true
		}
		for _, f := range r.ChangedFiles {
			files[f] = true
		}
		if r.Succeeded() {
			succeeded++
		}
	}
	totals := &Totals{Cost: s.CostAccumulated}
	for c := range commits {
		totals.UniqueCommits = append(totals.UniqueCommits, c)
	}
	for f := range files {
		totals.UniqueFiles = append(totals.UniqueFiles, f)
	}
	if len(s.Results) > 0 {
		totals.SuccessRate = float64(succeeded) / float64(len(s.Results))
	}
	s.Totals = totals
	return totals
}

// Cost returns the accumulated cost.
func (s *State) Cost() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CostAccumulated
}

// CopyFrom updates exported fields from src in place.  The mutex is
// intentionally not copied as that would corrupt internal state.
func (s *State) CopyFrom(src *State) {
	if src == nil || src == s {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CompletedSteps = src.CompletedSteps
	s.CurrentStep = src.CurrentStep
	s.Results = src.Results
	s.CostAccumulated = src.CostAccumulated
	s.ApprovalPoints = src.ApprovalPoints
	s.PendingApprovals = src.PendingApprovals
	s.ApprovalHistory = src.ApprovalHistory
	s.Totals = src.Totals
	s.Phase = src.Phase
	s.ErrorCount = src.ErrorCount
	s.RollbackPoints = src.RollbackPoints
	s.FailureReasons = src.FailureReasons
	s.UpdatedAt = src.UpdatedAt
	s.CompletedAt = src.CompletedAt
}

// Clone creates a deep copy safe for concurrent reads outside the owning
// machine.  Request and plan-derived fields are immutable references.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &State{
		ID:                s.ID,
		SessionID:         s.SessionID,
		ThreadID:          s.ThreadID,
		Title:             s.Title,
		Description:       s.Description,
		Request:           s.Request,
		Complexity:        s.Complexity,
		PlannedSteps:      append([]Step(nil), s.PlannedSteps...),
		StepCosts:         s.StepCosts,
		EstimatedCost:     s.EstimatedCost,
		EstimatedDuration: s.EstimatedDuration,
		CostAccumulated:   s.CostAccumulated,
		CostLimit:         s.CostLimit,
		Totals:            s.Totals,
		Phase:             s.Phase,
		ErrorCount:        s.ErrorCount,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		CompletedAt:       s.CompletedAt,
	}
	if s.CurrentStep != nil {
		step := *s.CurrentStep
		out.CurrentStep = &step
	}
	out.CompletedSteps = append([]Step(nil), s.CompletedSteps...)
	if s.Results != nil {
		out.Results = make(map[Step]*WorkflowResult, len(s.Results))
		for k, v := range s.Results {
			out.Results[k] = v
		}
	}
	if s.ApprovalPoints != nil {
		out.ApprovalPoints = make([]*ApprovalPoint, len(s.ApprovalPoints))
		for i, p := range s.ApprovalPoints {
			point := *p
			out.ApprovalPoints[i] = &point
		}
	}
	out.PendingApprovals = append([]string(nil), s.PendingApprovals...)
	if s.ApprovalHistory != nil {
		out.ApprovalHistory = make(map[string]string, len(s.ApprovalHistory))
		for k, v := range s.ApprovalHistory {
			out.ApprovalHistory[k] = v
		}
	}
	out.RollbackPoints = append([]*RollbackPoint(nil), s.RollbackPoints...)
	out.FailureReasons = append([]string(nil), s.FailureReasons...)
	return out
}
