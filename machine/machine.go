package machine

import (
	"context"
	"fmt"
	"log"

	"github.com/epicflow/epicflow/internal/clock"
	"github.com/epicflow/epicflow/internal/idgen"
	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/policy"
	"github.com/epicflow/epicflow/progress"
	"github.com/epicflow/epicflow/service/approval"
	"github.com/epicflow/epicflow/service/checkpoint"
	"github.com/epicflow/epicflow/service/event"
	"github.com/epicflow/epicflow/service/router"
	"github.com/epicflow/epicflow/tracing"
)

// Executor dispatches one step to the execution backend and blocks until it
// reaches a terminal status.  ExecuteStep never returns nil.
type Executor interface {
	ExecuteStep(ctx context.Context, step epic.Step, state *epic.State, maxTurns int) *epic.WorkflowResult
	Stop(ctx context.Context, runID string) bool
}

// Outcome is what one Run invocation ends with: either a terminal phase, or
// a suspension at a pending approval that a later Run resumes from.
type Outcome struct {
	Phase     epic.Phase
	Suspended bool
	Approval  *epic.ApprovalPoint
}

// Machine advances one epic through its phases.  It is stateless between
// invocations: every transition is derived from the state it is handed, and
// each transition is checkpointed before the machine moves on, so a fresh
// machine in another process resumes from the last saved snapshot with no
// step re-dispatched and no cost double-charged.
type Machine struct {
	router    *router.Service
	approvals approval.Service
	executor  Executor
	store     checkpoint.Store[string, epic.State]
	publisher *event.Publisher
	registry  Registry
}

// New assembles a machine from its collaborators.
func New(r *router.Service, approvals approval.Service, executor Executor, store checkpoint.Store[string, epic.State], publisher *event.Publisher, registry Registry) *Machine {
	if r == nil {
		r = router.New()
	}
	if publisher == nil {
		publisher = event.NewPublisher(nil)
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Machine{
		router:    r,
		approvals: approvals,
		executor:  executor,
		store:     store,
		publisher: publisher,
		registry:  registry,
	}
}

// Run drives state until it either reaches a terminal phase or suspends at a
// pending approval.  Calling Run again on the same state after the approval
// is resolved continues exactly where it left off.
func (m *Machine) Run(ctx context.Context, state *epic.State) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "machine.Run", "internal")
	span.WithAttributes(map[string]string{"epic.id": state.ID})
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	for {
		if ctx.Err() != nil {
			m.cancel(ctx, state, "run cancelled")
			return m.outcome(state), nil
		}

		switch state.GetPhase() {
		case epic.PhasePlanning:
			if err = m.planEpic(ctx, state); err != nil {
				m.fail(ctx, state, err.Error())
				return m.outcome(state), err
			}

		case epic.PhaseExecuting:
			var out *Outcome
			if out, err = m.advance(ctx, state); err != nil {
				m.fail(ctx, state, err.Error())
				return m.outcome(state), err
			} else if out != nil {
				return out, nil
			}

		case epic.PhaseReviewing:
			if CheckApprovalDecision(state) == RouteApprove {
				return &Outcome{Phase: epic.PhaseReviewing, Suspended: true}, nil
			}
			switch HumanDecisionRouter(state) {
			case RouteApproved:
				state.SetPhase(epic.PhaseExecuting)
				m.save(ctx, state)
			case RouteRollback:
				m.rollback(ctx, state)
				return m.outcome(state), nil
			default:
				m.fail(ctx, state, "approval denied")
				return m.outcome(state), nil
			}

		default:
			return m.outcome(state), nil
		}
	}
}

// Plan runs only the planning phase, leaving the state checkpointed and
// ready to execute.  The coordinator uses it to vet a plan against the hard
// cost ceiling before committing to a run.
func (m *Machine) Plan(ctx context.Context, state *epic.State) error {
	return m.planEpic(ctx, state)
}

// planEpic turns the original request into a concrete plan and moves the epic
// into execution.
func (m *Machine) planEpic(ctx context.Context, state *epic.State) error {
	ctx, span := tracing.StartSpan(ctx, "machine.planEpic", "internal")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	plan, err := m.router.BuildPlan(state.Request)
	if err != nil {
		return err
	}
	if err = m.registry.Validate(plan.Steps); err != nil {
		return err
	}
	state.ApplyPlan(plan)
	state.SetPhase(epic.PhaseExecuting)
	if tr, ok := progress.FromContext(ctx); ok {
		tr.Update(progress.Delta{Total: len(plan.Steps), Pending: len(plan.Steps)})
	}
	m.save(ctx, state)
	m.publisher.Publish(ctx, event.Event{
		Type:   event.TypeEpicCreated,
		EpicID: state.ID,
		Phase:  epic.PhaseExecuting,
	})
	return nil
}

// advance performs one execution iteration: route to the next step, gate it
// on approval, dispatch it, and checkpoint the outcome.  A non-nil Outcome
// means the run suspended or finished.
func (m *Machine) advance(ctx context.Context, state *epic.State) (*Outcome, error) {
	step, route := RouteToNextStep(state)
	switch route {
	case RouteFailed:
		return m.outcome(state), nil
	case RouteComplete:
		state.ClearCurrentStep()
		if out, err := m.checkApproval(ctx, state); out != nil || err != nil {
			return out, err
		}
		m.complete(ctx, state)
		return m.outcome(state), nil
	}

	state.SetCurrentStep(step)
	if out, err := m.checkApproval(ctx, state); out != nil || err != nil {
		return out, err
	}

	if pol := policy.FromContext(ctx); !pol.Allows(ctx, step, state) {
		now := clock.Now()
		result := &epic.WorkflowResult{
			Step:      step,
			Status:    epic.StatusFailed,
			StartedAt: now,
			EndedAt:   &now,
			Error:     "blocked by execution policy",
		}
		m.record(ctx, state, result)
		return nil, nil
	}

	spec := m.registry.Spec(step)
	if spec.CreatesRollback {
		m.captureRollbackPoint(state, step)
	}

	m.publisher.Publish(ctx, event.Event{
		Type:   event.TypeStepStarted,
		EpicID: state.ID,
		Step:   step,
		Phase:  epic.PhaseExecuting,
	})

	if tr, ok := progress.FromContext(ctx); ok {
		tr.Update(progress.Delta{Running: 1})
	}
	result := m.executor.ExecuteStep(ctx, step, state, spec.MaxTurns)
	if tr, ok := progress.FromContext(ctx); ok {
		tr.Update(progress.Delta{Running: -1})
	}
	m.record(ctx, state, result)
	return nil, nil
}

// record commits one step outcome: the result, the step counters, the
// checkpoint write and the finished event.
func (m *Machine) record(ctx context.Context, state *epic.State, result *epic.WorkflowResult) {
	state.RecordResult(result)
	state.ClearCurrentStep()
	if tr, ok := progress.FromContext(ctx); ok {
		d := progress.Delta{Pending: -1}
		if result.Succeeded() {
			d.Completed = 1
		} else {
			d.Failed = 1
		}
		tr.Update(d)
	}
	m.save(ctx, state)
	m.publisher.Publish(ctx, event.Event{
		Type:   event.TypeStepFinished,
		EpicID: state.ID,
		Step:   result.Step,
		Result: result,
		Cost:   state.Cost(),
	})
}

// checkApproval runs the risk-trigger chain and suspends the epic when a
// checkpoint fires.  Triggers already covered by an approved decision are
// cleared so a resumed epic does not re-raise the request it just got
// approval for.
func (m *Machine) checkApproval(ctx context.Context, state *epic.State) (*Outcome, error) {
	last := state.LastResult()
	trigger, _, fired := approval.Evaluate(state, last)
	if !fired {
		return nil, nil
	}
	step, _ := state.Current()
	if trigger == epic.TriggerCostThreshold {
		step = ""
	}
	if state.ApprovedFor(trigger, step) {
		return nil, nil
	}

	point, err := m.approvals.CheckApprovalNeeded(ctx, state, last)
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, nil
	}
	state.AddApprovalPoint(point)
	state.SetPhase(epic.PhaseReviewing)
	m.save(ctx, state)
	m.publisher.Publish(ctx, event.Event{
		Type:   event.TypeApprovalNeeded,
		EpicID: state.ID,
		Step:   point.Step,
		Phase:  epic.PhaseReviewing,
		Cost:   state.Cost(),
	})
	return &Outcome{Phase: epic.PhaseReviewing, Suspended: true, Approval: point}, nil
}

// captureRollbackPoint snapshots the last known good commit before a step
// that will change code.
func (m *Machine) captureRollbackPoint(state *epic.State, step epic.Step) {
	point := &epic.RollbackPoint{
		ID:          idgen.Short(),
		Step:        step,
		Branch:      fmt.Sprintf("epic/%s/%s", state.ID, step),
		CreatedAt:   clock.Now(),
		Description: fmt.Sprintf("before %s", step),
	}
	point.Commit = state.LastCommit()
	state.AddRollbackPoint(point)
}

// complete aggregates totals and closes the epic.
func (m *Machine) complete(ctx context.Context, state *epic.State) {
	totals := state.Aggregate()
	state.SetPhase(epic.PhaseComplete)
	m.save(ctx, state)
	m.publisher.Publish(ctx, event.Event{
		Type:   event.TypeEpicCompleted,
		EpicID: state.ID,
		Phase:  epic.PhaseComplete,
		Cost:   totals.Cost,
	})
}

// fail records the reason and closes the epic as failed.
func (m *Machine) fail(ctx context.Context, state *epic.State, reason string) {
	state.AddFailure(reason)
	state.SetPhase(epic.PhaseFailed)
	m.save(ctx, state)
	m.publisher.Publish(ctx, event.Event{
		Type:   event.TypeEpicFailed,
		EpicID: state.ID,
		Phase:  epic.PhaseFailed,
		Cost:   state.Cost(),
	})
}

// cancel closes the epic without marking it failed.
func (m *Machine) cancel(ctx context.Context, state *epic.State, reason string) {
	if state.GetPhase().Terminal() {
		return
	}
	state.AddFailure(reason)
	state.SetPhase(epic.PhaseCancelled)
	m.save(context.WithoutCancel(ctx), state)
	m.publisher.Publish(context.WithoutCancel(ctx), event.Event{
		Type:   event.TypeEpicCancelled,
		EpicID: state.ID,
		Phase:  epic.PhaseCancelled,
		Cost:   state.Cost(),
	})
}

// rollback records the latest snapshot reference and fails the epic like any
// other denial.  The actual revert happens on the backend branch; the engine
// only records which commit to return to.
func (m *Machine) rollback(ctx context.Context, state *epic.State) {
	reason := "rolled back on reviewer decision"
	if point := state.LatestRollbackPoint(); point != nil && point.Commit != "" {
		reason = fmt.Sprintf("rolled back to commit %s (before %s)", point.Commit, point.Step)
	}
	m.fail(ctx, state, reason)
}

func (m *Machine) save(ctx context.Context, state *epic.State) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, state); err != nil {
		log.Printf("machine: checkpoint save for epic %s failed: %v", state.ID, err)
	}
}

func (m *Machine) outcome(state *epic.State) *Outcome {
	return &Outcome{Phase: state.GetPhase()}
}
