package epicflow

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/epicflow/epicflow/internal/idgen"
	"github.com/epicflow/epicflow/machine"
	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/policy"
	"github.com/epicflow/epicflow/progress"
	"github.com/epicflow/epicflow/service/approval"
	amemory "github.com/epicflow/epicflow/service/approval/memory"
	"github.com/epicflow/epicflow/service/backend"
	"github.com/epicflow/epicflow/service/checkpoint"
	cfs "github.com/epicflow/epicflow/service/checkpoint/fs"
	cmemory "github.com/epicflow/epicflow/service/checkpoint/memory"
	"github.com/epicflow/epicflow/service/event"
	"github.com/epicflow/epicflow/service/notify"
	"github.com/epicflow/epicflow/service/router"
)

// Service is the epic coordinator.  It owns the registry of live epics and
// drives each one on its own goroutine through the orchestration machine;
// the only state shared between epics is the pending-approvals registry.
type Service struct {
	config    *Config
	router    *router.Service
	approvals approval.Service
	executor  machine.Executor
	store     checkpoint.Store[string, epic.State]
	publisher *event.Publisher
	notifier  notify.Service
	registry  machine.Registry
	policy    *policy.Policy
	listener  func(*event.Event)
	machine   *machine.Machine

	mux   sync.RWMutex
	epics map[string]*entry
}

type entry struct {
	state   *epic.State
	tracker *progress.Progress
	ref     *notify.MessageRef
	cancel  context.CancelFunc
	running bool
}

// EpicInfo is the creation receipt returned by CreateEpic.
type EpicInfo struct {
	EpicID           string             `json:"epicId"`
	Title            string             `json:"title"`
	Phase            epic.Phase         `json:"phase"`
	PlannedSteps     []epic.Step        `json:"plannedSteps"`
	EstimatedCost    float64            `json:"estimatedCost"`
	ApprovalRequired bool               `json:"approvalRequired"`
	TrackingRef      *notify.MessageRef `json:"trackingRef,omitempty"`
}

// New assembles a coordinator, filling unset collaborators with defaults.
func New(options ...Option) *Service {
	s := &Service{epics: make(map[string]*entry)}
	s.init(options)
	return s
}

// NewFromConfig validates config and assembles a coordinator from it.
func NewFromConfig(config *Config, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return New(append([]Option{WithConfig(config)}, options...)...), nil
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	s.machine = machine.New(s.router, s.approvals, s.executor, s.store, s.publisher, s.registry)
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.router == nil {
		s.router = router.New()
	}
	if s.approvals == nil {
		s.approvals = amemory.New()
	}
	if s.store == nil {
		if s.config.CheckpointLocation != "" {
			store, err := cfs.New(s.config.CheckpointLocation)
			if err != nil {
				log.Printf("epicflow: checkpoint store at %q unavailable, keeping snapshots in memory: %v", s.config.CheckpointLocation, err)
			} else {
				s.store = store
			}
		}
		if s.store == nil {
			s.store = cmemory.New()
		}
	}
	if s.executor == nil {
		s.executor = backend.New(s.config.Backend)
	}
	if s.publisher == nil {
		s.publisher = event.NewPublisher(nil)
	}
	if s.listener != nil {
		s.publisher.SetListener(s.listener)
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.registry == nil {
		s.registry = machine.DefaultRegistry()
	}
}

// CreateEpic validates and plans a request, registers the epic and starts
// driving it.  It fails fast on an empty description and rejects plans whose
// estimate exceeds the hard cost ceiling, before any step runs.
func (s *Service) CreateEpic(ctx context.Context, request *epic.Request) (*EpicInfo, error) {
	if request == nil {
		return nil, fmt.Errorf("request is required")
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	id := idgen.Short()
	sessionID := request.Context["sessionId"]
	if sessionID == "" {
		sessionID = id
	}
	threadID := request.Context["threadId"]
	if threadID == "" {
		threadID = id
	}

	state := epic.NewState(id, sessionID, threadID, request)
	if err := s.machine.Plan(ctx, state); err != nil {
		return nil, err
	}
	if s.config.HardCostCeiling > 0 && state.EstimatedCost > s.config.HardCostCeiling {
		_ = s.store.Delete(ctx, threadID)
		return nil, &CostLimitError{Estimated: state.EstimatedCost, Ceiling: s.config.HardCostCeiling}
	}

	ref, err := s.notifier.PostMessage(ctx, s.config.NotifyChannel, creationMessage(state))
	if err != nil {
		log.Printf("epicflow: notification for epic %s failed: %v", id, err)
	}

	ent := &entry{state: state, tracker: progress.FromState(state), ref: ref}
	s.mux.Lock()
	s.epics[id] = ent
	s.mux.Unlock()
	s.launch(ent)

	return &EpicInfo{
		EpicID:           id,
		Title:            state.Title,
		Phase:            state.GetPhase(),
		PlannedSteps:     append([]epic.Step(nil), state.PlannedSteps...),
		EstimatedCost:    state.EstimatedCost,
		ApprovalRequired: approvalRequired(state),
		TrackingRef:      ref,
	}, nil
}

// GetStatus returns a read-only projection of the epic's state.  Epics no
// longer held in memory are looked up in the checkpoint store.
func (s *Service) GetStatus(ctx context.Context, epicID string) (*epic.State, error) {
	if ent := s.entry(epicID); ent != nil {
		return ent.state.Clone(), nil
	}
	states, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, state := range states {
		if state.ID == epicID {
			return state.Clone(), nil
		}
	}
	return nil, ErrEpicNotFound
}

// Approve resolves a pending approval checkpoint and resumes the suspended
// epic.  Epics known only to the checkpoint store are adopted first, so a
// decision can land before Recover ran.  Unknown epic or approval ids return
// the corresponding not-found error.
func (s *Service) Approve(ctx context.Context, epicID, approvalID, decision, approver, comments string) (*epic.ApprovalPoint, error) {
	ent, err := s.adopt(ctx, epicID)
	if err != nil {
		return nil, err
	}
	point := ent.state.ResolveApproval(approvalID, decision, approver, comments)
	if point == nil {
		return nil, ErrApprovalNotFound
	}
	if _, err := s.approvals.RecordDecision(ctx, approvalID, decision, approver, comments); err != nil {
		log.Printf("epicflow: approval registry update for %s failed: %v", approvalID, err)
	}
	if err := s.store.Save(ctx, ent.state); err != nil {
		log.Printf("epicflow: checkpoint save for epic %s failed: %v", epicID, err)
	}
	if ent.state.GetPhase() == epic.PhaseReviewing {
		s.launch(ent)
	}
	return point, nil
}

// Stop marks the epic cancelled.  It is best-effort: the backend exposes no
// cancellation endpoint, so a step already dispatched may run to completion
// and the returned flag reports whether the backend acknowledged a kill.
func (s *Service) Stop(ctx context.Context, epicID string) (bool, error) {
	ent, err := s.adopt(ctx, epicID)
	if err != nil {
		return false, err
	}

	s.mux.Lock()
	cancel := ent.cancel
	s.mux.Unlock()
	if cancel != nil {
		cancel()
	}

	var runID string
	if last := ent.state.LastResult(); last != nil {
		runID = last.RunID
	}
	stopped := s.executor.Stop(ctx, runID)

	if !ent.state.GetPhase().Terminal() {
		ent.state.AddFailure("stopped by user")
		ent.state.SetPhase(epic.PhaseCancelled)
		if err := s.store.Save(ctx, ent.state); err != nil {
			log.Printf("epicflow: checkpoint save for epic %s failed: %v", epicID, err)
		}
		s.publisher.Publish(ctx, event.Event{
			Type:   event.TypeEpicCancelled,
			EpicID: epicID,
			Phase:  epic.PhaseCancelled,
			Cost:   ent.state.Cost(),
		})
	}
	return stopped, nil
}

// ListActive returns projections of every non-terminal epic, oldest first.
func (s *Service) ListActive() []*epic.State {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var out []*epic.State
	for _, ent := range s.epics {
		if ent.state.GetPhase().Terminal() {
			continue
		}
		out = append(out, ent.state.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Recover re-registers non-terminal epics found in the checkpoint store, as
// after a process restart.  Executing epics resume immediately; reviewing
// epics stay suspended until a decision arrives.  It returns the number of
// epics recovered.
func (s *Service) Recover(ctx context.Context) (int, error) {
	states, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, state := range states {
		if state.GetPhase().Terminal() {
			continue
		}
		if s.entry(state.ID) != nil {
			continue
		}
		ent := &entry{state: state, tracker: progress.FromState(state)}
		s.mux.Lock()
		s.epics[state.ID] = ent
		s.mux.Unlock()
		recovered++
		if state.GetPhase() != epic.PhaseReviewing {
			s.launch(ent)
		}
	}
	return recovered, nil
}

// Progress returns a snapshot of the epic's step counters.
func (s *Service) Progress(epicID string) (progress.Progress, error) {
	ent := s.entry(epicID)
	if ent == nil {
		return progress.Progress{}, ErrEpicNotFound
	}
	return ent.tracker.Snapshot(), nil
}

// entry returns the registered entry for epicID, nil when unknown.
func (s *Service) entry(epicID string) *entry {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.epics[epicID]
}

// adopt returns the registered entry for epicID, registering the epic from
// the checkpoint store when it is only held there.
func (s *Service) adopt(ctx context.Context, epicID string) (*entry, error) {
	if ent := s.entry(epicID); ent != nil {
		return ent, nil
	}
	states, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, state := range states {
		if state.ID != epicID {
			continue
		}
		ent := &entry{state: state, tracker: progress.FromState(state)}
		s.mux.Lock()
		if existing := s.epics[epicID]; existing != nil {
			ent = existing
		} else {
			s.epics[epicID] = ent
		}
		s.mux.Unlock()
		return ent, nil
	}
	return nil, ErrEpicNotFound
}

// launch drives the epic on its own goroutine.  At most one run per epic is
// active at a time; a second launch while one is running is a no-op, and the
// finishing run re-checks for a decision that arrived in the meantime.
func (s *Service) launch(ent *entry) {
	s.mux.Lock()
	if ent.running {
		s.mux.Unlock()
		return
	}
	ent.running = true
	ctx, cancel := context.WithCancel(context.Background())
	ctx = progress.WithTracker(ctx, ent.tracker)
	if s.policy != nil {
		ctx = policy.WithPolicy(ctx, s.policy)
	}
	ent.cancel = cancel
	s.mux.Unlock()

	go func() {
		defer cancel()
		outcome, err := s.machine.Run(ctx, ent.state)
		s.mux.Lock()
		ent.running = false
		ent.cancel = nil
		s.mux.Unlock()
		if err != nil {
			log.Printf("epicflow: epic %s failed: %v", ent.state.ID, err)
		}
		s.announce(context.WithoutCancel(ctx), ent, outcome)

		// A decision recorded while this run was unwinding found the running
		// flag still set, so its launch was a no-op.  Now that the flag is
		// clear, pick that decision up here instead of leaving the epic
		// suspended forever.
		if ent.state.GetPhase() == epic.PhaseReviewing && !ent.state.HasPendingApprovals() {
			s.launch(ent)
		}
	}()
}

func (s *Service) announce(ctx context.Context, ent *entry, outcome *machine.Outcome) {
	if outcome == nil {
		return
	}
	var text string
	switch {
	case outcome.Suspended && outcome.Approval != nil:
		text = outcome.Approval.Message
	case outcome.Suspended:
		text = fmt.Sprintf("Epic %s is waiting for approval", ent.state.ID)
	default:
		text = fmt.Sprintf("Epic %s finished: %s (cost %.2f)", ent.state.ID, outcome.Phase, ent.state.Cost())
	}
	if err := s.notifier.ReplyInThread(ctx, s.config.NotifyChannel, ent.ref, text); err != nil {
		log.Printf("epicflow: notification for epic %s failed: %v", ent.state.ID, err)
	}
}

func creationMessage(state *epic.State) string {
	return fmt.Sprintf("Epic %s created: %s\nPlanned steps: %v\nEstimated cost: %.2f",
		state.ID, state.Title, state.PlannedSteps, state.EstimatedCost)
}

func approvalRequired(state *epic.State) bool {
	if state.Request != nil && state.Request.Mode() == epic.ApprovalManual {
		return true
	}
	return state.CostLimit > 0 && state.EstimatedCost > state.CostLimit*0.8
}
