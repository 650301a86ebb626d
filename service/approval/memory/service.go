package memory

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/epicflow/epicflow/internal/clock"
	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/service/approval"
	"github.com/epicflow/epicflow/service/messaging"
	qmem "github.com/epicflow/epicflow/service/messaging/memory"
)

type record struct {
	epicID string
	point  *epic.ApprovalPoint
}

// service keeps the cross-epic pending-approvals registry.  Approvals are
// created by the machine goroutine owning an epic but resolved from external
// call paths, so every access goes through one lock.
type service struct {
	mux     sync.RWMutex
	records map[string]*record
	events  messaging.Queue[approval.Event]
}

var _ approval.Service = (*service)(nil)

// New creates an in-memory approval manager.
func New() approval.Service {
	return &service{
		records: make(map[string]*record),
		events:  qmem.NewQueue[approval.Event](qmem.DefaultConfig()),
	}
}

func (s *service) CheckApprovalNeeded(ctx context.Context, state *epic.State, last *epic.WorkflowResult) (*epic.ApprovalPoint, error) {
	trigger, reason, ok := approval.Evaluate(state, last)
	if !ok {
		return nil, nil
	}
	return s.CreateRequest(ctx, state, trigger, reason)
}

func (s *service) CreateRequest(ctx context.Context, state *epic.State, trigger epic.Trigger, reason string) (*epic.ApprovalPoint, error) {
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	now := clock.Now()
	point := &epic.ApprovalPoint{
		ID:          fmt.Sprintf("%s-%s-%d", state.ID, trigger, now.UnixNano()),
		Trigger:     trigger,
		Reason:      reason,
		RequestedAt: now,
	}
	if step, ok := state.Current(); ok {
		point.Step = step
	}
	point.Message = approval.RenderMessage(state, point)

	s.mux.Lock()
	s.records[point.ID] = &record{epicID: state.ID, point: point}
	s.mux.Unlock()

	_ = s.events.Publish(ctx, &approval.Event{
		Topic:  approval.TopicRequestCreated,
		EpicID: state.ID,
		Point:  point,
	})
	return point, nil
}

func (s *service) RecordDecision(ctx context.Context, id, decision, approver, comments string) (*epic.ApprovalPoint, error) {
	s.mux.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mux.Unlock()
		log.Printf("approval: decision for unknown id %q ignored", id)
		return nil, nil
	}
	if rec.point.DecidedAt != nil {
		s.mux.Unlock()
		return nil, fmt.Errorf("approval %s already decided", id)
	}
	now := clock.Now()
	rec.point.DecidedAt = &now
	rec.point.Decision = decision
	rec.point.Approver = approver
	rec.point.Comments = comments
	point := rec.point
	epicID := rec.epicID
	s.mux.Unlock()

	_ = s.events.Publish(ctx, &approval.Event{
		Topic:  approval.TopicDecisionCreated,
		EpicID: epicID,
		Point:  point,
	})
	return point, nil
}

func (s *service) GetPending(_ context.Context, epicID string) ([]*epic.ApprovalPoint, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var out []*epic.ApprovalPoint
	for _, rec := range s.records {
		if rec.point.Resolved() {
			continue
		}
		if epicID != "" && rec.epicID != epicID {
			continue
		}
		out = append(out, rec.point)
	}
	return out, nil
}

func (s *service) Get(_ context.Context, id string) (*epic.ApprovalPoint, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return rec.point, nil
}

func (s *service) Queue() messaging.Queue[approval.Event] {
	return s.events
}
