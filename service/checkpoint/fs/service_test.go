package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/service/checkpoint"
)

func populatedState(threadID string) *epic.State {
	state := epic.NewState("epic-1", "sess-1", threadID, &epic.Request{Description: "persisted epic"})
	state.ApplyPlan(&epic.Plan{
		ID:          "plan-1",
		Title:       "persisted epic",
		Description: "persisted epic",
		Complexity:  5,
		Steps:       []epic.Step{epic.StepBuild, epic.StepVerify},
	})
	state.RecordResult(&epic.WorkflowResult{Step: epic.StepBuild, Status: epic.StatusSuccess, Cost: 3, Commits: []string{"c1"}})
	state.AddApprovalPoint(&epic.ApprovalPoint{ID: "a1", Step: epic.StepVerify, Trigger: epic.TriggerCostThreshold})
	state.SetPhase(epic.PhaseReviewing)
	return state
}

func TestSaveLoadRoundTrip(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	state := populatedState("thread-1")
	assert.NoError(t, service.Save(ctx, state))

	loaded, err := service.Load(ctx, "thread-1")
	assert.NoError(t, err)
	assert.Equal(t, "epic-1", loaded.ID)
	assert.Equal(t, epic.PhaseReviewing, loaded.Phase)
	assert.Equal(t, 3.0, loaded.CostAccumulated)
	assert.Equal(t, []epic.Step{epic.StepBuild}, loaded.CompletedSteps)
	assert.True(t, loaded.HasResult(epic.StepBuild))
	assert.True(t, loaded.HasPendingApprovals())
	assert.Equal(t, "c1", loaded.LastCommit())
}

func TestLoadNotFound(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)

	_, err = service.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = service.Load(context.Background(), "")
	assert.ErrorIs(t, err, checkpoint.ErrInvalidID)
}

func TestSaveValidation(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)

	assert.ErrorIs(t, service.Save(context.Background(), nil), checkpoint.ErrNilEntity)
	assert.ErrorIs(t, service.Save(context.Background(), &epic.State{}), checkpoint.ErrInvalidID)
}

func TestDelete(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, populatedState("thread-1")))
	assert.NoError(t, service.Delete(ctx, "thread-1"))
	_, err = service.Load(ctx, "thread-1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	assert.ErrorIs(t, service.Delete(ctx, "thread-1"), checkpoint.ErrNotFound)
}

func TestList(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, populatedState("thread-1")))
	assert.NoError(t, service.Save(ctx, populatedState("thread-2")))

	states, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, states, 2)
}
