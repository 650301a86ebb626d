package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epicflow/epicflow/model/epic"
)

func TestSelectSteps(t *testing.T) {
	type testCase struct {
		name        string
		description string
		keywords    []string
		hints       []epic.Step
		expected    []epic.Step
	}

	tests := []testCase{
		{
			name:        "test request includes verify",
			description: "Create comprehensive tests for the authentication system",
			expected:    []epic.Step{epic.StepDesign, epic.StepBuild, epic.StepVerify},
		},
		{
			name:        "bugfix falls back to canned sequence",
			description: "something is wrong here",
			keywords:    []string{"bug"},
			expected:    []epic.Step{epic.StepFix, epic.StepVerify, epic.StepFinalize},
		},
		{
			name:        "documentation request",
			description: "update the readme and docs",
			expected:    []epic.Step{epic.StepDocument, epic.StepFinalize},
		},
		{
			name:        "finalize always moves last",
			description: "implement the release endpoint and add tests before we ship",
			expected:    []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize},
		},
		{
			name:        "hints bypass scoring but are reordered",
			description: "whatever text",
			hints:       []epic.Step{epic.StepFinalize, epic.StepVerify, epic.StepBuild},
			expected:    []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize},
		},
		{
			name:        "design prepended for new system build",
			description: "add a new notification service",
			expected:    []epic.Step{epic.StepDesign, epic.StepBuild, epic.StepVerify, epic.StepFinalize},
		},
		{
			name:        "unclassifiable text gets the default sequence",
			description: "make it faster please",
			expected:    []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize},
		},
	}

	svc := New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			steps, err := svc.SelectSteps(tc.description, tc.keywords, tc.hints)
			assert.NoError(t, err)
			assert.EqualValues(t, tc.expected, steps)
		})
	}
}

func TestSelectStepsRejectsUnknownHint(t *testing.T) {
	svc := New()
	_, err := svc.SelectSteps("anything", nil, []epic.Step{"deploy-to-mars"})
	assert.Error(t, err)
	var unknown *epic.UnknownStepError
	assert.ErrorAs(t, err, &unknown)
}

func TestComplexity(t *testing.T) {
	svc := New()

	simple := svc.Complexity("fix a typo", nil)
	involved := svc.Complexity("build a new distributed system with a database migration and external integration across services", nil)

	assert.GreaterOrEqual(t, simple, 1)
	assert.LessOrEqual(t, simple, 10)
	assert.Greater(t, involved, simple)
	assert.LessOrEqual(t, involved, 10)
}

func TestEstimateCost(t *testing.T) {
	svc := New()

	// base * (0.5 + complexity/10), 2 decimals
	assert.Equal(t, 8.0, svc.EstimateCost(epic.StepBuild, 5))
	assert.Equal(t, 4.8, svc.EstimateCost(epic.StepBuild, 1))
	assert.Equal(t, 12.0, svc.EstimateCost(epic.StepBuild, 10))
	assert.Zero(t, svc.EstimateCost("bogus", 5))
}

func TestEstimateDuration(t *testing.T) {
	svc := New()
	steps := []epic.Step{epic.StepBuild, epic.StepVerify}

	baseline := svc.EstimateDuration(steps, 5)
	assert.Equal(t, 42.0, baseline)

	harder := svc.EstimateDuration(steps, 10)
	assert.Greater(t, harder, baseline)
}

func TestBuildPlan(t *testing.T) {
	svc := New()
	request := &epic.Request{Description: "Create comprehensive tests for the authentication system"}

	plan, err := svc.BuildPlan(request)
	assert.NoError(t, err)
	assert.NotEmpty(t, plan.ID)
	assert.NotEmpty(t, plan.Steps)
	assert.Contains(t, plan.Steps, epic.StepVerify)
	assert.Greater(t, plan.EstimatedCost, 0.0)
	assert.Greater(t, plan.EstimatedDuration, 0.0)
	assert.NoError(t, plan.Validate())

	// no duplicate steps in any plan
	seen := map[epic.Step]bool{}
	for _, s := range plan.Steps {
		assert.False(t, seen[s], "duplicate step %s", s)
		seen[s] = true
	}
}

func TestBuildPlanIdempotent(t *testing.T) {
	svc := New()
	request := &epic.Request{Description: "improve error handling in the billing module"}

	first, err := svc.BuildPlan(request)
	assert.NoError(t, err)
	second, err := svc.BuildPlan(request)
	assert.NoError(t, err)

	assert.EqualValues(t, first.Steps, second.Steps)
	assert.Equal(t, first.Complexity, second.Complexity)
	assert.Equal(t, first.EstimatedCost, second.EstimatedCost)
	assert.Equal(t, first.EstimatedDuration, second.EstimatedDuration)
}

func TestBuildPlanRejectsEmptyDescription(t *testing.T) {
	svc := New()
	_, err := svc.BuildPlan(&epic.Request{Description: "   "})
	assert.ErrorIs(t, err, epic.ErrEmptyDescription)
}
