package router

import (
	"fmt"
	"math"
	"strings"

	"github.com/epicflow/epicflow/internal/idgen"
	"github.com/epicflow/epicflow/model/epic"
)

// Service is the workflow router: pure planning logic that selects and orders
// step types, estimates per-step cost and total duration.  It makes no
// external calls and is idempotent for identical inputs.
type Service struct{}

// New creates a router service.
func New() *Service {
	return &Service{}
}

// SelectSteps scores every known step type against the combined description
// and keyword text.  Explicit hints bypass scoring; they are still validated
// and reordered by the consistency rules.
func (s *Service) SelectSteps(description string, keywords []string, hints []epic.Step) ([]epic.Step, error) {
	text := combinedText(description, keywords)

	if len(hints) > 0 {
		steps := dedupe(hints)
		if err := epic.ValidateSteps(steps); err != nil {
			return nil, err
		}
		return s.applyConsistencyRules(steps, text), nil
	}

	var matched []epic.Step
	for _, step := range epic.Precedence {
		if score(text, step) > 0 {
			matched = append(matched, step)
		}
	}

	// a single match rarely makes a coherent plan – fall back to a canned
	// sequence for the coarse request type
	if len(matched) < 2 {
		matched = append([]epic.Step(nil), cannedSequences[classify(text)]...)
	}
	return s.applyConsistencyRules(matched, text), nil
}

// applyConsistencyRules post-processes a step list for logical ordering:
// canonical precedence first, a design step in front of build work on
// complexity-triggering requests, verify immediately after the last
// code-changing step and finalize always last.
func (s *Service) applyConsistencyRules(steps []epic.Step, text string) []epic.Step {
	epic.SortByPrecedence(steps)

	if contains(steps, epic.StepBuild) && !contains(steps, epic.StepDesign) && containsAny(text, complexityKeywords...) {
		steps = append([]epic.Step{epic.StepDesign}, steps...)
	}

	steps = placeVerify(steps)
	steps = placeFinalizeLast(steps)
	return steps
}

// placeVerify moves verify immediately after the last code-changing step.
func placeVerify(steps []epic.Step) []epic.Step {
	if !contains(steps, epic.StepVerify) {
		return steps
	}
	without := remove(steps, epic.StepVerify)
	insertAt := 0
	for i, step := range without {
		if step.CodeChanging() && step != epic.StepFinalize {
			insertAt = i + 1
		}
	}
	if insertAt == 0 {
		// no code-changing step – keep verify in canonical position
		return steps
	}
	out := make([]epic.Step, 0, len(steps))
	out = append(out, without[:insertAt]...)
	out = append(out, epic.StepVerify)
	out = append(out, without[insertAt:]...)
	return out
}

func placeFinalizeLast(steps []epic.Step) []epic.Step {
	if !contains(steps, epic.StepFinalize) {
		return steps
	}
	out := remove(steps, epic.StepFinalize)
	return append(out, epic.StepFinalize)
}

// Complexity scores a request on a 1..10 scale: 5 as the baseline, a length
// adjustment and keyword bonuses, clamped.
func (s *Service) Complexity(description string, keywords []string) int {
	text := combinedText(description, keywords)
	value := 5

	lengthAdj := len(text) / 100
	if lengthAdj > 3 {
		lengthAdj = 3
	}
	value += lengthAdj

	if containsAny(text, "architecture", "distributed", "migration", "integration", "concurrent") {
		value += 2
	}
	if containsAny(text, complexityKeywords...) {
		value++
	}
	if containsAny(text, "simple", "small", "minor", "typo", "quick") {
		value -= 2
	}

	if value < 1 {
		value = 1
	}
	if value > 10 {
		value = 10
	}
	return value
}

// EstimateCost projects the cost of one step at the given complexity.
func (s *Service) EstimateCost(step epic.Step, complexity int) float64 {
	return round2(step.BaseCost() * (0.5 + float64(complexity)/10))
}

// EstimateDuration projects the total duration in minutes.
func (s *Service) EstimateDuration(steps []epic.Step, complexity int) float64 {
	multiplier := 1 + float64(complexity-5)*0.2
	total := 0.0
	for _, step := range steps {
		total += step.BaseDuration() * multiplier
	}
	return total
}

// BuildPlan turns a validated request into an immutable plan.
func (s *Service) BuildPlan(request *epic.Request) (*epic.Plan, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	steps, err := s.SelectSteps(request.Description, request.Keywords, request.Steps)
	if err != nil {
		return nil, err
	}
	complexity := s.Complexity(request.Description, request.Keywords)

	stepCosts := make(map[epic.Step]float64, len(steps))
	total := 0.0
	for _, step := range steps {
		cost := s.EstimateCost(step, complexity)
		stepCosts[step] = cost
		total += cost
	}

	plan := &epic.Plan{
		ID:                idgen.New(),
		Title:             planTitle(request.Description),
		Description:       request.Description,
		Complexity:        complexity,
		Steps:             steps,
		StepCosts:         stepCosts,
		EstimatedCost:     round2(total),
		EstimatedDuration: s.EstimateDuration(steps, complexity),
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("router produced invalid plan: %w", err)
	}
	return plan, nil
}

func planTitle(description string) string {
	title := strings.TrimSpace(description)
	if idx := strings.IndexByte(title, '\n'); idx > 0 {
		title = title[:idx]
	}
	if len(title) > 80 {
		title = strings.TrimSpace(title[:80])
	}
	return title
}

func combinedText(description string, keywords []string) string {
	parts := append([]string{description}, keywords...)
	return strings.ToLower(strings.Join(parts, " "))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func contains(steps []epic.Step, step epic.Step) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

func remove(steps []epic.Step, step epic.Step) []epic.Step {
	out := make([]epic.Step, 0, len(steps))
	for _, s := range steps {
		if s != step {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(steps []epic.Step) []epic.Step {
	seen := make(map[epic.Step]bool, len(steps))
	out := make([]epic.Step, 0, len(steps))
	for _, s := range steps {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
