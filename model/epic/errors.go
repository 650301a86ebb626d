package epic

import (
	"errors"
	"fmt"
)

// Sentinel errors allow callers to detect conditions via errors.Is instead of
// brittle string comparisons.
var (
	// ErrEmptyPlan indicates a plan with no steps.
	ErrEmptyPlan = errors.New("epic: empty plan")

	// ErrEmptyDescription indicates a request whose description is empty or
	// whitespace only.
	ErrEmptyDescription = errors.New("epic: empty description")
)

// UnknownStepError reports a step outside the closed variant set.
type UnknownStepError struct {
	Step Step
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("epic: unknown step %q", string(e.Step))
}

// DuplicateStepError reports a step listed twice in one plan.
type DuplicateStepError struct {
	Step Step
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("epic: duplicate step %q", string(e.Step))
}
