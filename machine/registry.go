package machine

import (
	"fmt"

	"github.com/epicflow/epicflow/model/epic"
)

// StepSpec configures how the machine dispatches one step kind.
type StepSpec struct {
	MaxTurns        int
	CreatesRollback bool
}

// Registry maps step kinds to their dispatch configuration.  Planning fails
// fast on any step that is not registered, so a plan can never reach the
// executor with an undispatched step kind.
type Registry map[epic.Step]StepSpec

// DefaultRegistry covers every known step kind with turn budgets scaled to
// the typical size of each step.
func DefaultRegistry() Registry {
	return Registry{
		epic.StepDesign:   {MaxTurns: 30},
		epic.StepBuild:    {MaxTurns: 60, CreatesRollback: true},
		epic.StepFix:      {MaxTurns: 40, CreatesRollback: true},
		epic.StepImprove:  {MaxTurns: 40, CreatesRollback: true},
		epic.StepVerify:   {MaxTurns: 30},
		epic.StepDocument: {MaxTurns: 20},
		epic.StepAudit:    {MaxTurns: 30},
		epic.StepFinalize: {MaxTurns: 20, CreatesRollback: true},
	}
}

// Validate ensures every planned step has a registered spec.
func (r Registry) Validate(steps []epic.Step) error {
	for _, step := range steps {
		if _, ok := r[step]; !ok {
			return fmt.Errorf("step %q has no registered spec", step)
		}
	}
	return nil
}

// Spec returns the registered spec for step, falling back to a conservative
// default for steps registered after planning.
func (r Registry) Spec(step epic.Step) StepSpec {
	if spec, ok := r[step]; ok {
		return spec
	}
	return StepSpec{MaxTurns: 40}
}
