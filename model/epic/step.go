package epic

// Step identifies one coarse-grained unit of work dispatched to the execution
// backend.  The set is closed: plans referencing an unknown step are rejected
// at validation time, never at dispatch time.
type Step string

const (
	StepDesign   Step = "design"
	StepBuild    Step = "build"
	StepFix      Step = "fix"
	StepImprove  Step = "improve"
	StepVerify   Step = "verify"
	StepDocument Step = "document"
	StepAudit    Step = "audit"
	StepFinalize Step = "finalize"
)

// Precedence is the canonical ordering applied to selected steps.
var Precedence = []Step{
	StepDesign,
	StepBuild,
	StepFix,
	StepImprove,
	StepVerify,
	StepDocument,
	StepAudit,
	StepFinalize,
}

var precedenceIndex = func() map[Step]int {
	ret := make(map[Step]int, len(Precedence))
	for i, s := range Precedence {
		ret[s] = i
	}
	return ret
}()

// Known reports whether s belongs to the closed step set.
func (s Step) Known() bool {
	_, ok := precedenceIndex[s]
	return ok
}

// Rank returns the canonical precedence index of s; unknown steps sort last.
func (s Step) Rank() int {
	if idx, ok := precedenceIndex[s]; ok {
		return idx
	}
	return len(Precedence)
}

// CodeChanging reports whether the step mutates the target codebase.  Verify
// placement and rollback-point creation key off this.
func (s Step) CodeChanging() bool {
	switch s {
	case StepBuild, StepFix, StepImprove, StepFinalize:
		return true
	}
	return false
}

// baseCost holds the per-step base cost in currency units before the
// complexity multiplier is applied.
var baseCost = map[Step]float64{
	StepDesign:   3.0,
	StepBuild:    8.0,
	StepFix:      5.0,
	StepImprove:  5.0,
	StepVerify:   4.0,
	StepDocument: 2.0,
	StepAudit:    3.0,
	StepFinalize: 2.0,
}

// baseDuration holds the per-step base duration in minutes.
var baseDuration = map[Step]float64{
	StepDesign:   10,
	StepBuild:    30,
	StepFix:      15,
	StepImprove:  15,
	StepVerify:   12,
	StepDocument: 8,
	StepAudit:    10,
	StepFinalize: 5,
}

// BaseCost returns the base cost for s, zero for unknown steps.
func (s Step) BaseCost() float64 { return baseCost[s] }

// BaseDuration returns the base duration in minutes for s.
func (s Step) BaseDuration() float64 { return baseDuration[s] }

// SortByPrecedence orders steps in place following the canonical precedence.
func SortByPrecedence(steps []Step) {
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j].Rank() < steps[j-1].Rank(); j-- {
			steps[j], steps[j-1] = steps[j-1], steps[j]
		}
	}
}

// ValidateSteps rejects empty plans, duplicates and unknown variants.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return ErrEmptyPlan
	}
	seen := make(map[Step]bool, len(steps))
	for _, s := range steps {
		if !s.Known() {
			return &UnknownStepError{Step: s}
		}
		if seen[s] {
			return &DuplicateStepError{Step: s}
		}
		seen[s] = true
	}
	return nil
}
