package epic

import (
	"regexp"
	"strconv"
	"strings"
)

// ApprovalMode controls whether every step requires human sign-off or only
// the ones a risk trigger fires for.
type ApprovalMode string

const (
	ApprovalAuto   ApprovalMode = "auto"
	ApprovalManual ApprovalMode = "manual"
)

// Request describes a user-level development task to be decomposed into
// workflow steps.  It is immutable once created.
type Request struct {
	Description  string            `json:"description" yaml:"description"`
	Context      map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
	CostLimit    float64           `json:"costLimit,omitempty" yaml:"costLimit,omitempty"`
	RequireTests bool              `json:"requireTests,omitempty" yaml:"requireTests,omitempty"`
	RequirePR    bool              `json:"requirePr,omitempty" yaml:"requirePr,omitempty"`
	ApprovalMode ApprovalMode      `json:"approvalMode,omitempty" yaml:"approvalMode,omitempty"`
	Steps        []Step            `json:"steps,omitempty" yaml:"steps,omitempty"` // explicit hints, bypass scoring
	Keywords     []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// Validate rejects requests before any state is created.
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.Description) == "" {
		return ErrEmptyDescription
	}
	return nil
}

// Mode returns the effective approval mode, defaulting to auto.
func (r *Request) Mode() ApprovalMode {
	if r.ApprovalMode == ApprovalManual {
		return ApprovalManual
	}
	return ApprovalAuto
}

var budgetPattern = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)

// ParseBudget extracts a "$NN" budget limit embedded in free text.  It
// returns 0 when no budget is mentioned.
func ParseBudget(text string) float64 {
	match := budgetPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	return value
}

// EffectiveCostLimit returns the explicit limit when set, otherwise a budget
// parsed out of the description text.
func (r *Request) EffectiveCostLimit() float64 {
	if r.CostLimit > 0 {
		return r.CostLimit
	}
	return ParseBudget(r.Description)
}
