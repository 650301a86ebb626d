package approval

import (
	"fmt"
	"strings"

	"github.com/epicflow/epicflow/model/epic"
)

// securityKeywords is the fixed set scanned case-insensitively across changed
// file names and the result summary.
var securityKeywords = []string{
	"auth",
	"secret",
	"token",
	"credential",
	"permission",
	"password",
	"login",
	"session",
	"security",
	"crypto",
	"certificate",
	"apikey",
}

// costThresholdRatio is the fraction of the cost limit beyond which a
// checkpoint is forced.
const costThresholdRatio = 0.8

// Evaluate runs the risk-trigger chain in order; the first match wins.  It
// returns the trigger and a human-readable reason, or ok=false when nothing
// fired.
func Evaluate(state *epic.State, last *epic.WorkflowResult) (epic.Trigger, string, bool) {
	if state == nil {
		return "", "", false
	}

	// 1. manual approval mode forces a checkpoint for any step still pending
	if state.Request != nil && state.Request.Mode() == epic.ApprovalManual {
		if step, ok := state.Current(); ok && !state.StepCompleted(step) {
			return epic.TriggerManual, fmt.Sprintf("manual approval mode: step %q requires sign-off", step), true
		}
	}

	// 2. cost threshold
	if state.CostLimit > 0 && state.Cost() > state.CostLimit*costThresholdRatio {
		return epic.TriggerCostThreshold,
			fmt.Sprintf("accumulated cost %.2f exceeds %.0f%% of limit %.2f",
				state.Cost(), costThresholdRatio*100, state.CostLimit), true
	}

	if last != nil {
		// 3. step-specific artifact inspection
		if len(last.BreakingChanges) > 0 {
			return epic.TriggerBreakingChange,
				fmt.Sprintf("step %q reported breaking changes: %s", last.Step, strings.Join(last.BreakingChanges, ", ")), true
		}
		if len(last.NewEndpoints) > 0 {
			return epic.TriggerNewEndpoint,
				fmt.Sprintf("step %q exposed new external endpoints: %s", last.Step, strings.Join(last.NewEndpoints, ", ")), true
		}
		if len(last.SchemaChanges) > 0 {
			return epic.TriggerSchemaChange,
				fmt.Sprintf("step %q changed database schema: %s", last.Step, strings.Join(last.SchemaChanges, ", ")), true
		}

		// 4. new external dependencies
		if len(last.NewDependencies) > 0 {
			return epic.TriggerNewDependency,
				fmt.Sprintf("step %q added dependencies: %s", last.Step, strings.Join(last.NewDependencies, ", ")), true
		}

		// 5. security heuristic over changed files and summary
		if hit := securityHit(last); hit != "" {
			return epic.TriggerSecurityChanges,
				fmt.Sprintf("step %q touched security-sensitive area (%s)", last.Step, hit), true
		}
	}

	return "", "", false
}

func securityHit(result *epic.WorkflowResult) string {
	haystacks := make([]string, 0, len(result.ChangedFiles)+1)
	for _, f := range result.ChangedFiles {
		haystacks = append(haystacks, strings.ToLower(f))
	}
	if result.Summary != "" {
		haystacks = append(haystacks, strings.ToLower(result.Summary))
	}
	for _, h := range haystacks {
		for _, kw := range securityKeywords {
			if strings.Contains(h, kw) {
				return kw
			}
		}
	}
	return ""
}

// RenderMessage produces the human-readable approval message shown on the
// notification channel.
func RenderMessage(state *epic.State, point *epic.ApprovalPoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval needed for epic %s (%s)\n", state.ID, state.Title)
	fmt.Fprintf(&b, "Trigger: %s\n", point.Trigger)
	fmt.Fprintf(&b, "Reason: %s\n", point.Reason)
	fmt.Fprintf(&b, "Cost: %.2f", state.Cost())
	if state.CostLimit > 0 {
		fmt.Fprintf(&b, " of %.2f limit", state.CostLimit)
	}
	b.WriteString("\n")
	completed := make([]string, 0, len(state.CompletedSteps))
	for _, s := range state.CompletedSteps {
		completed = append(completed, string(s))
	}
	if len(completed) > 0 {
		fmt.Fprintf(&b, "Completed steps: %s\n", strings.Join(completed, ", "))
	} else {
		b.WriteString("Completed steps: none\n")
	}
	return b.String()
}
