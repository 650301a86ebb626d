package router

import (
	"strings"

	"github.com/epicflow/epicflow/model/epic"
)

// stepPatterns maps every step type to the keyword patterns scored against
// the combined request text.  Longer patterns carry more weight so that more
// specific phrasing wins ties.
var stepPatterns = map[epic.Step][]string{
	epic.StepDesign: {
		"design", "architect", "architecture", "plan the", "high-level", "api design", "data model",
	},
	epic.StepBuild: {
		"build", "implement", "create", "add", "develop", "write", "new feature", "endpoint", "integrate",
	},
	epic.StepFix: {
		"fix", "bug", "error", "crash", "broken", "regression", "not working", "failing",
	},
	epic.StepImprove: {
		"improve", "refactor", "optimize", "clean up", "cleanup", "performance", "simplify", "modernize",
	},
	epic.StepVerify: {
		"test", "tests", "verify", "validate", "coverage", "qa", "check that",
	},
	epic.StepDocument: {
		"document", "documentation", "docs", "readme", "changelog", "comment",
	},
	epic.StepAudit: {
		"audit", "review", "security review", "compliance", "vulnerability",
	},
	epic.StepFinalize: {
		"finalize", "release", "ship", "pull request", "merge", "deliver",
	},
}

// complexityKeywords suggest a design step is warranted before building.
var complexityKeywords = []string{"new", "system", "module", "service"}

// requestType is the coarse classifier used for canned fallback sequences.
type requestType string

const (
	requestFeature       requestType = "feature"
	requestBugfix        requestType = "bugfix"
	requestRefactor      requestType = "refactor"
	requestDocumentation requestType = "documentation"
	requestGeneric       requestType = "generic"
)

// cannedSequences keyed by request type; used when scoring matched fewer than
// two steps.
var cannedSequences = map[requestType][]epic.Step{
	requestFeature:       {epic.StepDesign, epic.StepBuild, epic.StepVerify, epic.StepFinalize},
	requestBugfix:        {epic.StepFix, epic.StepVerify, epic.StepFinalize},
	requestRefactor:      {epic.StepImprove, epic.StepVerify, epic.StepFinalize},
	requestDocumentation: {epic.StepDocument, epic.StepFinalize},
	requestGeneric:       defaultSequence,
}

// defaultSequence applies when the classifier finds nothing better.
var defaultSequence = []epic.Step{epic.StepBuild, epic.StepVerify, epic.StepFinalize}

// classify buckets a request into a coarse type.
func classify(text string) requestType {
	switch {
	case containsAny(text, "fix", "bug", "error", "crash", "broken", "regression"):
		return requestBugfix
	case containsAny(text, "refactor", "clean up", "cleanup", "optimize", "improve"):
		return requestRefactor
	case containsAny(text, "document", "docs", "readme"):
		return requestDocumentation
	case containsAny(text, "build", "implement", "create", "add", "develop", "feature", "endpoint", "integrate"):
		return requestFeature
	}
	return requestGeneric
}

func containsAny(text string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// score counts pattern matches for one step, weighting each hit by pattern
// length.
func score(text string, step epic.Step) int {
	total := 0
	for _, pattern := range stepPatterns[step] {
		if strings.Contains(text, pattern) {
			total += len(pattern)
		}
	}
	return total
}
