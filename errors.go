package epicflow

import (
	"errors"
	"fmt"
)

var (
	// ErrEpicNotFound is returned for status, approval and stop calls that
	// reference an unknown epic id.
	ErrEpicNotFound = errors.New("epic not found")

	// ErrApprovalNotFound is returned when an approval id does not match any
	// checkpoint recorded for the epic.
	ErrApprovalNotFound = errors.New("approval not found")
)

// CostLimitError rejects a plan whose estimate exceeds the engine-wide hard
// ceiling.  It is raised at planning time, before any step is dispatched.
type CostLimitError struct {
	Estimated float64
	Ceiling   float64
}

func (e *CostLimitError) Error() string {
	return fmt.Sprintf("estimated cost %.2f exceeds hard ceiling %.2f", e.Estimated, e.Ceiling)
}
