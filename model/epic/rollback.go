package epic

import "time"

// RollbackPoint records a backend-addressable snapshot captured before a
// risky step, consumed only on failure or deny paths.
type RollbackPoint struct {
	ID          string    `json:"id"`
	Step        Step      `json:"step"`
	Commit      string    `json:"commit,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Description string    `json:"description,omitempty"`
}
