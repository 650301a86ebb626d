// Package progress provides a lightweight tracker that keeps aggregated step
// counters (planned, completed, failed, …) for a single epic run.  The
// tracker instance lives in the run context – every component that receives
// the context can atomically update the counters via the Delta helper without
// requiring a global registry.

package progress

import (
	"context"
	"sync"
	"time"

	"github.com/epicflow/epicflow/model/epic"
)

// Delta represents an incremental counter change emitted by the machine.
// The fields are signed and therefore can be either positive (increment) or
// negative (decrement).
type Delta struct {
	Total     int
	Completed int
	Failed    int
	Running   int
	Pending   int
}

// Progress keeps aggregated step counters for one epic.  It is safe for
// concurrent use.
type Progress struct {
	// Identification – informative only, filled when the epic starts.
	EpicID    string
	Title     string
	StartedAt time.Time

	// Counters – modified via Update().
	TotalSteps     int
	CompletedSteps int
	FailedSteps    int
	RunningSteps   int
	PendingSteps   int

	sync.Mutex
	onChange func(Progress)
}

// Update applies the supplied delta to the tracker.  It is safe to call from
// multiple goroutines.  If an onChange callback has been registered it will
// be invoked with a copy of the updated tracker outside the critical section
// so that the callback can perform slow operations (e.g. JSON encoding, I/O)
// without blocking engine internals.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.Lock()

	p.TotalSteps += d.Total
	p.CompletedSteps += d.Completed
	p.FailedSteps += d.Failed
	p.RunningSteps += d.Running
	p.PendingSteps += d.Pending

	snapshot := *p
	cb := p.onChange

	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return *p
}

// OnChange registers a callback that is invoked after every successful
// Update.  Passing nil disables the callback.  Only one callback can be
// active; subsequent calls overwrite the previous value.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

// FromState seeds a tracker from a checkpointed state, so counters survive a
// process restart together with the epic itself.
func FromState(state *epic.State) *Progress {
	if state == nil {
		return &Progress{StartedAt: time.Now()}
	}
	snapshot := state.Clone()
	attempted := len(snapshot.Results)
	completed := len(snapshot.CompletedSteps)
	return &Progress{
		EpicID:         snapshot.ID,
		Title:          snapshot.Title,
		StartedAt:      snapshot.CreatedAt,
		TotalSteps:     len(snapshot.PlannedSteps),
		CompletedSteps: completed,
		FailedSteps:    attempted - completed,
		PendingSteps:   len(snapshot.PlannedSteps) - attempted,
	}
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds an existing tracker in a derived context.
func WithTracker(ctx context.Context, tr *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tr)
}

// WithNewTracker creates a new Progress tracker, embeds it in a derived
// context and returns both.  The caller may optionally pass an onChange
// callback that will be invoked after every counter update.
func WithNewTracker(ctx context.Context, epicID, title string, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{
		EpicID:    epicID,
		Title:     title,
		StartedAt: time.Now(),
		onChange:  onChange,
	}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the Progress tracker from ctx.  The second return
// value is false when the context carries no tracker.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}
