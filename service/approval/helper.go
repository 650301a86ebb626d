package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/epicflow/epicflow/model/epic"
)

// DecisionFunc decides what to do with a pending approval point.
// Return (epic.DecisionApproved, "") to approve or
//
//	(epic.DecisionDenied, "…") to deny with a comment.
type DecisionFunc func(p *epic.ApprovalPoint) (decision string, comment string)

// AutoDecider starts a goroutine that polls GetPending and applies fn to
// every pending point.  It returns stop() – call it (or cancel ctx) to exit.
func AutoDecider(ctx context.Context,
	svc Service,
	fn DecisionFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				points, _ := svc.GetPending(ctx, "")
				for _, p := range points {
					decision, comment := fn(p)
					_, _ = svc.RecordDecision(ctx, p.ID, decision, "auto", comment)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove automatically approves all pending approval points.
func AutoApprove(ctx context.Context, svc Service, interval time.Duration) func() {
	return AutoDecider(ctx, svc,
		func(*epic.ApprovalPoint) (string, string) { return epic.DecisionApproved, "" }, interval)
}

// AutoDeny automatically denies all pending approval points with the given
// comment.
func AutoDeny(ctx context.Context, svc Service, comment string, interval time.Duration) func() {
	return AutoDecider(ctx, svc,
		func(*epic.ApprovalPoint) (string, string) { return epic.DecisionDenied, comment }, interval)
}

// WaitForDecision blocks until the approval point identified by id has been
// resolved or the timeout elapses.
func WaitForDecision(ctx context.Context, svc Service, id string, timeout time.Duration) (*epic.ApprovalPoint, error) {
	deadline := time.Now().Add(timeout)
	for {
		point, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if point != nil && point.Resolved() {
			return point, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for decision on %q", id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
