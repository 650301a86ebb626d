// Package policy provides a simple, optional per-step approval layer that can
// be attached to an epic run via context.  It is deliberately decoupled from
// the rest of the engine so that using it is entirely opt-in – runs that do
// not embed a Policy in their context keep the default "auto" behaviour.

package policy

import (
	"context"
	"strings"

	"github.com/epicflow/epicflow/model/epic"
)

// Execution modes recognised by the engine.
const (
	ModeAsk  = "ask"  // ask before every step
	ModeAuto = "auto" // execute automatically (default)
	ModeDeny = "deny" // block execution
)

// AskFunc is invoked when Mode==ask.  Returning true approves the step, false
// rejects it.  Implementations MAY mutate the policy (for example, switching
// to ModeAuto after the first approval).
type AskFunc func(ctx context.Context, step epic.Step, state *epic.State, p *Policy) bool

// Policy represents the step-gating settings for the current epic run.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - AllowList, BlockList allow coarse filtering regardless of Mode.
//   - Ask is only used when Mode==ask.
//
// A nil *Policy means "execute everything automatically" and is therefore the
// zero-cost default.
type Policy struct {
	Mode      string
	AllowList []epic.Step // whitelist (empty => all)
	BlockList []epic.Step
	Ask       AskFunc // used only when Mode==ask
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode      string      `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []epic.Step `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []epic.Step `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]epic.Step(nil), p.AllowList...),
		BlockList: append([]epic.Step(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without
// AskFunc).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]epic.Step(nil), c.AllowList...),
		BlockList: append([]epic.Step(nil), c.BlockList...),
	}
}

// IsAllowed evaluates AllowList / BlockList.  Both lists match by
// case-insensitive comparison of the step kind.  BlockList has priority.
func (p *Policy) IsAllowed(step epic.Step) bool {
	if p == nil {
		return true
	}
	for _, b := range p.BlockList {
		if strings.EqualFold(string(step), string(b)) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if strings.EqualFold(string(step), string(a)) {
			return true
		}
	}
	return false
}

// Allows combines list filtering with the mode: deny blocks everything, ask
// defers to the AskFunc, auto (or a nil policy) lets the step through.
func (p *Policy) Allows(ctx context.Context, step epic.Step, state *epic.State) bool {
	if p == nil {
		return true
	}
	if !p.IsAllowed(step) {
		return false
	}
	switch p.Mode {
	case ModeDeny:
		return false
	case ModeAsk:
		if p.Ask == nil {
			return false
		}
		return p.Ask(ctx, step, state, p)
	}
	return true
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy from ctx, nil when absent.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
