package epicflow

import (
	"fmt"

	"github.com/epicflow/epicflow/service/backend"
)

// Config is a serialisable representation of the engine configuration.  It
// can be populated from JSON or YAML; the zero-value inherits the package
// defaults for every nested field.
type Config struct {
	Backend backend.Config `json:"backend" yaml:"backend"`

	// HardCostCeiling rejects any plan whose estimate exceeds it, before a
	// single step runs.  It is distinct from a request's own soft budget,
	// which only forces an approval checkpoint.  Zero disables the ceiling.
	HardCostCeiling float64 `json:"hardCostCeiling" yaml:"hardCostCeiling"`

	// CheckpointLocation selects the filesystem checkpoint store when set;
	// empty keeps snapshots in memory.
	CheckpointLocation string `json:"checkpointLocation" yaml:"checkpointLocation"`

	// NotifyChannel is the channel id passed to the notifier.
	NotifyChannel string `json:"notifyChannel" yaml:"notifyChannel"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to NewFromConfig.
func DefaultConfig() *Config {
	return &Config{
		Backend:         backend.DefaultConfig(),
		HardCostCeiling: 100,
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.HardCostCeiling < 0 {
		return fmt.Errorf("hardCostCeiling must be >= 0")
	}
	if c.Backend.PollInterval <= 0 {
		return fmt.Errorf("backend.pollInterval must be > 0")
	}
	if c.Backend.MaxWaitTime <= 0 {
		return fmt.Errorf("backend.maxWaitTime must be > 0")
	}
	return nil
}
