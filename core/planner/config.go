package planner

import "fmt"

// Strategy selects the auto-optimizer implementation.
const (
	StrategyShare = "share"
	StrategyLP    = "lp"
)

// Config defines the tunable planner settings.
type Config struct {
	// WarningThreshold is the utilization fraction at which a site report is
	// flagged as a warning.
	WarningThreshold float64 `json:"warning_threshold"`
	// CriticalThreshold is the utilization fraction at which a site report
	// becomes critical.
	CriticalThreshold float64 `json:"critical_threshold"`
	// MaxAutoSites caps how many sites the auto-optimizer may select.
	MaxAutoSites int `json:"max_auto_sites"`
	// Strategy selects the optimizer: "share" (greedy even-share) or "lp".
	Strategy string `json:"strategy"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.WarningThreshold == 0 {
		c.WarningThreshold = 0.8
	}
	if c.CriticalThreshold == 0 {
		c.CriticalThreshold = 0.95
	}
	if c.MaxAutoSites == 0 {
		c.MaxAutoSites = 5
	}
	if c.Strategy == "" {
		c.Strategy = StrategyShare
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.WarningThreshold <= 0 || c.WarningThreshold > 1 {
		return fmt.Errorf("warning threshold must be in (0,1], got %v", c.WarningThreshold)
	}
	if c.CriticalThreshold <= 0 || c.CriticalThreshold > 1 {
		return fmt.Errorf("critical threshold must be in (0,1], got %v", c.CriticalThreshold)
	}
	if c.WarningThreshold > c.CriticalThreshold {
		return fmt.Errorf("warning threshold %v exceeds critical threshold %v", c.WarningThreshold, c.CriticalThreshold)
	}
	if c.MaxAutoSites <= 0 {
		return fmt.Errorf("max auto sites must be positive, got %d", c.MaxAutoSites)
	}
	if c.Strategy != StrategyShare && c.Strategy != StrategyLP {
		return fmt.Errorf("unknown planner strategy %q", c.Strategy)
	}
	return nil
}
