package api

import (
	"fmt"
	"time"

	"fieldroute/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	switch req.Scope {
	case "", model.ScopeFull, model.ScopeRefine, model.ScopeCompleteReroute:
	default:
		return fmt.Errorf("invalid scope: %s (allowed: full, refine, complete_rerouting)", req.Scope)
	}
	if len(req.Days) == 0 {
		return fmt.Errorf("includedDays must name at least one day")
	}
	for _, d := range req.Days {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid day %q: expected YYYY-MM-DD", d)
		}
	}
	if req.TimeBudgetSec < 0 {
		return fmt.Errorf("timeBudgetSec must be >= 0")
	}
	switch req.SpeedTier {
	case "", "fast", "balanced", "thorough":
	default:
		return fmt.Errorf("invalid speedTier: %s (allowed: fast, balanced, thorough)", req.SpeedTier)
	}
	return nil
}
