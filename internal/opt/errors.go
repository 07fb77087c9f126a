package opt

import "fmt"

// InvalidInputError marks malformed or incomplete stop/technician data.
// It is raised before the solver runs and never retried.
type InvalidInputError struct {
	Field  string
	Detail string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Detail)
}

// Infeasibility reasons surfaced to callers.
const (
	ReasonNoTechnicians     = "no_technicians"
	ReasonOverCapacity      = "over_capacity"
	ReasonImpossibleWindows = "impossible_time_windows"
)

// NoFeasibleSolutionError marks a provably infeasible model, detected before
// the solver is invoked.
type NoFeasibleSolutionError struct {
	Reason string
	Detail string
}

func (e *NoFeasibleSolutionError) Error() string {
	return fmt.Sprintf("no feasible solution (%s): %s", e.Reason, e.Detail)
}
