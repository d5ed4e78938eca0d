package upgrade

import "fmt"

// ExperimentState is the lifecycle state of an experiment.
type ExperimentState string

const (
	StateInactive           ExperimentState = "inactive"
	StatePreview            ExperimentState = "preview"
	StateScheduled          ExperimentState = "scheduled"
	StateEnrolling          ExperimentState = "enrolling"
	StateEnrollmentComplete ExperimentState = "enrollmentComplete"
	StateCancelled          ExperimentState = "cancelled"
	StateArchived           ExperimentState = "archived"
	StateDraft              ExperimentState = "draft"
)

// validTransitions is the set of state changes the status update endpoint
// accepts. Cancelled is terminal.
var validTransitions = map[ExperimentState][]ExperimentState{
	StateInactive:           {StateEnrolling, StateCancelled},
	StateEnrolling:          {StateEnrollmentComplete, StateCancelled},
	StateEnrollmentComplete: {StateCancelled},
	StateCancelled:          {},
}

// stateMeanings gives the operational effect of each settable state, used
// when explaining transitions to the user.
var stateMeanings = map[ExperimentState]string{
	StateInactive:           "Experiment is not running, all users get default condition",
	StateEnrolling:          "Experiment is actively assigning conditions to users",
	StateEnrollmentComplete: "Stopped enrolling, post-experiment rule applies",
	StateCancelled:          "Experiment permanently stopped, no longer accessible",
}

// ParseState validates a raw string against the known lifecycle states.
func ParseState(raw string) (ExperimentState, error) {
	switch s := ExperimentState(raw); s {
	case StateInactive, StatePreview, StateScheduled, StateEnrolling,
		StateEnrollmentComplete, StateCancelled, StateArchived, StateDraft:
		return s, nil
	default:
		return "", fmt.Errorf("unknown experiment state: %q", raw)
	}
}

// CanTransition reports whether the lifecycle allows moving from one state
// to another.
func CanTransition(from, to ExperimentState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the states reachable from the given state.
func AllowedTransitions(from ExperimentState) []ExperimentState {
	return validTransitions[from]
}

// Describe returns a short explanation of what a state does, or an empty
// string for states the orchestrator never sets.
func Describe(s ExperimentState) string {
	return stateMeanings[s]
}

func (s ExperimentState) String() string {
	return string(s)
}
