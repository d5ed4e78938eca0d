package core

import "fmt"

// -----------------------------------------------------------------------------
// Conversation phases
// -----------------------------------------------------------------------------

// Phase is the engine's position in the turn-processing state machine.
// Every session starts a turn in PhaseAnalyzing and ends it in
// PhaseResponding; the phases between are only held while a turn is
// suspended waiting for more user input.
type Phase string

const (
	PhaseAnalyzing  Phase = "ANALYZING"
	PhaseGathering  Phase = "GATHERING_INFO"
	PhaseConfirming Phase = "CONFIRMING"
	PhaseExecuting  Phase = "EXECUTING"
	PhaseResponding Phase = "RESPONDING"
)

func (p Phase) String() string {
	return string(p)
}

// ParsePhase validates a stored phase value.
func ParsePhase(raw string) (Phase, error) {
	switch Phase(raw) {
	case PhaseAnalyzing, PhaseGathering, PhaseConfirming, PhaseExecuting, PhaseResponding:
		return Phase(raw), nil
	default:
		return "", fmt.Errorf("unknown phase: %q", raw)
	}
}

// AwaitsInput reports whether the phase suspends the turn until the user
// replies. EXECUTING never awaits input: an accepted action runs to
// completion or failure.
func (p Phase) AwaitsInput() bool {
	switch p {
	case PhaseGathering, PhaseConfirming:
		return true
	default:
		return false
	}
}
