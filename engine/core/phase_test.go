package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	t.Run("Should accept every phase in the state machine", func(t *testing.T) {
		for _, raw := range []string{
			"ANALYZING", "GATHERING_INFO", "CONFIRMING", "EXECUTING", "RESPONDING",
		} {
			phase, err := ParsePhase(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, phase.String())
		}
	})
	t.Run("Should reject unknown phases", func(t *testing.T) {
		_, err := ParsePhase("THINKING")
		assert.ErrorContains(t, err, "unknown phase")
	})
}

func TestPhaseAwaitsInput(t *testing.T) {
	t.Run("Should suspend only while gathering or confirming", func(t *testing.T) {
		assert.True(t, PhaseGathering.AwaitsInput())
		assert.True(t, PhaseConfirming.AwaitsInput())
		assert.False(t, PhaseAnalyzing.AwaitsInput())
		assert.False(t, PhaseExecuting.AwaitsInput())
		assert.False(t, PhaseResponding.AwaitsInput())
	})
}
