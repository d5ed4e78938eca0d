package confirm

import (
	"strings"
	"testing"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	deleteSpec := action.MustGet(action.DeleteExperiment)
	createSpec := action.MustGet(action.CreateExperiment)

	t.Run("Should accept the affirmative vocabulary for non-destructive actions", func(t *testing.T) {
		for _, reply := range []string{"yes", "Yes", "y", "sure", "OK", "okay", "go ahead", "do it", "yes."} {
			assert.Equal(t, ReplyAffirm, Evaluate(createSpec, reply), "reply %q", reply)
		}
	})

	t.Run("Should accept the negative vocabulary for non-destructive actions", func(t *testing.T) {
		for _, reply := range []string{"no", "No", "n", "cancel", "never mind", "abort"} {
			assert.Equal(t, ReplyDeny, Evaluate(createSpec, reply), "reply %q", reply)
		}
	})

	t.Run("Should re-prompt on anything outside the vocabulary", func(t *testing.T) {
		for _, reply := range []string{"", "maybe", "what does this do?", "yess"} {
			assert.Equal(t, ReplyUnclear, Evaluate(createSpec, reply), "reply %q", reply)
		}
	})

	t.Run("Should require the exact literal token for destructive actions", func(t *testing.T) {
		assert.Equal(t, ReplyAffirm, Evaluate(deleteSpec, "DELETE"))
		assert.Equal(t, ReplyAffirm, Evaluate(deleteSpec, "  DELETE  "))
	})

	t.Run("Should not let a generic yes confirm a destructive action", func(t *testing.T) {
		for _, reply := range []string{"yes", "y", "sure", "delete", "Delete", "DELETE!", "ok"} {
			assert.Equal(t, ReplyUnclear, Evaluate(deleteSpec, reply), "reply %q", reply)
		}
	})

	t.Run("Should still honor denial for destructive actions", func(t *testing.T) {
		assert.Equal(t, ReplyDeny, Evaluate(deleteSpec, "no"))
		assert.Equal(t, ReplyDeny, Evaluate(deleteSpec, "cancel"))
	})
}

func TestRender(t *testing.T) {
	t.Run("Should render a deterministic delete warning with the token", func(t *testing.T) {
		params := core.Input{"experiment_id": "exp-1", "name": "math hints"}
		first := Render(action.DeleteExperiment, params)
		second := Render(action.DeleteExperiment, params)
		assert.Equal(t, first, second)
		assert.Contains(t, first, "PERMANENTLY DELETE")
		assert.Contains(t, first, DeleteToken)
		assert.Contains(t, first, "math hints")
		assert.NotContains(t, first, "(yes/no)")
	})

	t.Run("Should summarize a create with its conditions and decision points", func(t *testing.T) {
		text := Render(action.CreateExperiment, core.Input{
			"name":    "hint-test",
			"context": "assign-prog",
			"decision_points": []any{
				map[string]any{"site": "lesson-start", "target": "hint-panel"},
			},
			"conditions": []any{
				map[string]any{"code": "control", "weight": 50.0},
				map[string]any{"code": "variant", "weight": 50.0},
			},
		})
		assert.Contains(t, text, `"hint-test"`)
		assert.Contains(t, text, `"assign-prog"`)
		assert.Contains(t, text, "lesson-start")
		assert.Contains(t, text, "control")
		assert.Contains(t, text, "(yes/no)")
	})

	t.Run("Should explain the status change effect", func(t *testing.T) {
		text := Render(action.UpdateExperimentStatus, core.Input{
			"experiment_id": "exp-1",
			"status":        "enrolling",
		})
		assert.Contains(t, text, "enrolling")
		assert.Contains(t, strings.ToLower(text), "assigning conditions")
	})

	t.Run("Should prefer the experiment name over the raw id", func(t *testing.T) {
		text := Render(action.UpdateExperimentStatus, core.Input{
			"experiment_id": "2f9c", "name": "math hints", "status": "cancelled",
		})
		assert.Contains(t, text, `"math hints"`)
		assert.Contains(t, text, "2f9c")
	})
}

func TestReprompt(t *testing.T) {
	t.Run("Should tell destructive repliers the exact token", func(t *testing.T) {
		assert.Contains(t, Reprompt(action.MustGet(action.DeleteExperiment)), DeleteToken)
	})

	t.Run("Should ask yes or no otherwise", func(t *testing.T) {
		assert.Contains(t, Reprompt(action.MustGet(action.CreateExperiment)), "yes")
	})
}
