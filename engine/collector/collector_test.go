package collector

import (
	"context"
	"testing"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/llm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/metadata"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	meta  *upgrade.ContextMetadata
	names []upgrade.ExperimentName
}

func (s *stubFetcher) GetContextMetadata(_ context.Context) (*upgrade.ContextMetadata, error) {
	return s.meta, nil
}

func (s *stubFetcher) ListExperimentNames(_ context.Context) ([]upgrade.ExperimentName, error) {
	return s.names, nil
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		meta: &upgrade.ContextMetadata{
			Contexts: map[string]upgrade.ContextMetadataItem{
				"assign-prog": {
					Conditions: []string{"control", "variant"},
					GroupTypes: []string{"schoolId", "classId"},
					ExpPoints:  []string{"lesson-start", "lesson-end"},
					ExpIDs:     []string{"hint-panel"},
				},
			},
		},
		names: []upgrade.ExperimentName{
			{ID: "exp-1", Name: "Math Hints"},
			{ID: "exp-2", Name: "Reading Speed"},
		},
	}
}

func newPending(name action.Name, gathered core.Input) *session.Session {
	sess := session.New(core.MustNewID())
	spec := action.MustGet(name)
	sess.BeginPending(name, gathered, action.MissingParams(spec, gathered))
	sess.SetPhase(core.PhaseGathering)
	return sess
}

func TestIsCancellation(t *testing.T) {
	t.Run("Should match the cancellation vocabulary exactly", func(t *testing.T) {
		for _, utterance := range []string{"cancel", "Cancel", "never mind", "forget it", "stop."} {
			assert.True(t, IsCancellation(utterance), "utterance %q", utterance)
		}
	})

	t.Run("Should not treat ordinary replies as cancellations", func(t *testing.T) {
		for _, utterance := range []string{"", "cancel the experiment", "assign-prog", "no"} {
			assert.False(t, IsCancellation(utterance), "utterance %q", utterance)
		}
	})
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	t.Run("Should cancel the pending action on a cancellation utterance", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{"name": "hint-test"})

		outcome, err := svc.Collect(ctx, sess, "never mind")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, outcome.Status)
	})

	t.Run("Should ask for the first missing field with available choices", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{"name": "hint-test"})

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPrompt, outcome.Status)
		assert.Contains(t, outcome.Prompt, "context")
		assert.Contains(t, outcome.Prompt, "assign-prog")
		assert.Equal(t, []string{"context", "decision_points", "conditions"}, sess.Pending.Missing)
	})

	t.Run("Should extract schema fields and skip unknown or null keys", func(t *testing.T) {
		mock := llm.NewMockClient(`{
			"context": "assign-prog",
			"decision_points": [{"site": "lesson-start", "target": "hint-panel"}],
			"conditions": null,
			"bogus": "ignored"
		}`)
		svc := NewService(mock, metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{"name": "hint-test"})

		outcome, err := svc.Collect(ctx, sess, "in assign-prog, at lesson-start on hint-panel")
		require.NoError(t, err)
		assert.Equal(t, StatusPrompt, outcome.Status)
		assert.Equal(t, "assign-prog", sess.Pending.Gathered["context"])
		assert.NotContains(t, sess.Pending.Gathered, "bogus")
		assert.Equal(t, []string{"conditions"}, sess.Pending.Missing)
		assert.Contains(t, outcome.Prompt, "control, variant")
	})

	t.Run("Should resolve an experiment name to its platform id", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.DeleteExperiment, core.Input{"experiment_id": "math hints"})

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusReady, outcome.Status)
		assert.Equal(t, "exp-1", sess.Pending.Gathered["experiment_id"])
		assert.Equal(t, "math hints", sess.Pending.Gathered["name"])
	})

	t.Run("Should re-ask when an experiment reference stays unresolved", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.DeleteExperiment, core.Input{"experiment_id": "Math Hnits"})

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPrompt, outcome.Status)
		assert.Equal(t, []string{"experiment_id"}, sess.Pending.Missing)
		assert.Contains(t, outcome.Prompt, "Math Hints")
	})

	t.Run("Should downgrade conditions whose weights do not sum to 100", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{
			"name":    "hint-test",
			"context": "assign-prog",
			"decision_points": []any{
				map[string]any{"site": "lesson-start", "target": "hint-panel"},
			},
			"conditions": []any{
				map[string]any{"code": "control", "weight": 60.0},
				map[string]any{"code": "variant", "weight": 30.0},
			},
		})

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPrompt, outcome.Status)
		assert.Contains(t, outcome.Prompt, "sum to 100")
		assert.Equal(t, []string{"conditions"}, sess.Pending.Missing)
		assert.NotContains(t, sess.Pending.Gathered, "conditions")
	})

	t.Run("Should reject condition codes outside the context vocabulary", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{
			"name":    "hint-test",
			"context": "assign-prog",
			"decision_points": []any{
				map[string]any{"site": "lesson-start", "target": "hint-panel"},
			},
			"conditions": []any{
				map[string]any{"code": "fancy", "weight": 100.0},
			},
		})

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPrompt, outcome.Status)
		assert.Equal(t, []string{"conditions"}, sess.Pending.Missing)
		assert.Contains(t, outcome.Prompt, `"fancy"`)
	})

	t.Run("Should apply defaults once every required field validates", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{
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

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusReady, outcome.Status)
		assert.Empty(t, sess.Pending.Missing)
		assert.Equal(t, "individual", sess.Pending.Gathered["assignment_unit"])
		assert.Equal(t, "excludeAll", sess.Pending.Gathered["filter_mode"])
	})

	t.Run("Should keep extracted values over defaults", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.CreateExperiment, core.Input{
			"name":            "hint-test",
			"context":         "assign-prog",
			"assignment_unit": "group",
			"group_type":      "schoolId",
			"decision_points": []any{
				map[string]any{"site": "lesson-start", "target": "hint-panel"},
			},
			"conditions": []any{
				map[string]any{"code": "control", "weight": 50.0},
				map[string]any{"code": "variant", "weight": 50.0},
			},
		})

		outcome, err := svc.Collect(ctx, sess, "")
		require.NoError(t, err)
		assert.Equal(t, StatusReady, outcome.Status)
		assert.Equal(t, "group", sess.Pending.Gathered["assignment_unit"])
	})

	t.Run("Should survive a failed extraction call", func(t *testing.T) {
		mock := llm.NewMockClient()
		mock.QueueError(context.DeadlineExceeded)
		svc := NewService(mock, metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.DeleteExperiment, core.Input{})

		outcome, err := svc.Collect(ctx, sess, "delete the hint thing")
		require.NoError(t, err)
		assert.Equal(t, StatusPrompt, outcome.Status)
	})
}

func TestRevalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("Should pass through a still-valid parameter set", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.DeleteExperiment, core.Input{"experiment_id": "exp-1"})
		require.NoError(t, svc.Revalidate(ctx, sess))
	})

	t.Run("Should downgrade fields that went stale before dispatch", func(t *testing.T) {
		fetcher := newStubFetcher()
		meta := metadata.NewService(fetcher, time.Minute)
		svc := NewService(llm.NewMockClient(), meta)
		sess := newPending(action.GetDecisionPointAssignments, core.Input{
			"user_id": "test-user-1",
			"context": "assign-prog",
		})

		fetcher.meta = &upgrade.ContextMetadata{Contexts: map[string]upgrade.ContextMetadataItem{}}
		meta.Invalidate()

		err := svc.Revalidate(ctx, sess)
		require.Error(t, err)
		coreErr := &core.Error{}
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, core.CodeValidationFailed, coreErr.Code)
		assert.Contains(t, sess.Pending.Missing, "context")
	})

	t.Run("Should refuse a pending action that is not ready", func(t *testing.T) {
		svc := NewService(llm.NewMockClient(), metadata.NewService(newStubFetcher(), time.Minute))
		sess := newPending(action.DeleteExperiment, core.Input{})
		require.Error(t, svc.Revalidate(ctx, sess))
	})
}
