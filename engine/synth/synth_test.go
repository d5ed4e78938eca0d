package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/llm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successEntry() *session.LogEntry {
	return &session.LogEntry{
		ID:     core.MustNewID(),
		Action: action.CreateExperiment,
		Status: core.StatusSuccess,
		Result: core.Output{"id": "exp-new", "name": "hint-test", "state": "inactive"},
	}
}

func TestRenderResult(t *testing.T) {
	ctx := context.Background()

	t.Run("Should use the model's summary for a successful dispatch", func(t *testing.T) {
		mock := llm.NewMockClient(`Created "hint-test" (exp-new). It starts inactive.`)
		reply := NewService(mock).RenderResult(ctx, session.New(core.MustNewID()), successEntry())
		assert.Contains(t, reply, "hint-test")

		req := mock.LastRequest()
		require.NotNil(t, req)
		assert.Contains(t, req.Messages[0].Content, "exp-new")
		assert.False(t, req.Options.UseJSONMode)
	})

	t.Run("Should fall back to plain rendering when the model call fails", func(t *testing.T) {
		mock := llm.NewMockClient()
		mock.QueueError(errors.New("model unavailable"))
		reply := NewService(mock).RenderResult(ctx, session.New(core.MustNewID()), successEntry())
		assert.Contains(t, reply, "create_experiment completed successfully")
		assert.Contains(t, reply, "exp-new")
	})

	t.Run("Should fall back when the model returns an empty reply", func(t *testing.T) {
		mock := llm.NewMockClient("   ")
		reply := NewService(mock).RenderResult(ctx, session.New(core.MustNewID()), successEntry())
		assert.Contains(t, reply, "completed successfully")
	})

	t.Run("Should render failures deterministically by kind", func(t *testing.T) {
		svc := NewService(llm.NewMockClient())
		entry := &session.LogEntry{
			Action: action.GetExperimentDetails,
			Status: core.StatusError,
			Error:  core.NewError(errors.New("experiment exp-404 does not exist"), core.CodeNotFound, nil),
		}
		reply := svc.RenderResult(ctx, session.New(core.MustNewID()), entry)
		assert.Contains(t, reply, "couldn't find")
		assert.Contains(t, reply, "exp-404")

		entry.Error = core.NewError(errors.New("token expired"), core.CodeUnauthorized, nil)
		reply = svc.RenderResult(ctx, session.New(core.MustNewID()), entry)
		assert.Contains(t, reply, "authenticate")

		entry.Error = core.NewError(errors.New("boom"), core.CodeInternal, nil)
		reply = svc.RenderResult(ctx, session.New(core.MustNewID()), entry)
		assert.Contains(t, reply, "still usable")
	})
}

func TestTaskSummary(t *testing.T) {
	ctx := context.Background()

	newTaskSession := func() *session.Session {
		sess := session.New(core.MustNewID())
		sess.BeginTask("condition_balance_test", nil)
		sess.AppendLog(session.LogEntry{
			Action: action.InitExperimentUser,
			Status: core.StatusSuccess,
			Result: core.Output{"user_id": "test-user-1"},
		})
		sess.AppendLog(session.LogEntry{
			Action: action.GetDecisionPointAssignments,
			Status: core.StatusSuccess,
			Result: core.Output{"count": 1},
		})
		return sess
	}

	t.Run("Should hand the full step record to the model", func(t *testing.T) {
		mock := llm.NewMockClient("Registered a test user and checked their assignment.")
		reply := NewService(mock).TaskSummary(ctx, newTaskSession(), "balance verified")
		assert.Contains(t, reply, "Registered a test user")

		record := mock.LastRequest().Messages[0].Content
		assert.Contains(t, record, "balance verified")
		assert.Contains(t, record, "1. init_experiment_user (SUCCESS)")
		assert.Contains(t, record, "2. get_decision_point_assignments (SUCCESS)")
	})

	t.Run("Should fall back to the plain step listing", func(t *testing.T) {
		mock := llm.NewMockClient()
		mock.QueueError(errors.New("model unavailable"))
		reply := NewService(mock).TaskSummary(ctx, newTaskSession(), "balance verified")
		assert.Contains(t, reply, "balance verified")
		assert.Contains(t, reply, "2 step(s)")
		assert.Contains(t, reply, "init_experiment_user")
	})

	t.Run("Should only cover the current task's log entries", func(t *testing.T) {
		sess := session.New(core.MustNewID())
		sess.AppendLog(session.LogEntry{Action: action.CheckUpgradeHealth, Status: core.StatusSuccess})
		sess.BeginTask("cleanup", nil)
		sess.AppendLog(session.LogEntry{Action: action.DeleteExperiment, Status: core.StatusSuccess})

		mock := llm.NewMockClient()
		mock.QueueError(errors.New("model unavailable"))
		reply := NewService(mock).TaskSummary(ctx, sess, "done")
		assert.Contains(t, reply, "1 step(s)")
		assert.NotContains(t, reply, "check_upgrade_health")
	})
}
