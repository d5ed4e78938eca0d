package session_test

import (
	"testing"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullSession(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(core.MustNewID())
	s.AppendTurn("create an experiment", "Which app context should it run in?")
	s.AppendTurn("assign-prog", "Please confirm the creation.")
	s.BeginPending(action.CreateExperiment, core.Input{
		"name":    "Math Hints",
		"context": "assign-prog",
	}, []string{"conditions"})
	s.BeginTask("balance_check", []string{"fetch details", "init users"})
	s.AppendLog(session.LogEntry{
		ID:     core.MustNewID(),
		Action: action.GetExperimentDetails,
		Params: core.Input{"experiment_id": "exp-1"},
		Result: core.Output{"name": "Math Hints"},
		Status: core.StatusSuccess,
	})
	s.AppendLog(session.LogEntry{
		ID:     core.MustNewID(),
		Action: action.InitExperimentUser,
		Params: core.Input{"user_id": "student-1"},
		Error:  core.NewError(nil, core.CodeAPIError, map[string]any{"status": 502}),
		Status: core.StatusError,
	})
	s.RecordError(core.KindAPI, "upstream returned 502")
	s.SetPhase(core.PhaseConfirming)
	return s
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("Should start in the analyzing phase", func(t *testing.T) {
		s := session.New(core.MustNewID())
		assert.Equal(t, core.PhaseAnalyzing, s.Phase)
		assert.Empty(t, s.History)
		assert.Nil(t, s.Pending)
		assert.False(t, s.CreatedAt.IsZero())
	})
	t.Run("Should window recent turns oldest first", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.AppendTurn("one", "1")
		s.AppendTurn("two", "2")
		s.AppendTurn("three", "3")
		recent := s.RecentTurns(2)
		require.Len(t, recent, 2)
		assert.Equal(t, "two", recent[0].User)
		assert.Equal(t, "three", recent[1].User)
		assert.Len(t, s.RecentTurns(10), 3)
		assert.Nil(t, s.RecentTurns(0))
	})
}

func TestPendingAction(t *testing.T) {
	t.Run("Should not be ready while fields are missing", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.BeginPending(action.CreateExperiment, core.Input{"name": "X"}, []string{"context"})
		assert.False(t, s.Pending.Ready())
	})
	t.Run("Should be ready once missing is empty", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.BeginPending(action.DeleteExperiment, core.Input{"experiment_id": "exp-1"}, nil)
		assert.True(t, s.Pending.Ready())
	})
	t.Run("Should clear the pending action and parameters", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.BeginPending(action.DeleteExperiment, core.Input{"experiment_id": "exp-1"}, nil)
		s.ClearPending()
		assert.Nil(t, s.Pending)
	})
}

func TestTaskProgress(t *testing.T) {
	t.Run("Should anchor the task to the execution log", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.AppendLog(session.LogEntry{ID: core.MustNewID(), Action: action.CheckUpgradeHealth, Status: core.StatusSuccess})
		s.BeginTask("balance_check", []string{"fetch details"})
		s.AppendLog(session.LogEntry{ID: core.MustNewID(), Action: action.GetExperimentDetails, Status: core.StatusSuccess})
		taskLog := s.TaskLog()
		require.Len(t, taskLog, 1)
		assert.Equal(t, action.GetExperimentDetails, taskLog[0].Action)
	})
	t.Run("Should pop the planned head when the executed step matches", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.BeginTask("balance_check", []string{"fetch details", "init users"})
		s.RecordStep("fetch details")
		require.NotNil(t, s.Progress)
		assert.Equal(t, []string{"fetch details"}, s.Progress.Executed)
		assert.Equal(t, []string{"init users"}, s.Progress.Planned)
	})
	t.Run("Should keep planned steps when the executed step deviates", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.BeginTask("balance_check", []string{"init users"})
		s.RecordStep("fetch details")
		assert.Equal(t, []string{"init users"}, s.Progress.Planned)
	})
	t.Run("Should mark done without dropping the record", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.BeginTask("balance_check", nil)
		s.CompleteTask()
		require.NotNil(t, s.Progress)
		assert.True(t, s.Progress.Done)
		s.ClearProgress()
		assert.Nil(t, s.Progress)
	})
}

func TestExecutionLog(t *testing.T) {
	t.Run("Should append entries in order and expose the last one", func(t *testing.T) {
		s := session.New(core.MustNewID())
		assert.Nil(t, s.LastLog())
		first := session.LogEntry{ID: core.MustNewID(), Action: action.CheckUpgradeHealth, Status: core.StatusSuccess}
		second := session.LogEntry{ID: core.MustNewID(), Action: action.GetAllExperiments, Status: core.StatusError}
		s.AppendLog(first)
		s.AppendLog(second)
		require.Len(t, s.Log, 2)
		assert.Equal(t, first.ID, s.Log[0].ID)
		assert.Equal(t, second.ID, s.LastLog().ID)
	})
}

func TestErrorRecords(t *testing.T) {
	t.Run("Should accumulate and clear records", func(t *testing.T) {
		s := session.New(core.MustNewID())
		s.RecordError(core.KindValidation, "weights must sum to 100")
		s.RecordError(core.KindNotFound, "no experiment named X")
		require.Len(t, s.Errors, 2)
		assert.Equal(t, core.KindValidation, s.Errors[0].Kind)
		s.ClearErrors()
		assert.Empty(t, s.Errors)
	})
}

func TestEncodeDecode(t *testing.T) {
	t.Run("Should round-trip a full session byte-equal", func(t *testing.T) {
		s := fullSession(t)
		doc, err := session.Encode(s)
		require.NoError(t, err)
		restored, err := session.Decode(doc)
		require.NoError(t, err)
		again, err := session.Encode(restored)
		require.NoError(t, err)
		assert.Equal(t, string(doc), string(again))
		assert.Equal(t, core.PhaseConfirming, restored.Phase)
		require.NotNil(t, restored.Pending)
		assert.Equal(t, action.CreateExperiment, restored.Pending.Name)
		require.Len(t, restored.Log, 2)
		assert.Equal(t, core.StatusError, restored.Log[1].Status)
	})
	t.Run("Should reject documents with an unknown phase", func(t *testing.T) {
		_, err := session.Decode([]byte(`{"id":"x","phase":"THINKING"}`))
		assert.Error(t, err)
	})
	t.Run("Should reject malformed documents", func(t *testing.T) {
		_, err := session.Decode([]byte(`{not json`))
		assert.Error(t, err)
	})
}
