package core_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Run("Should carry code, message and details", func(t *testing.T) {
		cause := errors.New("weights sum to 90")
		err := core.NewError(cause, core.CodeValidationFailed, map[string]any{
			"field": "conditions",
		})
		assert.Equal(t, core.CodeValidationFailed, err.Code)
		assert.Equal(t, "weights sum to 90", err.Message)
		assert.Equal(t, "conditions", err.Details["field"])
		assert.ErrorIs(t, err, cause)
	})
	t.Run("Should fall back to code when cause is nil", func(t *testing.T) {
		err := core.NewError(nil, core.CodeNotFound, nil)
		assert.Equal(t, core.CodeNotFound, err.Message)
		assert.Equal(t, core.CodeNotFound, err.Error())
	})
	t.Run("Should render code and message", func(t *testing.T) {
		err := core.NewError(errors.New("boom"), core.CodeAPIError, nil)
		assert.Equal(t, "API_ERROR: boom", err.Error())
	})
}

func TestKindFromError(t *testing.T) {
	t.Run("Should classify canonical codes", func(t *testing.T) {
		cases := map[string]core.ErrorKind{
			core.CodeValidationFailed: core.KindValidation,
			core.CodeGatheringFailed:  core.KindGathering,
			core.CodeNotFound:         core.KindNotFound,
			core.CodeUnauthorized:     core.KindAuth,
			core.CodeForbidden:        core.KindAuth,
			core.CodeAPIError:         core.KindAPI,
			core.CodeTimeout:          core.KindAPI,
			core.CodeUnavailable:      core.KindAPI,
		}
		for code, want := range cases {
			err := core.NewError(nil, code, nil)
			assert.Equal(t, want, core.KindFromError(err), "code %s", code)
		}
	})
	t.Run("Should classify wrapped errors through fmt.Errorf", func(t *testing.T) {
		inner := core.NewError(nil, core.CodeNotFound, nil)
		wrapped := fmt.Errorf("resolving experiment: %w", inner)
		assert.Equal(t, core.KindNotFound, core.KindFromError(wrapped))
	})
	t.Run("Should classify plain errors as unknown", func(t *testing.T) {
		assert.Equal(t, core.KindUnknown, core.KindFromError(errors.New("boom")))
	})
	t.Run("Should report recoverable kinds", func(t *testing.T) {
		assert.True(t, core.KindValidation.Recoverable())
		assert.True(t, core.KindGathering.Recoverable())
		assert.True(t, core.KindNotFound.Recoverable())
		assert.False(t, core.KindAuth.Recoverable())
		assert.False(t, core.KindAPI.Recoverable())
		assert.False(t, core.KindUnknown.Recoverable())
	})
}

func TestProblemFromError(t *testing.T) {
	t.Run("Should map kinds onto HTTP statuses", func(t *testing.T) {
		cases := []struct {
			code   string
			status int
		}{
			{core.CodeValidationFailed, http.StatusBadRequest},
			{core.CodeNotFound, http.StatusNotFound},
			{core.CodeUnauthorized, http.StatusUnauthorized},
			{core.CodeAPIError, http.StatusBadGateway},
			{core.CodeInternal, http.StatusInternalServerError},
		}
		for _, tc := range cases {
			problem := core.ProblemFromError(core.NewError(nil, tc.code, nil), "/api/v0/chat")
			require.NotNil(t, problem)
			assert.Equal(t, tc.status, problem.Status, "code %s", tc.code)
			assert.Equal(t, tc.code, problem.Extras["code"])
		}
	})
	t.Run("Should normalize defaults in the body", func(t *testing.T) {
		problem := core.NormalizeProblem(&core.Problem{Status: http.StatusBadRequest})
		body := core.BuildProblemBody(problem)
		assert.Equal(t, http.StatusBadRequest, body["status"])
		assert.Equal(t, "Bad Request", body["error"])
		assert.Equal(t, "about:blank", body["type"])
	})
}
