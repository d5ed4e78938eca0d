package schema

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Validate(t *testing.T) {
	s := &Schema{
		"type": "object",
		"properties": map[string]any{
			"name":    map[string]any{"type": "string", "minLength": 1},
			"context": map[string]any{"type": "string"},
		},
		"required": []string{"name", "context"},
	}
	t.Run("Should accept a valid parameter map", func(t *testing.T) {
		result, err := s.Validate(context.Background(), map[string]any{
			"name":    "math-hints",
			"context": "assign-prog",
		})
		require.NoError(t, err)
		assert.NotNil(t, result)
	})
	t.Run("Should reject a map missing required fields", func(t *testing.T) {
		_, err := s.Validate(context.Background(), map[string]any{"name": "math-hints"})
		assert.Error(t, err)
	})
	t.Run("Should reject wrong types", func(t *testing.T) {
		_, err := s.Validate(context.Background(), map[string]any{"name": 42, "context": "x"})
		assert.Error(t, err)
	})
	t.Run("Should treat a nil schema as always valid", func(t *testing.T) {
		var nilSchema *Schema
		result, err := nilSchema.Validate(context.Background(), map[string]any{"anything": true})
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestCompositeValidator(t *testing.T) {
	t.Run("Should fail on the first failing validator", func(t *testing.T) {
		calls := 0
		good := FuncValidator(func(context.Context) error { calls++; return nil })
		bad := FuncValidator(func(context.Context) error { calls++; return fmt.Errorf("weights must sum to 100") })
		never := FuncValidator(func(context.Context) error { calls++; return nil })
		v := NewCompositeValidator(good, bad, never)
		err := v.Validate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights")
		assert.Equal(t, 2, calls)
	})
}

func TestParamsValidator(t *testing.T) {
	s := &Schema{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string"},
		},
		"required": []string{"user_id"},
	}
	t.Run("Should pass valid params", func(t *testing.T) {
		v := NewParamsValidator(map[string]any{"user_id": "student-1"}, s, "init_experiment_user")
		assert.NoError(t, v.Validate(context.Background()))
	})
	t.Run("Should reject nil params when a schema exists", func(t *testing.T) {
		v := NewParamsValidator(nil, s, "init_experiment_user")
		assert.Error(t, v.Validate(context.Background()))
	})
	t.Run("Should allow nil schema", func(t *testing.T) {
		v := NewParamsValidator(nil, nil, "check_upgrade_health")
		assert.NoError(t, v.Validate(context.Background()))
	})
}
