package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("Should accept a bare JSON object", func(t *testing.T) {
		got, ok := ExtractJSONObject(`{"intent_type":"direct_answer","confidence":0.9}`)
		require.True(t, ok)
		assert.JSONEq(t, `{"intent_type":"direct_answer","confidence":0.9}`, got)
	})

	t.Run("Should strip code fences with a language tag", func(t *testing.T) {
		content := "```json\n{\"action\": \"create_experiment\"}\n```"
		got, ok := ExtractJSONObject(content)
		require.True(t, ok)
		assert.JSONEq(t, `{"action":"create_experiment"}`, got)
	})

	t.Run("Should strip bare code fences", func(t *testing.T) {
		content := "```\n{\"a\": 1}\n```"
		got, ok := ExtractJSONObject(content)
		require.True(t, ok)
		assert.JSONEq(t, `{"a":1}`, got)
	})

	t.Run("Should find an object embedded in prose", func(t *testing.T) {
		content := `Here is the classification you asked for: {"intent_type": "ambiguous"} hope that helps!`
		got, ok := ExtractJSONObject(content)
		require.True(t, ok)
		assert.JSONEq(t, `{"intent_type":"ambiguous"}`, got)
	})

	t.Run("Should handle nested braces", func(t *testing.T) {
		content := `{"params": {"conditions": [{"code": "control", "weight": 50}]}}`
		got, ok := ExtractJSONObject(content)
		require.True(t, ok)
		assert.JSONEq(t, content, got)
	})

	t.Run("Should reject content without JSON", func(t *testing.T) {
		for _, content := range []string{"", "no json here", "```\nnot json\n```", "{broken"} {
			_, ok := ExtractJSONObject(content)
			assert.False(t, ok, "content %q", content)
		}
	})
}
