package classify

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRules(t *testing.T) {
	t.Run("bracket span", func(t *testing.T) {
		got, ok := ExtractBracketSpan(`Sure! {"a": {"b": 1}} hope this helps`)
		require.True(t, ok)
		assert.Equal(t, `{"a": {"b": 1}}`, got)

		_, ok = ExtractBracketSpan("no json here")
		assert.False(t, ok)
		_, ok = ExtractBracketSpan("} backwards {")
		assert.False(t, ok)
	})

	t.Run("fences", func(t *testing.T) {
		assert.Equal(t, "\n{}\n", StripFences("```json\n{}\n```"))
		assert.Equal(t, "\n{}\n", StripFences("```JSON\n{}\n```"))
	})

	t.Run("comment lines", func(t *testing.T) {
		in := "{\n  // the score\n  \"a\": 1\n}"
		assert.Equal(t, "{\n  \"a\": 1\n}", StripCommentLines(in))
	})

	t.Run("trailing commas", func(t *testing.T) {
		assert.Equal(t, `{"a": [1, 2]}`, StripTrailingCommas(`{"a": [1, 2,],}`))
		assert.Equal(t, "{\"a\": 1\n}", StripTrailingCommas("{\"a\": 1,\n}"))
	})

	t.Run("think blocks", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, StripThinkBlocks("<think>\nlet me {reason}\n</think>{\"a\":1}"))
	})
}

func TestSanitizeRepairsModelOutput(t *testing.T) {
	cases := map[string]string{
		"trailing comma":  `{"health_score": 7, "ingredients": [],}`,
		"markdown fences": "Here you go:\n```json\n{\"health_score\": 7, \"ingredients\": []}\n```",
		"comment line":    "{\n// score\n\"health_score\": 7, \"ingredients\": []}",
		"think block":     "<think>{maybe}</think>\n{\"health_score\": 7, \"ingredients\": []}",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Sanitize(raw)
			require.NoError(t, err)
			var v struct {
				HealthScore float64 `json:"health_score"`
			}
			require.NoError(t, json.Unmarshal([]byte(s), &v), s)
			assert.Equal(t, 7.0, v.HealthScore)
		})
	}
}

func TestSanitizeWithoutObject(t *testing.T) {
	_, err := Sanitize("I cannot help with that.")
	var mErr *MalformedResponseError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "I cannot help with that.", mErr.Raw)
}
