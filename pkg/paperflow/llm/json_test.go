package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
	"github.com/randalmurphal/paperflow/pkg/paperflow/llm"
)

type finding struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  finding
	}{
		{"bare object", `{"title":"A","tags":["x"]}`, finding{Title: "A", Tags: []string{"x"}}},
		{"fenced", "```json\n{\"title\":\"B\"}\n```", finding{Title: "B"}},
		{"think prefix", `<think>let me see</think>{"title":"C"}`, finding{Title: "C"}},
		{"prose around", `Here you go: {"title":"D"} hope it helps`, finding{Title: "D"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.DecodeJSON[finding](tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_Array(t *testing.T) {
	got, err := llm.DecodeJSON[[]finding](`[{"title":"a"},{"title":"b"}]`)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDecodeJSON_Errors(t *testing.T) {
	for _, input := range []string{"no json here", `{"title": `, `{"title": 5}`} {
		_, err := llm.DecodeJSON[finding](input)
		require.Error(t, err, input)

		var parseErr *perrors.JSONParseError
		assert.ErrorAs(t, err, &parseErr)
	}
}
