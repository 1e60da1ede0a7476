package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"fenced json block",
			"```json\n{\"search_query\": \"leave policy\"}\n```",
			`{"search_query": "leave policy"}`,
		},
		{
			"fenced without language tag",
			"```\n{\"a\": 1}\n```",
			`{"a": 1}`,
		},
		{
			"bare object with prose",
			"Here you go: {\"a\": 1} hope that helps",
			`{"a": 1}`,
		},
		{
			"plain object",
			`{"a": 1}`,
			`{"a": 1}`,
		},
		{
			"no json at all",
			"sorry, cannot comply",
			"sorry, cannot comply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.content))
		})
	}
}
