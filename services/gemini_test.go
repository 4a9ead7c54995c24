package services

import "testing"

func TestCleanAIJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON untouched",
			input:    `{"title":"Processes"}`,
			expected: `{"title":"Processes"}`,
		},
		{
			name:     "json fence stripped",
			input:    "```json\n[{\"question\":\"q\"}]\n```",
			expected: `[{"question":"q"}]`,
		},
		{
			name:     "bare fence stripped",
			input:    "```\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  \n{\"a\":1}\n  ",
			expected: `{"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanAIJSON(tt.input); got != tt.expected {
				t.Errorf("cleanAIJSON() = %q, expected %q", got, tt.expected)
			}
		})
	}
}
