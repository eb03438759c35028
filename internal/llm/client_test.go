package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"a": 1}`,
			want:     `{"a": 1}`,
		},
		{
			name:     "markdown fence with prose",
			response: "Here is the result:\n```json\n{\"a\": 1}\n```\nLet me know!",
			want:     `{"a": 1}`,
		},
		{
			name:     "nested objects",
			response: `prefix {"outer": {"inner": 2}} suffix`,
			want:     `{"outer": {"inner": 2}}`,
		},
		{
			name:     "braces inside strings ignored",
			response: `{"text": "a } brace and a { brace"}`,
			want:     `{"text": "a } brace and a { brace"}`,
		},
		{
			name:     "escaped quotes inside strings",
			response: `{"text": "she said \"hi}\" today"}`,
			want:     `{"text": "she said \"hi}\" today"}`,
		},
		{
			name:     "no object",
			response: "sorry, I cannot help with that",
			want:     "",
		},
		{
			name:     "unterminated object",
			response: `{"a": 1`,
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.response); got != tc.want {
				t.Fatalf("ExtractJSON() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare array",
			response: `["a", "b"]`,
			want:     `["a", "b"]`,
		},
		{
			name:     "fenced array with prose",
			response: "Queries:\n```json\n[\"one\", \"two\"]\n```",
			want:     `["one", "two"]`,
		},
		{
			name:     "brackets inside strings ignored",
			response: `["a ] bracket", "b"]`,
			want:     `["a ] bracket", "b"]`,
		},
		{
			name:     "no array",
			response: "none here",
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONArray(tc.response); got != tc.want {
				t.Fatalf("ExtractJSONArray() = %q, want %q", got, tc.want)
			}
		})
	}
}
