package llm

import (
	"encoding/json"
	"strings"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
)

// DecodeJSON parses a JSON value out of model output. Think blocks and
// markdown code fences around the value are ignored. A failure is reported
// as *errors.JSONParseError.
func DecodeJSON[T any](content string) (T, error) {
	var v T

	text := strings.TrimSpace(StripThink(content))
	text = stripFence(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return v, &perrors.JSONParseError{Input: truncate(content, 200), Message: "no JSON value in output"}
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return v, &perrors.JSONParseError{Input: truncate(content, 200), Message: "unterminated JSON value"}
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return v, &perrors.JSONParseError{Input: truncate(content, 200), Message: err.Error()}
	}
	return v, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
