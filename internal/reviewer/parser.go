package reviewer

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseVerdict extracts a Verdict from the assistant message content. Models
// sometimes wrap the JSON object in prose, so the parser locates the
// outermost balanced {...} before extracting fields. Action matching is
// case-insensitive. A missing reason field, or an empty reason on abort, is
// a parse failure.
func ParseVerdict(content string) (Verdict, error) {
	obj, ok := extractJSONObject(content)
	if !ok {
		return Verdict{}, fmt.Errorf("no JSON object in reviewer content %q", truncate(content, 120))
	}
	if !gjson.Valid(obj) {
		return Verdict{}, fmt.Errorf("invalid JSON object in reviewer content %q", truncate(obj, 120))
	}

	actionField := gjson.Get(obj, "action")
	if !actionField.Exists() {
		return Verdict{}, fmt.Errorf("reviewer verdict missing action")
	}

	var action Action
	switch strings.ToLower(strings.TrimSpace(actionField.String())) {
	case "continue":
		action = ActionContinue
	case "abort":
		action = ActionAbort
	default:
		return Verdict{}, fmt.Errorf("reviewer verdict has unknown action %q", actionField.String())
	}

	reasonField := gjson.Get(obj, "reason")
	if !reasonField.Exists() {
		return Verdict{}, fmt.Errorf("reviewer verdict missing reason")
	}
	reason := reasonField.String()
	if action == ActionAbort && strings.TrimSpace(reason) == "" {
		return Verdict{}, fmt.Errorf("reviewer abort verdict has empty reason")
	}

	return Verdict{Action: action, Reason: reason}, nil
}

// extractJSONObject returns the first balanced top-level {...} span in s.
// Braces inside JSON strings (and escaped quotes inside those) are skipped.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
