package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*\\n(.+?)```"),
	regexp.MustCompile("(?s)```\\s*\\n(.+?)```"),
}

// extractJSON finds the JSON document in a reply: the whole reply, a fenced
// code block, or the first balanced object or array inside the text.
func extractJSON(reply string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if json.Valid([]byte(reply)) {
		return reply, true
	}

	for _, re := range codeBlockPatterns {
		if m := re.FindStringSubmatch(reply); len(m) > 1 {
			candidate := strings.TrimSpace(m[1])
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}

	if candidate := balancedJSON(reply); candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, true
	}
	return "", false
}

func balancedJSON(text string) string {
	var (
		depth    int
		start    = -1
		inString bool
		escape   bool
	)

	for i, ch := range text {
		if escape {
			escape = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			if start >= 0 {
				inString = !inString
			}
		case '{', '[':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}', ']':
			if !inString && start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
