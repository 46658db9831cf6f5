package diagnosis

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the first top-level {...} span of text.
// Braces inside JSON string literals do not count toward nesting.
func ExtractJSON(text string) (json.RawMessage, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, malformed("no JSON object in response")
	}
	end := matchBrace(text, start)
	if end < 0 {
		return nil, malformed("unterminated JSON object in response")
	}
	span := text[start : end+1]
	if !json.Valid([]byte(span)) {
		return nil, malformed("response does not contain a valid JSON object")
	}
	return json.RawMessage(span), nil
}

func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i
			}
		}
	}
	return -1
}
