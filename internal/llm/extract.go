package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject pulls the first balanced JSON object out of a model
// response. Models tend to wrap JSON in prose or code fences, so we scan for
// balanced braces instead of unmarshaling the raw response.
func ExtractJSONObject(response string) (string, error) {
	return extractBalanced(response, '{', '}')
}

// ExtractJSONArray pulls the first balanced JSON array out of a model response.
func ExtractJSONArray(response string) (string, error) {
	return extractBalanced(response, '[', ']')
}

func extractBalanced(response string, opener, closer rune) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range response {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case opener:
			if depth == 0 {
				start = i
			}
			depth++
		case closer:
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no JSON found in response")
}

// DecodeStringList parses a model response into a list of non-empty strings.
// The response may be a bare JSON array or an array embedded in prose. Empty
// entries are dropped; a response containing a valid empty array decodes to an
// empty list without error.
func DecodeStringList(response string) ([]string, error) {
	jsonStr, err := ExtractJSONArray(response)
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		// lenient fallback: coerce non-string entries
		var generic []interface{}
		if err2 := json.Unmarshal([]byte(jsonStr), &generic); err2 != nil {
			return nil, fmt.Errorf("decode string list: %w", err)
		}
		for _, item := range generic {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
