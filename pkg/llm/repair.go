package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Repair turns almost-JSON into JSON. Valid input is returned unchanged and
// invalid input converges after one pass, so repair(repair(x)) == repair(x).
//
// Invalid input first goes through a conservative in-house pass — strip code
// fences and comments, swap single quotes, drop trailing commas, append
// missing closers — and then through the jsonrepair library for whatever the
// conservative pass could not fix. Library output is kept only when it
// parses. The result still may not parse — ParseJSON decides.
func Repair(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if json.Valid([]byte(candidate)) {
		return candidate
	}

	fixed := stripCodeFences(candidate)
	fixed = stripComments(fixed)
	fixed = swapSingleQuotes(fixed)
	fixed = dropTrailingCommas(fixed)
	fixed = balanceClosers(fixed)
	// Balancing a truncated payload can leave a comma before the appended
	// closer, so the comma pass runs once more.
	fixed = dropTrailingCommas(fixed)
	// Stripping a leading comment leaves its newline behind; trim so the
	// output matches what a second pass would produce.
	fixed = strings.TrimSpace(fixed)
	if json.Valid([]byte(fixed)) {
		return fixed
	}

	if repaired, err := jsonrepair.JSONRepair(fixed); err == nil && json.Valid([]byte(repaired)) {
		return repaired
	}
	return fixed
}

// ParseJSON extracts, repairs, and unmarshals a JSON object from model
// output. Array payloads are wrapped as {"items": [...]} so callers always
// receive a mapping.
func ParseJSON(text string) (map[string]any, bool) {
	candidate, ok := ExtractJSON(text)
	if !ok {
		return nil, false
	}
	repaired := Repair(candidate)

	var payload map[string]any
	if err := json.Unmarshal([]byte(repaired), &payload); err == nil {
		return payload, true
	}

	var items []any
	if err := json.Unmarshal([]byte(repaired), &items); err == nil {
		return map[string]any{"items": items}, true
	}
	return nil, false
}

// stripCodeFences removes markdown ``` fences, including a language tag on
// the opening fence.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		// Drop a bare language tag like "json" on the fence line.
		if first != "" && !strings.ContainsAny(first, "{[\"") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// stripComments removes // line comments and /* */ block comments outside of
// string literals.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++ // skip the trailing '/'
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// swapSingleQuotes rewrites '...' string literals as "..." literals. Only
// applied when the input contains no double-quoted strings at all, so
// apostrophes inside legitimate JSON strings are never corrupted.
func swapSingleQuotes(s string) string {
	if strings.ContainsRune(s, '"') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '\'':
				inString = false
				b.WriteByte('"')
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		if c == '\'' {
			inString = true
			b.WriteByte('"')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// dropTrailingCommas removes commas that directly precede a closing brace
// or bracket.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // swallow the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// balanceClosers appends the closers for any brackets or braces left open,
// closing an unterminated string literal first.
func balanceClosers(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
