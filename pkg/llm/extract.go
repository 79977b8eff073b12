package llm

import "strings"

// ExtractJSON pulls the JSON payload out of free-form model output.
// Rules apply in order:
//
//  1. contents of an explicit <json>...</json> tag,
//  2. the outermost balanced {...} object,
//  3. the outermost balanced [...] array.
//
// Returns the candidate and true, or ("", false) when no rule matches.
// The candidate is not guaranteed to parse — repair runs afterwards.
func ExtractJSON(text string) (string, bool) {
	if tag, ok := extractTagged(text); ok {
		return tag, true
	}
	if obj, ok := extractBalanced(text, '{', '}'); ok {
		return obj, true
	}
	if arr, ok := extractBalanced(text, '[', ']'); ok {
		return arr, true
	}
	return "", false
}

// extractTagged returns the contents of the first <json>...</json> pair.
func extractTagged(text string) (string, bool) {
	const openTag, closeTag = "<json>", "</json>"
	start := strings.Index(text, openTag)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(openTag):]
	end := strings.Index(rest, closeTag)
	if end < 0 {
		// Unterminated tag: take everything after it, repair balances it.
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractBalanced returns the outermost balanced run from the first opener
// to its matching closer, tracking string literals so braces inside quoted
// values do not miscount. An unterminated run returns the tail from the
// opener so repair can append the missing closers.
func extractBalanced(text string, opener, closer byte) (string, bool) {
	start := strings.IndexByte(text, opener)
	if start < 0 {
		return "", false
	}

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
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return text[start:], true
}
