package ai

import "encoding/json"

// ExtractJSONObject finds the first balanced {...} span in text and decodes
// it into T. Providers routinely wrap JSON in prose or markdown fences, so
// everything outside the span is ignored. Returns the zero value and false
// when no span balances or the span does not decode.
func ExtractJSONObject[T any](text string) (T, bool) {
	return extractJSON[T](text, '{', '}')
}

// ExtractJSONArray is ExtractJSONObject for [...] spans.
func ExtractJSONArray[T any](text string) (T, bool) {
	return extractJSON[T](text, '[', ']')
}

func extractJSON[T any](text string, openCh, closeCh byte) (T, bool) {
	var zero T
	span, ok := firstBalancedSpan(text, openCh, closeCh)
	if !ok {
		return zero, false
	}
	var out T
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return zero, false
	}
	return out, true
}

// firstBalancedSpan returns the first openCh..closeCh span that balances.
// Brackets inside JSON strings are skipped and backslash escapes honored. An
// opening bracket whose span never closes is abandoned and the scan resumes
// at the next one, so stray brackets in surrounding prose do not hide a
// well-formed span further on.
func firstBalancedSpan(text string, openCh, closeCh byte) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != openCh {
			continue
		}
		if end, ok := scanBalanced(text, start, openCh, closeCh); ok {
			return text[start : end+1], true
		}
	}
	return "", false
}

func scanBalanced(text string, start int, openCh, closeCh byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == openCh:
			depth++
		case ch == closeCh:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
