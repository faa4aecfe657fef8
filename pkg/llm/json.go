package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// thinkContentPattern extracts the content inside <think>...</think> tags.
var thinkContentPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// ExtractThinking extracts the content from <think>...</think> tags in an LLM response.
// Returns empty string if no thinking tags are found.
func ExtractThinking(response string) string {
	matches := thinkContentPattern.FindStringSubmatch(response)
	if len(matches) >= 2 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

// ExtractJSON extracts JSON content from an LLM response that may contain
// <think> tags, markdown code blocks, or other formatting.
func ExtractJSON(response string) (string, error) {
	// Strip <think>...</think> tags from the start of the response
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	// Find the first occurrence of { or [ to determine JSON type
	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	// Try whichever comes first (or the one that exists)
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
			if repaired, ok := repairJSON(jsonStr); ok {
				return repaired, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
			if repaired, ok := repairJSON(jsonStr); ok {
				return repaired, nil
			}
		}
	}

	// Last resort: check if the entire cleaned response is valid JSON
	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	if repaired, ok := repairJSON(trimmed); ok {
		return repaired, nil
	}

	// extractBalancedJSON only returns a candidate for properly closed
	// bracket pairs; a response truncated mid-object has none. Fall back to
	// repairing from the first opening bracket to end of string.
	if start := firstBracket(cleaned); start >= 0 {
		if repaired, ok := repairJSON(cleaned[start:]); ok {
			return repaired, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// firstBracket returns the index of the first { or [ in s, or -1.
func firstBracket(s string) int {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')
	if objStart < 0 {
		return arrStart
	}
	if arrStart < 0 {
		return objStart
	}
	if objStart < arrStart {
		return objStart
	}
	return arrStart
}

// nonASCIIPattern matches any byte outside the printable ASCII range.
var nonASCIIPattern = regexp.MustCompile(`[^\x09\x0A\x0D\x20-\x7E]`)

// trailingCommaPattern matches a comma followed by optional whitespace and a
// closing brace or bracket, which is invalid JSON but common in truncated or
// hand-edited LLM output.
var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

// repairJSON attempts to turn a malformed JSON candidate into something
// json.Unmarshal will accept. The model is not trusted to always produce
// well-formed output: responses get cut off mid-object, models emit stray
// non-ASCII glyphs, and trailing commas leak in from example-driven prompts.
// Repairs are applied in order: strip non-ASCII, close a dangling string,
// balance unclosed braces/brackets, drop trailing commas.
func repairJSON(s string) (string, bool) {
	s = nonASCIIPattern.ReplaceAllString(s, "")
	s = closeDanglingString(s)
	s = balanceBrackets(s)
	s = trailingCommaPattern.ReplaceAllString(s, "$1")

	if json.Valid([]byte(s)) {
		return s, true
	}
	return "", false
}

// closeDanglingString appends a closing quote if s ends mid-string-literal,
// i.e. an odd number of unescaped quotes precede the end of the string.
func closeDanglingString(s string) string {
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
		}
	}
	if inString {
		return s + `"`
	}
	return s
}

// balanceBrackets appends closing braces/brackets for any left unclosed,
// tracking nesting order so they close in the correct sequence. Assumes any
// dangling string literal has already been closed.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var closers []byte
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			closers = append(closers, '}')
		} else {
			closers = append(closers, ']')
		}
	}

	return s + string(closers)
}

// extractBalancedJSON finds the first balanced JSON structure starting with openChar.
// It handles nested structures by counting bracket depth.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	// Find the first occurrence of the opening bracket
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into the target.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
