package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSONObject pulls the first complete JSON object out of a model
// reply. Models asked for JSON still wrap it in code fences or prose often
// enough that callers should never parse raw content directly.
func ExtractJSONObject(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		return trimmed, true
	}
	if fenced, ok := extractFenced(trimmed); ok {
		return fenced, true
	}
	return extractBraced(trimmed)
}

// extractFenced looks for a ```json ... ``` (or bare ```) block.
func extractFenced(content string) (string, bool) {
	start := strings.Index(content, "```")
	if start < 0 {
		return "", false
	}
	rest := content[start+3:]
	if newline := strings.Index(rest, "\n"); newline >= 0 {
		// Skip the language tag line ("json", "JSON" or empty).
		rest = rest[newline+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	candidate := strings.TrimSpace(rest[:end])
	if strings.HasPrefix(candidate, "{") && gjson.Valid(candidate) {
		return candidate, true
	}
	return "", false
}

// extractBraced scans for the widest brace-delimited substring that parses
// as JSON, then narrows from the right.
func extractBraced(content string) (string, bool) {
	start := strings.Index(content, "{")
	if start < 0 {
		return "", false
	}
	for end := len(content); end > start; end-- {
		if content[end-1] != '}' {
			continue
		}
		candidate := content[start:end]
		if gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}
