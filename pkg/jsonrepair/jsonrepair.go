// Package jsonrepair pulls a single JSON object out of free-form model output.
//
// Language models asked to "return only JSON" routinely wrap the object in
// prose or code fences, leave raw newlines inside string values, or emit a
// trailing comma before a closing brace. [Extract] tolerates exactly those
// defects: it locates the outermost braces, tries a strict decode, applies one
// bounded repair pass and tries once more. Anything still malformed is
// reported as "no structured payload" (nil), never as an error.
package jsonrepair

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Extract returns the JSON object embedded in raw, or nil when raw contains no
// object or the object cannot be decoded even after repair. Extract never
// panics and is idempotent on text that is already a valid JSON object.
func Extract(raw string) map[string]any {
	var out map[string]any
	if !ExtractInto(raw, &out) {
		return nil
	}
	return out
}

// ExtractInto locates and repairs the embedded object like [Extract] and
// decodes it into v. It reports whether decoding succeeded. v must be a
// non-nil pointer.
func ExtractInto(raw string, v any) bool {
	candidate, ok := span(raw)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return true
	}

	repaired := repair(candidate)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		slog.Debug("jsonrepair: object unreadable after repair",
			"err", err,
			"len", len(candidate),
		)
		return false
	}
	return true
}

// span returns the substring from the first '{' to the last '}' inclusive.
func span(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// repair escapes literal CR/LF inside string literals and drops commas that
// directly precede a closing '}' or ']' (ignoring whitespace). Text inside
// string literals is otherwise left untouched.
func repair(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

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
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if closesNext(s, i+1) {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesNext reports whether the next non-whitespace byte at or after i is a
// closing bracket.
func closesNext(s string, i int) bool {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}
