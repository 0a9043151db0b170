// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"encoding/json"
	"strings"

	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// CoerceInput repairs string-encoded structured arguments in a tool input
// against the tool's declared schema. The model sometimes serializes object
// and array parameters as strings; this parses them back into native values.
// Coercion is advisory: every failure degrades to passing the original value
// through, and the function never errors.
func CoerceInput(input map[string]interface{}, def tools.Definition) map[string]interface{} {
	props := def.InputSchema.Properties
	if len(input) == 0 || len(props) == 0 {
		return input
	}

	logger := logging.GetDefaultLogger()

	out := make(map[string]interface{}, len(input))
	for name, value := range input {
		out[name] = value

		prop, declared := props[name]
		if !declared {
			continue
		}
		s, isString := value.(string)
		if !isString {
			continue
		}
		if prop.Type != "object" && prop.Type != "array" {
			continue
		}

		trimmed := strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
			if parsed, ok := parseStructured(trimmed); ok {
				out[name] = parsed
				logger.Debugf("Auto-parsed JSON for '%s' in '%s'", name, def.Name)
			} else {
				logger.Warnf("Could not parse JSON/literal for '%s' in '%s'", name, def.Name)
			}
		case trimmed == "null" || trimmed == "None" || trimmed == "":
			// An explicit schema default means the literal string was
			// probably intentional.
			if prop.Default == nil {
				out[name] = nil
			}
		}
	}

	return out
}

// parseStructured attempts a strict JSON parse, then a permissive parse that
// repairs Python-style literals (single quotes, None/True/False) the model
// occasionally emits.
func parseStructured(s string) (interface{}, bool) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(s), &parsed); err == nil {
		return parsed, true
	}

	if err := json.Unmarshal([]byte(repairLiteral(s)), &parsed); err == nil {
		return parsed, true
	}
	return nil, false
}

// repairLiteral rewrites a Python-style literal into JSON. The rewrite is
// position-aware: quote conversion and keyword replacement apply only
// outside string contents, so values like 'True story' survive intact.
func repairLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			i = copyString(&b, s, i)
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			switch word := s[start:i]; word {
			case "None":
				b.WriteString("null")
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			default:
				b.WriteString(word)
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// copyString consumes the quoted string starting at s[i] and writes its
// JSON double-quoted form, returning the index past the closing quote.
// Contents pass through verbatim apart from quote-delimiter escaping.
func copyString(b *strings.Builder, s string, i int) int {
	quote := s[i]
	b.WriteByte('"')
	i++
	for i < len(s) {
		ch := s[i]
		if ch == '\\' && i+1 < len(s) {
			// JSON has no \' escape; an escaped single quote becomes the
			// bare character.
			if s[i+1] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(s[i+1])
			}
			i += 2
			continue
		}
		if ch == quote {
			i++
			break
		}
		if ch == '"' {
			b.WriteString(`\"`)
			i++
			continue
		}
		b.WriteByte(ch)
		i++
	}
	b.WriteByte('"')
	return i
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}
