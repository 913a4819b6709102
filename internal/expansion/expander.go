// Package expansion substitutes $NAME and ${NAME} references in user-supplied values.
package expansion

import (
	"os"
	"strings"
)

// Expander expands variable references in text.
type Expander interface {
	Expand(text string) string
}

// VariableExpander resolves references against a fixed set of variables.
// Unknown references are left untouched.
type VariableExpander struct {
	variables map[string]string
}

// NewVariableExpander constructs a VariableExpander over a copy of variables.
func NewVariableExpander(variables map[string]string) VariableExpander {
	copied := make(map[string]string, len(variables))
	for name, value := range variables {
		copied[name] = value
	}
	return VariableExpander{variables: copied}
}

// NewEnvironmentExpander constructs a VariableExpander over the process environment
// overlaid with overrides.
func NewEnvironmentExpander(overrides map[string]string) VariableExpander {
	variables := map[string]string{}
	for _, entry := range os.Environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found || name == "" {
			continue
		}
		variables[name] = value
	}
	for name, value := range overrides {
		variables[name] = value
	}
	return VariableExpander{variables: variables}
}

// Expand replaces known references, collapses "$$" to "$" and preserves
// unknown references verbatim.
func (expander VariableExpander) Expand(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}
	var builder strings.Builder
	for index := 0; index < len(text); {
		if text[index] != '$' || index+1 == len(text) {
			builder.WriteByte(text[index])
			index++
			continue
		}
		next := text[index+1]
		switch {
		case next == '$':
			builder.WriteByte('$')
			index += 2
		case next == '{':
			closing := strings.IndexByte(text[index+2:], '}')
			if closing < 0 {
				builder.WriteString(text[index:])
				return builder.String()
			}
			name := text[index+2 : index+2+closing]
			reference := text[index : index+3+closing]
			builder.WriteString(expander.lookup(name, reference))
			index += 3 + closing
		case isNameStart(next):
			end := index + 2
			for end < len(text) && isNamePart(text[end]) {
				end++
			}
			builder.WriteString(expander.lookup(text[index+1:end], text[index:end]))
			index = end
		default:
			builder.WriteByte('$')
			index++
		}
	}
	return builder.String()
}

func (expander VariableExpander) lookup(name string, reference string) string {
	if value, found := expander.variables[name]; found {
		return value
	}
	return reference
}

func isNameStart(character byte) bool {
	return character == '_' || (character >= 'a' && character <= 'z') || (character >= 'A' && character <= 'Z')
}

func isNamePart(character byte) bool {
	return isNameStart(character) || (character >= '0' && character <= '9')
}

// Identity returns every text unchanged.
type Identity struct{}

// Expand returns text unchanged.
func (Identity) Expand(text string) string {
	return text
}
