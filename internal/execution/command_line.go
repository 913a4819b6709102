package execution

import (
	"sort"
	"strings"

	"github.com/tyemirov/signkit/pkg/logging"
)

type argument struct {
	value  string
	masked bool
}

// CommandLine is an argv whose masked entries never appear in rendered text.
type CommandLine struct {
	executable string
	arguments  []argument
}

// NewCommandLine constructs a CommandLine from an executable and plain arguments.
func NewCommandLine(executable string, arguments ...string) *CommandLine {
	commandLine := &CommandLine{executable: executable}
	return commandLine.Add(arguments...)
}

// Add appends plain arguments.
func (commandLine *CommandLine) Add(values ...string) *CommandLine {
	for _, value := range values {
		commandLine.arguments = append(commandLine.arguments, argument{value: value})
	}
	return commandLine
}

// AddMasked appends an argument that is replaced by a placeholder whenever rendered.
func (commandLine *CommandLine) AddMasked(value string) *CommandLine {
	commandLine.arguments = append(commandLine.arguments, argument{value: value, masked: true})
	return commandLine
}

// Executable returns the program name.
func (commandLine *CommandLine) Executable() string {
	return commandLine.executable
}

// Argv returns the executable followed by every argument in plain form.
func (commandLine *CommandLine) Argv() []string {
	argv := make([]string, 0, len(commandLine.arguments)+1)
	argv = append(argv, commandLine.executable)
	for _, entry := range commandLine.arguments {
		argv = append(argv, entry.value)
	}
	return argv
}

// MaskedIndices returns the argv indices holding masked values.
func (commandLine *CommandLine) MaskedIndices() []int {
	indices := []int{}
	for index, entry := range commandLine.arguments {
		if entry.masked {
			indices = append(indices, index+1)
		}
	}
	return indices
}

// MaskedValues returns the distinct non-empty masked values, longest first.
func (commandLine *CommandLine) MaskedValues() []string {
	seen := map[string]struct{}{}
	values := []string{}
	for _, entry := range commandLine.arguments {
		if !entry.masked || entry.value == "" {
			continue
		}
		if _, exists := seen[entry.value]; exists {
			continue
		}
		seen[entry.value] = struct{}{}
		values = append(values, entry.value)
	}
	sort.SliceStable(values, func(left int, right int) bool {
		return len(values[left]) > len(values[right])
	})
	return values
}

// String renders the command line with masked arguments replaced.
func (commandLine *CommandLine) String() string {
	rendered := make([]string, 0, len(commandLine.arguments)+1)
	rendered = append(rendered, commandLine.executable)
	for _, entry := range commandLine.arguments {
		if entry.masked {
			rendered = append(rendered, logging.MaskPlaceholder)
			continue
		}
		rendered = append(rendered, quoteIfNeeded(entry.value))
	}
	return strings.Join(rendered, " ")
}

// Mask replaces every masked value of the command line in text.
func (commandLine *CommandLine) Mask(text string) string {
	for _, value := range commandLine.MaskedValues() {
		text = strings.ReplaceAll(text, value, logging.MaskPlaceholder)
	}
	return text
}

func quoteIfNeeded(value string) string {
	if value == "" {
		return "\"\""
	}
	if strings.ContainsAny(value, " \t\"'") {
		return "\"" + strings.ReplaceAll(value, "\"", "\\\"") + "\""
	}
	return value
}
