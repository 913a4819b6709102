// Package executiontest provides a scripted execution.Runner for tests.
package executiontest

import (
	"context"
	"strings"
	"sync"

	"github.com/tyemirov/signkit/internal/execution"
)

// ExecutedCommand captures one invocation observed by a RecordingRunner.
type ExecutedCommand struct {
	Argv             []string
	MaskedIndices    []int
	Rendered         string
	WorkingDirectory string
	Environment      []string
}

// Subcommand returns the first argument after the executable, or "".
func (executedCommand ExecutedCommand) Subcommand() string {
	if len(executedCommand.Argv) < 2 {
		return ""
	}
	return executedCommand.Argv[1]
}

type scriptedResponse struct {
	prefix []string
	result execution.Result
	err    error
	once   bool
	used   bool
}

// RecordingRunner records invocations and answers them from scripted responses.
// Unscripted commands succeed with empty output.
type RecordingRunner struct {
	mutex     sync.Mutex
	executed  []ExecutedCommand
	responses []*scriptedResponse
	hook      func(ctx context.Context, invocation execution.Invocation)
}

// NewRecordingRunner constructs an empty RecordingRunner.
func NewRecordingRunner() *RecordingRunner {
	return &RecordingRunner{}
}

// Respond answers every command whose argv starts with prefix.
func (runner *RecordingRunner) Respond(result execution.Result, prefix ...string) *RecordingRunner {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.responses = append(runner.responses, &scriptedResponse{prefix: prefix, result: result})
	return runner
}

// RespondOnce answers the next command whose argv starts with prefix, then stops matching.
func (runner *RecordingRunner) RespondOnce(result execution.Result, prefix ...string) *RecordingRunner {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.responses = append(runner.responses, &scriptedResponse{prefix: prefix, result: result, once: true})
	return runner
}

// Fail answers every command whose argv starts with prefix with a launch error.
func (runner *RecordingRunner) Fail(err error, prefix ...string) *RecordingRunner {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.responses = append(runner.responses, &scriptedResponse{prefix: prefix, err: err})
	return runner
}

// OnRun registers a hook invoked before every scripted answer.
func (runner *RecordingRunner) OnRun(hook func(ctx context.Context, invocation execution.Invocation)) *RecordingRunner {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.hook = hook
	return runner
}

// Run records the invocation and returns the first matching scripted response.
func (runner *RecordingRunner) Run(ctx context.Context, invocation execution.Invocation) (execution.Result, error) {
	runner.mutex.Lock()
	argv := invocation.CommandLine.Argv()
	runner.executed = append(runner.executed, ExecutedCommand{
		Argv:             argv,
		MaskedIndices:    invocation.CommandLine.MaskedIndices(),
		Rendered:         invocation.CommandLine.String(),
		WorkingDirectory: invocation.WorkingDirectory,
		Environment:      append([]string{}, invocation.Environment...),
	})
	hook := runner.hook
	var matched *scriptedResponse
	for _, response := range runner.responses {
		if response.once && response.used {
			continue
		}
		if hasPrefix(argv, response.prefix) {
			matched = response
			response.used = true
			break
		}
	}
	runner.mutex.Unlock()

	if hook != nil {
		hook(ctx, invocation)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return execution.Result{}, ctxErr
	}
	if matched == nil {
		return execution.Result{}, nil
	}
	return matched.result, matched.err
}

// Executed returns a copy of every recorded invocation in order.
func (runner *RecordingRunner) Executed() []ExecutedCommand {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	return append([]ExecutedCommand{}, runner.executed...)
}

// Subcommands returns the subcommand of every recorded invocation in order.
func (runner *RecordingRunner) Subcommands() []string {
	executed := runner.Executed()
	subcommands := make([]string, 0, len(executed))
	for _, command := range executed {
		subcommands = append(subcommands, command.Subcommand())
	}
	return subcommands
}

// Find returns the recorded invocations whose argv starts with prefix.
func (runner *RecordingRunner) Find(prefix ...string) []ExecutedCommand {
	matches := []ExecutedCommand{}
	for _, command := range runner.Executed() {
		if hasPrefix(command.Argv, prefix) {
			matches = append(matches, command)
		}
	}
	return matches
}

// Transcript joins every rendered command line, one per line.
func (runner *RecordingRunner) Transcript() string {
	rendered := []string{}
	for _, command := range runner.Executed() {
		rendered = append(rendered, command.Rendered)
	}
	return strings.Join(rendered, "\n")
}

func hasPrefix(argv []string, prefix []string) bool {
	if len(prefix) > len(argv) {
		return false
	}
	for index, value := range prefix {
		if argv[index] != value {
			return false
		}
	}
	return true
}
