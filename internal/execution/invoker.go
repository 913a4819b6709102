package execution

import (
	"context"
	"strings"
	"time"

	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	logFieldCommand  = "command"
	logFieldDuration = "duration"
	logFieldExitCode = "exit_code"
	logFieldOutput   = "output"

	logMessageRunningCommand  = "running command"
	logMessageCommandFinished = "command finished"
	logMessageCommandFailed   = "command failed"
)

// Invoker runs command lines through a Runner and is the single place where
// masked values are stripped from captured output.
type Invoker struct {
	runner           Runner
	loggingService   *logging.Service
	workingDirectory string
	environment      []string
}

// NewInvoker constructs an Invoker.
func NewInvoker(runner Runner, loggingService *logging.Service) *Invoker {
	return &Invoker{runner: runner, loggingService: loggingService}
}

// WithWorkingDirectory returns a copy of the invoker that runs commands in directory.
func (invoker *Invoker) WithWorkingDirectory(directory string) *Invoker {
	copied := *invoker
	copied.workingDirectory = directory
	return &copied
}

// WithEnvironment returns a copy of the invoker that appends the KEY=VALUE entries.
func (invoker *Invoker) WithEnvironment(environment []string) *Invoker {
	copied := *invoker
	copied.environment = append(append([]string{}, invoker.environment...), environment...)
	return &copied
}

// Attempt runs the command and returns its result regardless of exit status.
func (invoker *Invoker) Attempt(ctx context.Context, commandLine *CommandLine) (Result, error) {
	if cancelledErr := failure.FromContext(ctx); cancelledErr != nil {
		return Result{}, cancelledErr
	}
	for _, maskedValue := range commandLine.MaskedValues() {
		invoker.loggingService.RegisterSecret(maskedValue)
	}
	invoker.loggingService.Info(logMessageRunningCommand, logging.String(logFieldCommand, commandLine.String()))
	startedAt := time.Now()
	result, runErr := invoker.runner.Run(ctx, Invocation{
		CommandLine:      commandLine,
		WorkingDirectory: invoker.workingDirectory,
		Environment:      invoker.environment,
	})
	elapsed := time.Since(startedAt)
	result.Output = commandLine.Mask(result.Output)
	if runErr != nil {
		if failure.IsCancelled(runErr) {
			return result, runErr
		}
		return result, &failure.CommandError{
			Message:     commandLine.Mask(runErr.Error()),
			CommandLine: commandLine.String(),
			ExitCode:    failure.ExitCodeNotStarted,
		}
	}
	invoker.loggingService.Info(logMessageCommandFinished,
		logging.String(logFieldCommand, commandLine.String()),
		logging.Int(logFieldExitCode, result.ExitCode),
		logging.Duration(logFieldDuration, elapsed),
	)
	return result, nil
}

// Require runs the command and fails with a CommandError when it exits non-zero.
// The captured output is logged before the error is returned.
func (invoker *Invoker) Require(ctx context.Context, commandLine *CommandLine, failureMessage string) (Result, error) {
	result, err := invoker.Attempt(ctx, commandLine)
	if err != nil {
		return result, err
	}
	return result, invoker.Verify(commandLine, result, failureMessage)
}

// Verify turns a non-zero result of commandLine into a logged CommandError.
func (invoker *Invoker) Verify(commandLine *CommandLine, result Result, failureMessage string) error {
	if result.ExitCode == 0 {
		return nil
	}
	invoker.loggingService.Error(logMessageCommandFailed, nil,
		logging.String(logFieldCommand, commandLine.String()),
		logging.Int(logFieldExitCode, result.ExitCode),
		logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
	)
	return &failure.CommandError{
		Message:     failureMessage,
		CommandLine: commandLine.String(),
		ExitCode:    result.ExitCode,
		Output:      result.Output,
	}
}
