package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/tyemirov/signkit/internal/failure"
)

// Invocation describes one external command execution.
type Invocation struct {
	CommandLine      *CommandLine
	WorkingDirectory string
	Environment      []string
}

// Result holds the exit status and the combined stdout and stderr of a command.
type Result struct {
	ExitCode int
	Output   string
}

// Runner executes external commands. A non-zero exit is reported through
// Result; the error is reserved for launch failures and cancellation.
type Runner interface {
	Run(ctx context.Context, invocation Invocation) (Result, error)
}

// ExecutableRunner executes commands using the local operating system.
type ExecutableRunner struct{}

// NewExecutableRunner constructs an ExecutableRunner.
func NewExecutableRunner() ExecutableRunner {
	return ExecutableRunner{}
}

// Run executes the invocation and captures its combined output.
func (executableRunner ExecutableRunner) Run(ctx context.Context, invocation Invocation) (Result, error) {
	if invocation.CommandLine == nil {
		return Result{}, errors.New("command line is required")
	}
	argv := invocation.CommandLine.Argv()
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.Dir = invocation.WorkingDirectory
	if len(invocation.Environment) > 0 {
		command.Env = append(os.Environ(), invocation.Environment...)
	}
	var outputBuffer bytes.Buffer
	command.Stdout = &outputBuffer
	command.Stderr = &outputBuffer
	runErr := command.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Output: outputBuffer.String()}, failure.Cancelled(ctxErr)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: outputBuffer.String()}, nil
		}
		return Result{}, fmt.Errorf("execute %s: %w", argv[0], runErr)
	}
	return Result{ExitCode: 0, Output: outputBuffer.String()}, nil
}
