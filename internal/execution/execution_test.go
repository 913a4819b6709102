package execution_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/execution/executiontest"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/pkg/logging"
	"github.com/tyemirov/signkit/pkg/logging/loggingtest"
)

const testKeychainPassword = "6d0c1f7e-4a52-4c1e-9a55-0b8e1f2d3c4b"

func TestCommandLineRendersMaskedArguments(t *testing.T) {
	commandLine := execution.NewCommandLine("security", "unlock-keychain").Add("-p").AddMasked(testKeychainPassword).Add("jenkins-app folder")

	expectedArgv := []string{"security", "unlock-keychain", "-p", testKeychainPassword, "jenkins-app folder"}
	if !reflect.DeepEqual(commandLine.Argv(), expectedArgv) {
		t.Fatalf("expected argv %v, got %v", expectedArgv, commandLine.Argv())
	}
	if !reflect.DeepEqual(commandLine.MaskedIndices(), []int{3}) {
		t.Fatalf("expected masked index 3, got %v", commandLine.MaskedIndices())
	}
	rendered := commandLine.String()
	if strings.Contains(rendered, testKeychainPassword) {
		t.Fatalf("rendered command leaked password: %s", rendered)
	}
	expectedRendered := "security unlock-keychain -p " + logging.MaskPlaceholder + " \"jenkins-app folder\""
	if rendered != expectedRendered {
		t.Fatalf("expected %q, got %q", expectedRendered, rendered)
	}
	masked := commandLine.Mask("bad password " + testKeychainPassword + " for keychain")
	if strings.Contains(masked, testKeychainPassword) {
		t.Fatalf("mask left password in %q", masked)
	}
}

func TestInvokerRequireReturnsCommandErrorWithMaskedOutput(t *testing.T) {
	logBuffer := &bytes.Buffer{}
	loggingService := loggingtest.NewBufferedService(t, logBuffer)
	runner := executiontest.NewRecordingRunner().Respond(execution.Result{
		ExitCode: 51,
		Output:   "security: SecKeychainUnlock: password " + testKeychainPassword + " rejected\n",
	}, "security", "unlock-keychain")
	invoker := execution.NewInvoker(runner, loggingService)

	commandLine := execution.NewCommandLine("security", "unlock-keychain", "-p").AddMasked(testKeychainPassword).Add("login.keychain")
	_, err := invoker.Require(context.Background(), commandLine, "failed to unlock keychain")
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
	var commandError *failure.CommandError
	if !errors.As(err, &commandError) {
		t.Fatalf("expected CommandError, got %T", err)
	}
	if commandError.ExitCode != 51 {
		t.Fatalf("expected exit code 51, got %d", commandError.ExitCode)
	}
	for _, text := range []string{err.Error(), commandError.Output, commandError.CommandLine, logBuffer.String()} {
		if strings.Contains(text, testKeychainPassword) {
			t.Fatalf("password leaked into %q", text)
		}
	}
	if !strings.Contains(logBuffer.String(), "SecKeychainUnlock") {
		t.Fatalf("expected captured output to be logged, got %s", logBuffer.String())
	}
}

func TestInvokerAttemptIgnoresExitStatus(t *testing.T) {
	runner := executiontest.NewRecordingRunner().Respond(execution.Result{ExitCode: 50}, "security", "delete-keychain")
	invoker := execution.NewInvoker(runner, logging.NewTestService(logging.TypeConsole))

	result, err := invoker.Attempt(context.Background(), execution.NewCommandLine("security", "delete-keychain", "jenkins-job"))
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if result.ExitCode != 50 {
		t.Fatalf("expected exit code 50, got %d", result.ExitCode)
	}
}

func TestInvokerLogsCommandDuration(t *testing.T) {
	logBuffer := &bytes.Buffer{}
	runner := executiontest.NewRecordingRunner().Respond(execution.Result{ExitCode: 44}, "security", "find-identity")
	invoker := execution.NewInvoker(runner, loggingtest.NewBufferedService(t, logBuffer))

	if _, err := invoker.Attempt(context.Background(), execution.NewCommandLine("security", "find-identity", "-v")); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	logOutput := logBuffer.String()
	for _, expected := range []string{"command finished", "exit_code=44", "duration="} {
		if !strings.Contains(logOutput, expected) {
			t.Fatalf("expected %q in log output:\n%s", expected, logOutput)
		}
	}
}

func TestInvokerWrapsLaunchFailures(t *testing.T) {
	runner := executiontest.NewRecordingRunner().Fail(errors.New("exec: \"security\": executable file not found"), "security")
	invoker := execution.NewInvoker(runner, logging.NewTestService(logging.TypeConsole))

	_, err := invoker.Attempt(context.Background(), execution.NewCommandLine("security", "list-keychains"))
	var commandError *failure.CommandError
	if !errors.As(err, &commandError) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if commandError.ExitCode != failure.ExitCodeNotStarted {
		t.Fatalf("expected not-started exit code, got %d", commandError.ExitCode)
	}
}

func TestInvokerStopsOnCancelledContext(t *testing.T) {
	runner := executiontest.NewRecordingRunner()
	invoker := execution.NewInvoker(runner, logging.NewTestService(logging.TypeConsole))
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := invoker.Require(cancelledContext, execution.NewCommandLine("security", "list-keychains"), "list keychains")
	if !failure.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(runner.Executed()) != 0 {
		t.Fatalf("expected no commands after cancellation, got %d", len(runner.Executed()))
	}
}

func TestInvokerPassesWorkingDirectoryAndEnvironment(t *testing.T) {
	runner := executiontest.NewRecordingRunner()
	invoker := execution.NewInvoker(runner, logging.NewTestService(logging.TypeConsole)).
		WithWorkingDirectory("/tmp/workspace").
		WithEnvironment([]string{"SIGNKIT_KEYCHAIN_PATH=jenkins-job"})

	if _, err := invoker.Attempt(context.Background(), execution.NewCommandLine("codesign", "--version")); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	executed := runner.Executed()
	if executed[0].WorkingDirectory != "/tmp/workspace" {
		t.Fatalf("unexpected working directory %q", executed[0].WorkingDirectory)
	}
	if !reflect.DeepEqual(executed[0].Environment, []string{"SIGNKIT_KEYCHAIN_PATH=jenkins-job"}) {
		t.Fatalf("unexpected environment %v", executed[0].Environment)
	}
}

func TestExecutableRunnerCapturesExitCodeAndOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	runner := execution.NewExecutableRunner()
	result, err := runner.Run(context.Background(), execution.Invocation{
		CommandLine: execution.NewCommandLine("sh", "-c", "echo keychain-output; echo failure >&2; exit 3"),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "keychain-output") || !strings.Contains(result.Output, "failure") {
		t.Fatalf("expected combined output, got %q", result.Output)
	}
}

func TestExecutableRunnerReportsMissingExecutable(t *testing.T) {
	runner := execution.NewExecutableRunner()
	_, err := runner.Run(context.Background(), execution.Invocation{
		CommandLine: execution.NewCommandLine("signkit-definitely-missing-binary"),
	})
	if err == nil {
		t.Fatalf("expected launch error")
	}
}
