package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/execution/executiontest"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/nodefs"
	"github.com/tyemirov/signkit/internal/nodefs/nodefstest"
	"github.com/tyemirov/signkit/internal/workdir"
	"github.com/tyemirov/signkit/pkg/logging/loggingtest"
)

const (
	testIdentityID       = "ios-distribution"
	testBundlePassword   = "bundle-secret"
	testDebugPassword    = "debug-secret"
	testTypedPassword    = "typed-keychain-secret"
	testJobName          = "mobile/ios-app"
	testEphemeralName    = "jenkins-mobile-ios-app"
	testExistingKeychain = "/Users/ci/Library/Keychains/build.keychain-db"
)

type commandHarness struct {
	runner       *executiontest.RecordingRunner
	resources    *applicationResources
	outputBuffer *bytes.Buffer
	logBuffer    *bytes.Buffer
	configPath   string
	workspace    string
}

func newCommandHarness(t *testing.T) *commandHarness {
	t.Helper()
	directory := t.TempDir()
	archive := nodefstest.Archive(t, map[string]string{
		"identity.p12":        "identity",
		"app.mobileprovision": "profile",
	})
	vaultPath := filepath.Join(directory, "vault.yaml")
	vaultDocument := fmt.Sprintf("signing_identities:\n  - id: %s\n    archive: %s\n    password: %s\n", testIdentityID, base64.StdEncoding.EncodeToString(archive), testBundlePassword)
	writeTestFile(t, vaultPath, vaultDocument)
	configPath := filepath.Join(directory, "config.yaml")
	writeTestFile(t, configPath, fmt.Sprintf("vault:\n  backends: [file]\n  file:\n    path: %s\n", vaultPath))

	runner := executiontest.NewRecordingRunner()
	outputBuffer := &bytes.Buffer{}
	logBuffer := &bytes.Buffer{}
	resources := &applicationResources{
		configurationManager: newConfigurationManager(),
		loggingService:       loggingtest.NewBufferedService(t, logBuffer),
		defaultConfigDirPath: t.TempDir(),
		runner:               runner,
		fileSystem:           nodefs.NewLocalFileSystemWithHome(t.TempDir()),
		readPassword: func(string) (string, error) {
			return testTypedPassword, nil
		},
		outputWriter: outputBuffer,
	}
	return &commandHarness{
		runner:       runner,
		resources:    resources,
		outputBuffer: outputBuffer,
		logBuffer:    logBuffer,
		configPath:   configPath,
		workspace:    t.TempDir(),
	}
}

func (harness *commandHarness) execute(ctx context.Context, arguments ...string) int {
	return executeWithResources(ctx, harness.resources, arguments)
}

func (harness *commandHarness) provisionArguments(command string) []string {
	return []string{
		command,
		"--config", harness.configPath,
		"--identity", testIdentityID,
		"--job", testJobName,
		"--workspace", harness.workspace,
		"--os-version", "14.1",
		"--debug-password", testDebugPassword,
	}
}

func writeTestFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestImportCommandProvisionsEphemeralKeychain(t *testing.T) {
	harness := newCommandHarness(t)

	if exitCode := harness.execute(context.Background(), harness.provisionArguments("import")...); exitCode != exitCodeSuccess {
		t.Fatalf("expected success, got exit code %d\n%s", exitCode, harness.logBuffer.String())
	}
	if strings.TrimSpace(harness.outputBuffer.String()) != testEphemeralName {
		t.Fatalf("expected keychain name output, got %q", harness.outputBuffer.String())
	}
	if len(harness.runner.Find("security", "create-keychain")) != 1 {
		t.Fatalf("expected one create-keychain, got:\n%s", harness.runner.Transcript())
	}
	if len(harness.runner.Find("security", "import")) != 1 {
		t.Fatalf("expected one identity import, got:\n%s", harness.runner.Transcript())
	}
	if _, err := os.Stat(workdir.Path(harness.workspace, testDebugPassword)); !os.IsNotExist(err) {
		t.Fatalf("expected work directory to be removed, stat returned %v", err)
	}
	for _, secret := range []string{testBundlePassword, testDebugPassword} {
		if strings.Contains(harness.logBuffer.String(), secret) || strings.Contains(harness.runner.Transcript(), secret) {
			t.Fatalf("secret %q leaked", secret)
		}
	}
}

func TestRunCommandExportsKeychainPath(t *testing.T) {
	harness := newCommandHarness(t)
	harness.runner.Respond(execution.Result{Output: "signed app\n"}, "codesign")
	arguments := append(harness.provisionArguments("run"), "--", "codesign", "--sign", "Apple Distribution", "App.app")

	if exitCode := harness.execute(context.Background(), arguments...); exitCode != exitCodeSuccess {
		t.Fatalf("expected success, got exit code %d\n%s", exitCode, harness.logBuffer.String())
	}
	signingCommands := harness.runner.Find("codesign")
	if len(signingCommands) != 1 {
		t.Fatalf("expected one signing command, got:\n%s", harness.runner.Transcript())
	}
	expectedEnvironment := KeychainPathEnvironmentVariable + "=" + testEphemeralName
	if len(signingCommands[0].Environment) != 1 || signingCommands[0].Environment[0] != expectedEnvironment {
		t.Fatalf("expected environment %q, got %v", expectedEnvironment, signingCommands[0].Environment)
	}
	if !strings.Contains(harness.outputBuffer.String(), "signed app") {
		t.Fatalf("expected wrapped command output, got %q", harness.outputBuffer.String())
	}
}

func TestRunCommandFailureStillCleansUp(t *testing.T) {
	harness := newCommandHarness(t)
	harness.runner.Respond(execution.Result{ExitCode: 1, Output: "errSecInternalComponent"}, "codesign")
	arguments := append(harness.provisionArguments("run"), "--", "codesign", "App.app")

	if exitCode := harness.execute(context.Background(), arguments...); exitCode != exitCodeFailure {
		t.Fatalf("expected failure exit code, got %d", exitCode)
	}
	if _, err := os.Stat(workdir.Path(harness.workspace, testDebugPassword)); !os.IsNotExist(err) {
		t.Fatalf("expected work directory to be removed, stat returned %v", err)
	}
}

func TestImportCommandUnknownIdentityIsConfigurationError(t *testing.T) {
	harness := newCommandHarness(t)
	arguments := harness.provisionArguments("import")
	arguments[4] = "unknown"

	if exitCode := harness.execute(context.Background(), arguments...); exitCode != exitCodeConfiguration {
		t.Fatalf("expected configuration exit code, got %d", exitCode)
	}
	if len(harness.runner.Executed()) != 0 {
		t.Fatalf("expected no commands, got:\n%s", harness.runner.Transcript())
	}
}

func TestImportCommandPromptsForExistingKeychainPassword(t *testing.T) {
	harness := newCommandHarness(t)
	arguments := append(harness.provisionArguments("import"),
		"--existing-keychain",
		"--keychain-path", testExistingKeychain,
		"--prompt-keychain-password",
	)

	if exitCode := harness.execute(context.Background(), arguments...); exitCode != exitCodeSuccess {
		t.Fatalf("expected success, got exit code %d\n%s", exitCode, harness.logBuffer.String())
	}
	unlockCommands := harness.runner.Find("security", "unlock-keychain")
	if len(unlockCommands) != 1 {
		t.Fatalf("expected one unlock, got:\n%s", harness.runner.Transcript())
	}
	expectedArgv := []string{"security", "unlock-keychain", "-p", testTypedPassword, testExistingKeychain}
	if strings.Join(unlockCommands[0].Argv, " ") != strings.Join(expectedArgv, " ") {
		t.Fatalf("expected %v, got %v", expectedArgv, unlockCommands[0].Argv)
	}
	if len(harness.runner.Find("security", "create-keychain")) != 0 {
		t.Fatalf("existing keychains must not be created")
	}
	if strings.Contains(harness.logBuffer.String(), testTypedPassword) || strings.Contains(harness.runner.Transcript(), testTypedPassword) {
		t.Fatalf("typed password leaked")
	}
}

func TestPromptRequiresExistingKeychain(t *testing.T) {
	harness := newCommandHarness(t)
	arguments := append(harness.provisionArguments("import"), "--prompt-keychain-password")

	if exitCode := harness.execute(context.Background(), arguments...); exitCode != exitCodeConfiguration {
		t.Fatalf("expected configuration exit code, got %d", exitCode)
	}
}

func TestImportCommandCancelled(t *testing.T) {
	harness := newCommandHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if exitCode := harness.execute(ctx, harness.provisionArguments("import")...); exitCode != exitCodeCancelled {
		t.Fatalf("expected cancellation exit code, got %d", exitCode)
	}
	if len(harness.runner.Executed()) != 0 {
		t.Fatalf("expected no commands after cancellation, got:\n%s", harness.runner.Transcript())
	}
}

func TestCleanupCommandRemovesEphemeralKeychain(t *testing.T) {
	harness := newCommandHarness(t)
	harness.runner.RespondOnce(execution.Result{Output: "    \"/Users/ci/Library/Keychains/login.keychain-db\"\n    \"/Users/ci/Library/Keychains/" + testEphemeralName + "-db\"\n"}, "security", "list-keychains", "-d", "user")

	if exitCode := harness.execute(context.Background(), "cleanup", "--job", testJobName); exitCode != exitCodeSuccess {
		t.Fatalf("expected success, got exit code %d\n%s", exitCode, harness.logBuffer.String())
	}
	if len(harness.runner.Find("security", "delete-keychain", testEphemeralName)) != 1 {
		t.Fatalf("expected keychain deletion, got:\n%s", harness.runner.Transcript())
	}
	if len(harness.runner.Find("security", "list-keychains", "-d", "user", "-s", "/Users/ci/Library/Keychains/login.keychain-db")) != 1 {
		t.Fatalf("expected search list without the job keychain, got:\n%s", harness.runner.Transcript())
	}
}

func TestKeychainNameCommand(t *testing.T) {
	testCases := []struct {
		name             string
		arguments        []string
		expectedExitCode int
		expectedOutput   string
	}{
		{name: "job flag", arguments: []string{"keychain-name", "--job", testJobName}, expectedExitCode: exitCodeSuccess, expectedOutput: testEphemeralName + "\n"},
		{name: "missing job", arguments: []string{"keychain-name", "--job", " "}, expectedExitCode: exitCodeConfiguration},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newCommandHarness(t)
			if exitCode := harness.execute(context.Background(), testCase.arguments...); exitCode != testCase.expectedExitCode {
				t.Fatalf("expected exit code %d, got %d", testCase.expectedExitCode, exitCode)
			}
			if harness.outputBuffer.String() != testCase.expectedOutput {
				t.Fatalf("expected output %q, got %q", testCase.expectedOutput, harness.outputBuffer.String())
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "configuration", err: failure.NewConfigurationError("missing"), expected: exitCodeConfiguration},
		{name: "cancelled", err: failure.Cancelled(context.Canceled), expected: exitCodeCancelled},
		{name: "raw cancellation", err: fmt.Errorf("run: %w", context.Canceled), expected: exitCodeCancelled},
		{name: "command", err: &failure.CommandError{Message: "failed", ExitCode: 1}, expected: exitCodeFailure},
		{name: "other", err: errors.New("boom"), expected: exitCodeFailure},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if actual := exitCode(testCase.err); actual != testCase.expected {
				t.Fatalf("expected %d, got %d", testCase.expected, actual)
			}
		})
	}
}
