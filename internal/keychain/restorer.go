package keychain

import (
	"context"
	"strings"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	logMessageSearchPathCaptured   = "captured keychain search path"
	logMessageSearchPathRestored   = "restored keychain search path"
	logMessageRestoreSearchFailed  = "failed to restore keychain search list"
	logMessageRestoreDefaultFailed = "failed to restore default keychain"

	logFieldSearchList      = "search_list"
	logFieldDefaultKeychain = "default_keychain"
	logFieldExitCode        = "exit_code"
	logFieldOutput          = "output"
)

// SearchPathRestorer captures and restores the user keychain search list and default keychain.
type SearchPathRestorer struct {
	invoker        *execution.Invoker
	loggingService *logging.Service
}

// NewSearchPathRestorer constructs a SearchPathRestorer.
func NewSearchPathRestorer(invoker *execution.Invoker, loggingService *logging.Service) *SearchPathRestorer {
	return &SearchPathRestorer{invoker: invoker, loggingService: loggingService}
}

// Capture reads the current user search list and default keychain.
func (restorer *SearchPathRestorer) Capture(ctx context.Context) (SearchPathSnapshot, error) {
	listResult, listErr := restorer.invoker.Require(ctx, readSearchListCommand(), "failed to read keychain search list")
	if listErr != nil {
		return SearchPathSnapshot{}, listErr
	}
	defaultKeychain, defaultErr := restorer.readDefault(ctx)
	if defaultErr != nil {
		return SearchPathSnapshot{}, defaultErr
	}
	snapshot := NewSearchPathSnapshot(parseKeychainList(listResult.Output), defaultKeychain)
	restorer.loggingService.Info(logMessageSearchPathCaptured,
		logging.Strings(logFieldSearchList, snapshot.SearchList()),
		logging.String(logFieldDefaultKeychain, snapshot.DefaultKeychain()),
	)
	return snapshot, nil
}

func (restorer *SearchPathRestorer) readDefault(ctx context.Context) (string, error) {
	commandLine := readDefaultKeychainCommand()
	result, err := restorer.invoker.Attempt(ctx, commandLine)
	if err != nil {
		return "", err
	}
	if strings.Contains(result.Output, NoDefaultKeychainSentinel) {
		return "", nil
	}
	if verifyErr := restorer.invoker.Verify(commandLine, result, "failed to read default keychain"); verifyErr != nil {
		return "", verifyErr
	}
	entries := parseKeychainList(result.Output)
	if len(entries) == 0 {
		return "", nil
	}
	return entries[0], nil
}

// Restore puts the snapshot back. It runs even when ctx is cancelled, and
// failures are logged, never returned.
func (restorer *SearchPathRestorer) Restore(ctx context.Context, snapshot SearchPathSnapshot) {
	restoreContext := context.WithoutCancel(ctx)
	restorer.attempt(restoreContext, setSearchListCommand(snapshot.SearchList()...), logMessageRestoreSearchFailed)
	if snapshot.HasDefault() {
		restorer.attempt(restoreContext, setDefaultKeychainCommand(snapshot.DefaultKeychain()), logMessageRestoreDefaultFailed)
	}
	restorer.loggingService.Info(logMessageSearchPathRestored,
		logging.Strings(logFieldSearchList, snapshot.SearchList()),
		logging.String(logFieldDefaultKeychain, snapshot.DefaultKeychain()),
	)
}

func (restorer *SearchPathRestorer) attempt(ctx context.Context, commandLine *execution.CommandLine, failureMessage string) {
	result, err := restorer.invoker.Attempt(ctx, commandLine)
	if err != nil {
		restorer.loggingService.Warn(failureMessage, err)
		return
	}
	if result.ExitCode != 0 {
		restorer.loggingService.Warn(failureMessage, nil,
			logging.Int(logFieldExitCode, result.ExitCode),
			logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
		)
	}
}

// parseKeychainList reads security's one-keychain-per-line output, dropping
// padding and surrounding quotes.
func parseKeychainList(output string) []string {
	entries := []string{}
	for _, line := range strings.Split(output, "\n") {
		entry := strings.TrimSpace(line)
		if len(entry) >= 2 && entry[0] == '"' && entry[len(entry)-1] == '"' {
			entry = entry[1 : len(entry)-1]
		}
		if entry == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
