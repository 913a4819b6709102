package keychain

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	logMessageKeychainRemoved  = "removed keychain"
	logMessageKeychainNotFound = "keychain was not present"
)

var keychainFileSuffixes = []string{".keychain-db", ".keychain", "-db"}

// Remover deletes keychains created for jobs.
type Remover struct {
	invoker        *execution.Invoker
	loggingService *logging.Service
}

// NewRemover constructs a Remover.
func NewRemover(invoker *execution.Invoker, loggingService *logging.Service) *Remover {
	return &Remover{invoker: invoker, loggingService: loggingService}
}

// Remove drops keychainName from the user search list and deletes it. A
// keychain that does not exist is not an error.
func (remover *Remover) Remove(ctx context.Context, keychainName string) error {
	listResult, listErr := remover.invoker.Require(ctx, readSearchListCommand(), "failed to read keychain search list")
	if listErr != nil {
		return listErr
	}
	current := parseKeychainList(listResult.Output)
	remaining := make([]string, 0, len(current))
	for _, entry := range current {
		if !matchesKeychain(entry, keychainName) {
			remaining = append(remaining, entry)
		}
	}
	if len(remaining) != len(current) {
		if _, err := remover.invoker.Require(ctx, setSearchListCommand(remaining...), "failed to set keychain search path"); err != nil {
			return err
		}
	}
	result, deleteErr := remover.invoker.Attempt(ctx, deleteKeychainCommand(keychainName))
	if deleteErr != nil {
		return deleteErr
	}
	if result.ExitCode != 0 {
		remover.loggingService.Info(logMessageKeychainNotFound,
			logging.String(logFieldKeychain, keychainName),
			logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
		)
		return nil
	}
	remover.loggingService.Info(logMessageKeychainRemoved, logging.String(logFieldKeychain, keychainName))
	return nil
}

func matchesKeychain(entry string, keychainName string) bool {
	if entry == keychainName {
		return true
	}
	base := filepath.Base(entry)
	for _, suffix := range keychainFileSuffixes {
		base = strings.TrimSuffix(base, suffix)
	}
	requested := filepath.Base(keychainName)
	for _, suffix := range keychainFileSuffixes {
		requested = strings.TrimSuffix(requested, suffix)
	}
	return base == requested
}
