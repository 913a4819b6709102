package keychain

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/pkg/logging"
)

// IdentityExtension is the extension of private key containers in a bundle.
const IdentityExtension = ".p12"

const (
	logMessageImportingIdentity = "importing signing identity"
	logMessageNoIdentities      = "signing bundle contains no identities"

	logFieldIdentityFile = "identity_file"
)

// FileLister lists the files of an extracted bundle by extension.
type FileLister interface {
	List(extension string) ([]string, error)
}

// IdentityImporter imports every private key container of a bundle into a keychain.
type IdentityImporter struct {
	invoker        *execution.Invoker
	loggingService *logging.Service
	strategy       AccessStrategy
}

// NewIdentityImporter constructs an IdentityImporter.
func NewIdentityImporter(invoker *execution.Invoker, loggingService *logging.Service, strategy AccessStrategy) *IdentityImporter {
	return &IdentityImporter{invoker: invoker, loggingService: loggingService, strategy: strategy}
}

// Import imports the bundle's identities into keychainPath in lexical order and
// returns the imported files. It stops at the first failure without undoing
// earlier imports.
func (importer *IdentityImporter) Import(ctx context.Context, bundle FileLister, keychainPath string, bundlePassword string) ([]string, error) {
	identityFiles, listErr := bundle.List(IdentityExtension)
	if listErr != nil {
		return nil, listErr
	}
	if len(identityFiles) == 0 {
		importer.loggingService.Info(logMessageNoIdentities, logging.String(logFieldKeychain, keychainPath))
		return nil, nil
	}
	imported := make([]string, 0, len(identityFiles))
	for _, identityFile := range identityFiles {
		importer.loggingService.Info(logMessageImportingIdentity,
			logging.String(logFieldIdentityFile, filepath.Base(identityFile)),
			logging.String(logFieldKeychain, keychainPath),
			logging.String(logFieldStrategy, importer.strategy.Name()),
		)
		commandLine := importIdentityCommand(identityFile, keychainPath, bundlePassword, importer.strategy)
		failureMessage := fmt.Sprintf("failed to import identity %s", filepath.Base(identityFile))
		if _, err := importer.invoker.Require(ctx, commandLine, failureMessage); err != nil {
			return imported, err
		}
		imported = append(imported, identityFile)
	}
	return imported, nil
}
