package keychain

import (
	"context"
	"strings"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	logMessageKeychainInfo          = "keychain info"
	logMessageSigningIdentities     = "code signing identities"
	logMessageFindIdentityFailed    = "failed to list code signing identities"
	logMessageCertificateImported   = "imported intermediate certificate"
	logMessageCertificateNotApplied = "could not import intermediate certificate"

	logFieldCertificate = "certificate"
)

// Diagnostics runs informational and best-effort keychain commands.
type Diagnostics struct {
	invoker        *execution.Invoker
	loggingService *logging.Service
}

// NewDiagnostics constructs Diagnostics.
func NewDiagnostics(invoker *execution.Invoker, loggingService *logging.Service) *Diagnostics {
	return &Diagnostics{invoker: invoker, loggingService: loggingService}
}

// ShowInfo logs the keychain settings and fails when they cannot be read.
func (diagnostics *Diagnostics) ShowInfo(ctx context.Context, keychainPath string) error {
	result, err := diagnostics.invoker.Require(ctx, showKeychainInfoCommand(keychainPath), "failed to show keychain info")
	if err != nil {
		return err
	}
	diagnostics.loggingService.Info(logMessageKeychainInfo,
		logging.String(logFieldKeychain, keychainPath),
		logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
	)
	return nil
}

// FindIdentities logs the valid code signing identities of the keychain.
// Only cancellation is returned.
func (diagnostics *Diagnostics) FindIdentities(ctx context.Context, keychainPath string) error {
	result, err := diagnostics.invoker.Attempt(ctx, findIdentityCommand(keychainPath))
	if err != nil {
		if failure.IsCancelled(err) {
			return err
		}
		diagnostics.loggingService.Warn(logMessageFindIdentityFailed, err, logging.String(logFieldKeychain, keychainPath))
		return nil
	}
	if result.ExitCode != 0 {
		diagnostics.loggingService.Warn(logMessageFindIdentityFailed, nil,
			logging.String(logFieldKeychain, keychainPath),
			logging.Int(logFieldExitCode, result.ExitCode),
			logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
		)
		return nil
	}
	diagnostics.loggingService.Info(logMessageSigningIdentities,
		logging.String(logFieldKeychain, keychainPath),
		logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
	)
	return nil
}

// ImportCertificate imports a certificate into the keychain, logging the
// outcome. Only cancellation is returned.
func (diagnostics *Diagnostics) ImportCertificate(ctx context.Context, certificatePath string, keychainPath string) error {
	result, err := diagnostics.invoker.Attempt(ctx, importCertificateCommand(certificatePath, keychainPath))
	if err != nil {
		if failure.IsCancelled(err) {
			return err
		}
		diagnostics.loggingService.Warn(logMessageCertificateNotApplied, err, logging.String(logFieldCertificate, certificatePath))
		return nil
	}
	message := logMessageCertificateImported
	if result.ExitCode != 0 {
		message = logMessageCertificateNotApplied
	}
	diagnostics.loggingService.Info(message,
		logging.String(logFieldCertificate, certificatePath),
		logging.Int(logFieldExitCode, result.ExitCode),
		logging.String(logFieldOutput, strings.TrimSpace(result.Output)),
	)
	return nil
}
