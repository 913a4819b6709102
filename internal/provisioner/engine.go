// Package provisioner runs one provisioning pass: it resolves the signing
// bundle, prepares a keychain, imports identities and installs profiles.
package provisioner

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/tyemirov/signkit/internal/credentials"
	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/expansion"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/keychain"
	"github.com/tyemirov/signkit/internal/nodefs"
	"github.com/tyemirov/signkit/internal/profiles"
	"github.com/tyemirov/signkit/internal/workdir"
	"github.com/tyemirov/signkit/pkg/logging"
)

// IntermediateCertificateName is the node home file imported into ephemeral keychains when present.
const IntermediateCertificateName = "AppleWWDRCA.cer"

const (
	logMessageProvisioned        = "provisioned signing keychain"
	logMessageProvisionFailed    = "provisioning failed"
	logMessageCertificateMissing = "intermediate certificate not found"
	logMessageCertificateSkipped = "could not locate intermediate certificate"

	logFieldKeychain    = "keychain"
	logFieldOrigin      = "origin"
	logFieldIdentities  = "identities"
	logFieldProfiles    = "profiles"
	logFieldCertificate = "certificate"
)

// VersionDetector reports the host product version.
type VersionDetector interface {
	Detect(ctx context.Context) (string, error)
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	Runner          execution.Runner
	FileSystem      nodefs.FileSystem
	Vault           credentials.Vault
	NamedKeychains  []credentials.NamedKeychain
	Expander        expansion.Expander
	VersionDetector VersionDetector
	LoggingService  *logging.Service
}

// Options describe one provisioning run.
type Options struct {
	Workspace     string
	JobName       string
	DebugPassword string
	Request       credentials.Request
}

// Engine provisions signing keychains.
type Engine struct {
	invoker         *execution.Invoker
	fileSystem      nodefs.FileSystem
	resolver        *credentials.Resolver
	expander        expansion.Expander
	versionDetector VersionDetector
	loggingService  *logging.Service
}

// NewEngine validates the dependencies and constructs an Engine.
func NewEngine(dependencies Dependencies) (*Engine, error) {
	if dependencies.Runner == nil {
		return nil, errors.New("provisioner requires a command runner")
	}
	if dependencies.FileSystem == nil {
		return nil, errors.New("provisioner requires a node filesystem")
	}
	if dependencies.Vault == nil {
		return nil, errors.New("provisioner requires a credential vault")
	}
	if dependencies.VersionDetector == nil {
		return nil, errors.New("provisioner requires a host version detector")
	}
	if dependencies.LoggingService == nil {
		return nil, errors.New("provisioner requires a logging service")
	}
	expander := dependencies.Expander
	if expander == nil {
		expander = expansion.Identity{}
	}
	return &Engine{
		invoker:         execution.NewInvoker(dependencies.Runner, dependencies.LoggingService),
		fileSystem:      dependencies.FileSystem,
		resolver:        credentials.NewResolver(dependencies.Vault, dependencies.NamedKeychains, expander),
		expander:        expander,
		versionDetector: dependencies.VersionDetector,
		loggingService:  dependencies.LoggingService,
	}, nil
}

// Provision prepares a keychain holding the bundle's identities and installs
// its provisioning profiles. The caller must Close the returned Session. On
// failure the work directory is already removed and, for existing keychains,
// the captured search path restored.
func (engine *Engine) Provision(ctx context.Context, options Options) (*Session, error) {
	session, err := engine.provision(ctx, options)
	if err != nil {
		err = normalizeCancellation(err)
		engine.loggingService.Error(logMessageProvisionFailed, err)
		return nil, err
	}
	return session, nil
}

func (engine *Engine) provision(ctx context.Context, options Options) (*Session, error) {
	if options.Workspace == "" {
		return nil, failure.NewConfigurationError("workspace is required")
	}
	if !options.Request.ImportIntoExistingKeychain && options.JobName == "" {
		return nil, failure.NewConfigurationError("job name is required for an ephemeral keychain")
	}
	resolution, err := engine.resolver.Resolve(ctx, options.Request)
	if err != nil {
		return nil, err
	}
	engine.loggingService.RegisterSecret(resolution.Identity.Password)

	lifecycle, err := engine.newLifecycle(ctx, resolution, options)
	if err != nil {
		return nil, err
	}
	runtime := lifecycle.Runtime()
	intent := newHostKeychainIntent(runtime)
	engine.loggingService.Info(logMessageHostIntent, intent.fields()...)

	if err := lifecycle.Prepare(ctx); err != nil {
		return nil, err
	}
	directory, err := workdir.Prepare(ctx, engine.fileSystem, options.Workspace, runtime.Password, resolution.Identity.Archive)
	if err != nil {
		lifecycle.Restore(ctx)
		return nil, err
	}
	session := &Session{lifecycle: lifecycle, directory: directory, intent: intent}
	if err := engine.populate(ctx, session, resolution.Identity); err != nil {
		if closeErr := session.Close(ctx); closeErr != nil {
			engine.loggingService.Warn(logMessageCloseFailed, closeErr)
		}
		return nil, err
	}
	engine.loggingService.Info(logMessageProvisioned,
		logging.String(logFieldKeychain, session.KeychainPath()),
		logging.String(logFieldOrigin, string(runtime.Origin)),
		logging.Int(logFieldIdentities, len(session.identities)),
		logging.Int(logFieldProfiles, len(session.profiles)),
	)
	return session, nil
}

func (engine *Engine) newLifecycle(ctx context.Context, resolution credentials.Resolution, options Options) (*keychain.Lifecycle, error) {
	if resolution.Keychain != nil {
		engine.loggingService.RegisterSecret(resolution.Keychain.Password)
		restorer := keychain.NewSearchPathRestorer(engine.invoker, engine.loggingService)
		return keychain.NewExistingLifecycle(engine.invoker, engine.loggingService, restorer, keychain.TrustAnchorStrategy{}, resolution.Keychain.Path, resolution.Keychain.Password), nil
	}
	hostVersion, err := engine.versionDetector.Detect(ctx)
	if err != nil {
		return nil, err
	}
	password := keychain.EphemeralPassword(engine.expander.Expand(options.DebugPassword))
	engine.loggingService.RegisterSecret(password)
	keychainPath := keychain.EphemeralKeychainName(options.JobName)
	return keychain.NewEphemeralLifecycle(engine.invoker, engine.loggingService, keychain.SelectStrategy(hostVersion), keychainPath, password), nil
}

func (engine *Engine) populate(ctx context.Context, session *Session, identity credentials.SigningIdentityBundle) error {
	lifecycle := session.lifecycle
	keychainPath := lifecycle.Runtime().Path
	diagnostics := keychain.NewDiagnostics(engine.invoker, engine.loggingService)
	importer := keychain.NewIdentityImporter(engine.invoker, engine.loggingService, lifecycle.Strategy())

	imported, err := importer.Import(ctx, session.directory, keychainPath, identity.Password)
	session.identities = imported
	if err != nil {
		return err
	}
	if err := diagnostics.ShowInfo(ctx, keychainPath); err != nil {
		return err
	}
	if err := lifecycle.Finalize(ctx); err != nil {
		return err
	}
	if lifecycle.Runtime().Origin == keychain.OriginEphemeral {
		if err := engine.importIntermediateCertificate(ctx, diagnostics, keychainPath); err != nil {
			return err
		}
	}
	if err := diagnostics.FindIdentities(ctx, keychainPath); err != nil {
		return err
	}
	installer := profiles.NewInstaller(engine.fileSystem, engine.loggingService)
	installed, err := installer.Install(ctx, session.directory)
	session.profiles = installed
	return err
}

func (engine *Engine) importIntermediateCertificate(ctx context.Context, diagnostics *keychain.Diagnostics, keychainPath string) error {
	homeDirectory, err := engine.fileSystem.HomeDirectory(ctx)
	if err != nil {
		if failure.IsCancelled(err) {
			return err
		}
		engine.loggingService.Warn(logMessageCertificateSkipped, err)
		return nil
	}
	certificatePath := filepath.Join(homeDirectory, IntermediateCertificateName)
	exists, err := engine.fileSystem.FileExists(certificatePath)
	if err != nil {
		engine.loggingService.Warn(logMessageCertificateSkipped, err, logging.String(logFieldCertificate, certificatePath))
		return nil
	}
	if !exists {
		engine.loggingService.Info(logMessageCertificateMissing, logging.String(logFieldCertificate, certificatePath))
		return nil
	}
	return diagnostics.ImportCertificate(ctx, certificatePath, keychainPath)
}

func normalizeCancellation(err error) error {
	if errors.Is(err, failure.ErrCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failure.Cancelled(err)
	}
	return err
}
