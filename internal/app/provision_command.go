package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/signkit/internal/credentials"
	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/expansion"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/hostversion"
	"github.com/tyemirov/signkit/internal/provisioner"
)

const failureMessageWrappedCommand = "signing command failed"

// ProvisionConfiguration is the validated input of the import and run commands.
type ProvisionConfiguration struct {
	Options        provisioner.Options
	OSVersion      string
	NamedKeychains []credentials.NamedKeychain
}

func newImportCommand(jobFlags *pflag.FlagSet, provisionFlags *pflag.FlagSet) *cobra.Command {
	importCommand := &cobra.Command{
		Use:   "import",
		Short: "Import a signing identity into a keychain and install its provisioning profiles",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareProvisionConfiguration(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd)
		},
	}
	importCommand.Flags().AddFlagSet(jobFlags)
	importCommand.Flags().AddFlagSet(provisionFlags)
	return importCommand
}

func newRunCommand(jobFlags *pflag.FlagSet, provisionFlags *pflag.FlagSet) *cobra.Command {
	runCommand := &cobra.Command{
		Use:   "run -- command [arguments...]",
		Short: "Provision a keychain, run a signing command with it, then clean up",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareProvisionConfiguration(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrapped(cmd, args)
		},
	}
	runCommand.Flags().AddFlagSet(jobFlags)
	runCommand.Flags().AddFlagSet(provisionFlags)
	return runCommand
}

func prepareProvisionConfiguration(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	configurationManager := resources.configurationManager

	workspace := strings.TrimSpace(configurationManager.GetString(configKeyProvisionWorkspace))
	if workspace == "" {
		workingDirectory, workingDirectoryErr := os.Getwd()
		if workingDirectoryErr != nil {
			return fmt.Errorf("resolve working directory: %w", workingDirectoryErr)
		}
		workspace = workingDirectory
	}
	absoluteWorkspace, absoluteErr := filepath.Abs(workspace)
	if absoluteErr != nil {
		return fmt.Errorf("resolve workspace path: %w", absoluteErr)
	}

	request := credentials.Request{
		IdentityID:                 strings.TrimSpace(configurationManager.GetString(configKeyProvisionIdentity)),
		ImportIntoExistingKeychain: configurationManager.GetBool(configKeyProvisionExistingKeychain),
		KeychainName:               strings.TrimSpace(configurationManager.GetString(configKeyProvisionKeychainName)),
		KeychainID:                 strings.TrimSpace(configurationManager.GetString(configKeyProvisionKeychainID)),
		KeychainPath:               strings.TrimSpace(configurationManager.GetString(configKeyProvisionKeychainPath)),
		KeychainPassword:           configurationManager.GetString(configKeyProvisionKeychainPassword),
	}
	promptPassword, flagErr := cmd.Flags().GetBool(flagNamePromptKeychainPassword)
	if flagErr != nil {
		return fmt.Errorf("read %s flag: %w", flagNamePromptKeychainPassword, flagErr)
	}
	if promptPassword {
		if !request.ImportIntoExistingKeychain {
			return failure.NewConfigurationError("--%s requires --%s", flagNamePromptKeychainPassword, flagNameExistingKeychain)
		}
		password, readErr := resources.readPassword(promptKeychainPassword)
		if readErr != nil {
			return readErr
		}
		request.KeychainPassword = password
	}

	keychains, keychainsErr := namedKeychains(configurationManager)
	if keychainsErr != nil {
		return keychainsErr
	}

	provisionConfiguration := ProvisionConfiguration{
		Options: provisioner.Options{
			Workspace:     absoluteWorkspace,
			JobName:       strings.TrimSpace(configurationManager.GetString(configKeyProvisionJobName)),
			DebugPassword: configurationManager.GetString(configKeyProvisionDebugPassword),
			Request:       request,
		},
		OSVersion:      strings.TrimSpace(configurationManager.GetString(configKeyProvisionOSVersion)),
		NamedKeychains: keychains,
	}
	cmd.SetContext(context.WithValue(cmd.Context(), contextKeyProvisionConfiguration, provisionConfiguration))
	return nil
}

func getProvisionConfiguration(cmd *cobra.Command) (ProvisionConfiguration, error) {
	configurationValue := cmd.Context().Value(contextKeyProvisionConfiguration)
	if configurationValue == nil {
		return ProvisionConfiguration{}, errors.New("provision configuration not initialized")
	}
	provisionConfiguration, ok := configurationValue.(ProvisionConfiguration)
	if !ok {
		return ProvisionConfiguration{}, errors.New("provision configuration has unexpected type")
	}
	return provisionConfiguration, nil
}

func newProvisioningEngine(resources *applicationResources, provisionConfiguration ProvisionConfiguration) (*provisioner.Engine, error) {
	vault, err := buildVault(resources.configurationManager)
	if err != nil {
		return nil, err
	}
	invoker := execution.NewInvoker(resources.runner, resources.loggingService)
	return provisioner.NewEngine(provisioner.Dependencies{
		Runner:         resources.runner,
		FileSystem:     resources.fileSystem,
		Vault:          vault,
		NamedKeychains: provisionConfiguration.NamedKeychains,
		Expander: expansion.NewEnvironmentExpander(map[string]string{
			environmentVariableWorkspace: provisionConfiguration.Options.Workspace,
			environmentVariableJobName:   provisionConfiguration.Options.JobName,
		}),
		VersionDetector: hostversion.NewDetector(provisionConfiguration.OSVersion, invoker, resources.loggingService),
		LoggingService:  resources.loggingService,
	})
}

func provisionSession(ctx context.Context, cmd *cobra.Command, resources *applicationResources) (*provisioner.Session, error) {
	provisionConfiguration, err := getProvisionConfiguration(cmd)
	if err != nil {
		return nil, err
	}
	engine, err := newProvisioningEngine(resources, provisionConfiguration)
	if err != nil {
		return nil, err
	}
	return engine.Provision(ctx, provisionConfiguration.Options)
}

func runImport(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	signalContext, cancel := createSignalContext(cmd.Context(), resources.loggingService)
	defer cancel()

	session, err := provisionSession(signalContext, cmd, resources)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), session.KeychainPath())
	return session.Close(signalContext)
}

func runWrapped(cmd *cobra.Command, args []string) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	signalContext, cancel := createSignalContext(cmd.Context(), resources.loggingService)
	defer cancel()

	session, err := provisionSession(signalContext, cmd, resources)
	if err != nil {
		return err
	}
	invoker := execution.NewInvoker(resources.runner, resources.loggingService).
		WithEnvironment([]string{KeychainPathEnvironmentVariable + "=" + session.KeychainPath()})
	result, runErr := invoker.Require(signalContext, execution.NewCommandLine(args[0], args[1:]...), failureMessageWrappedCommand)
	if result.Output != "" {
		_, _ = io.WriteString(cmd.OutOrStdout(), result.Output)
	}
	return errors.Join(runErr, session.Close(signalContext))
}
