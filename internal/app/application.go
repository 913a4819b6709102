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
	"github.com/spf13/viper"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/nodefs"
	"github.com/tyemirov/signkit/pkg/logging"
)

type contextKey string

const (
	contextKeyApplicationResources   contextKey = "application-resources"
	contextKeyProvisionConfiguration contextKey = "provision-configuration"

	defaultConfigFileName  = "config"
	defaultConfigFileType  = "yaml"
	defaultApplicationName = "signkit"

	// KeychainPathEnvironmentVariable carries the provisioned keychain into wrapped commands.
	KeychainPathEnvironmentVariable = "SIGNKIT_KEYCHAIN_PATH"

	environmentVariableWorkspace = "WORKSPACE"
	environmentVariableJobName   = "JOB_NAME"

	flagNameConfigFile             = "config"
	flagNameLoggingType            = "logging-type"
	flagNameIdentity               = "identity"
	flagNameExistingKeychain       = "existing-keychain"
	flagNameKeychainName           = "keychain-name"
	flagNameKeychainID             = "keychain-id"
	flagNameKeychainPath           = "keychain-path"
	flagNameKeychainPassword       = "keychain-password"
	flagNamePromptKeychainPassword = "prompt-keychain-password"
	flagNameJob                    = "job"
	flagNameWorkspace              = "workspace"
	flagNameDebugPassword          = "debug-password"
	flagNameOSVersion              = "os-version"

	configKeyLoggingType               = "logging.type"
	configKeyProvisionWorkspace        = "provision.workspace"
	configKeyProvisionJobName          = "provision.job_name"
	configKeyProvisionOSVersion        = "provision.os_version"
	configKeyProvisionDebugPassword    = "provision.debug_password"
	configKeyProvisionIdentity         = "provision.identity"
	configKeyProvisionExistingKeychain = "provision.existing_keychain"
	configKeyProvisionKeychainName     = "provision.keychain_name"
	configKeyProvisionKeychainID       = "provision.keychain_id"
	configKeyProvisionKeychainPath     = "provision.keychain_path"
	configKeyProvisionKeychainPassword = "provision.keychain_password"
	configKeyVaultBackends             = "vault.backends"
	configKeyVaultFilePath             = "vault.file.path"
	configKeyVaultFileIdentity         = "vault.file.identity_file"
	configKeyVaultHashiCorpAddress     = "vault.hashicorp.address"
	configKeyVaultHashiCorpToken       = "vault.hashicorp.token"
	configKeyVaultHashiCorpMount       = "vault.hashicorp.mount"
	configKeyVaultHashiCorpPath        = "vault.hashicorp.path"
	configKeyVaultSystemService        = "vault.system.service"
	configKeyKeychains                 = "keychains"

	exitCodeSuccess       = 0
	exitCodeFailure       = 1
	exitCodeConfiguration = 2
	exitCodeCancelled     = 130

	logMessageFailedInitializeLogger = "failed to initialize logger"
	logMessageResolveUserConfigDir   = "resolve user config directory"
	logMessageCommandExecutionFailed = "command execution failed"
)

type applicationResources struct {
	configurationManager *viper.Viper
	loggingService       *logging.Service
	defaultConfigDirPath string
	runner               execution.Runner
	fileSystem           nodefs.FileSystem
	readPassword         passwordReader
	outputWriter         io.Writer
}

func (resources *applicationResources) updateLogger(loggingType string) error {
	normalizedType, err := logging.NormalizeType(loggingType)
	if err != nil {
		return err
	}
	if resources.loggingService != nil && resources.loggingService.Type() == normalizedType {
		return nil
	}
	service, err := logging.NewService(normalizedType)
	if err != nil {
		return err
	}
	if resources.loggingService != nil {
		_ = resources.loggingService.Sync()
	}
	resources.loggingService = service
	return nil
}

// Execute runs the CLI using the provided context and arguments, returning an exit code.
func Execute(ctx context.Context, arguments []string) int {
	initialService, err := logging.NewService(logging.TypeConsole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", logMessageFailedInitializeLogger, err)
		return exitCodeFailure
	}
	userConfigDir, userConfigErr := os.UserConfigDir()
	if userConfigErr != nil {
		initialService.Error(logMessageResolveUserConfigDir, userConfigErr)
		return exitCodeFailure
	}
	resources := &applicationResources{
		configurationManager: newConfigurationManager(),
		loggingService:       initialService,
		defaultConfigDirPath: filepath.Join(userConfigDir, defaultApplicationName),
		runner:               execution.NewExecutableRunner(),
		fileSystem:           nodefs.NewLocalFileSystem(),
		readPassword:         readTerminalPassword,
		outputWriter:         os.Stdout,
	}
	if err := resources.updateLogger(resources.configurationManager.GetString(configKeyLoggingType)); err != nil {
		resources.loggingService = initialService
		resources.loggingService.Error(logMessageFailedInitializeLogger, err)
		return exitCodeConfiguration
	}
	return executeWithResources(ctx, resources, arguments)
}

func executeWithResources(ctx context.Context, resources *applicationResources, arguments []string) int {
	defer func() {
		if resources.loggingService != nil {
			_ = resources.loggingService.Sync()
		}
	}()

	rootCommand := newRootCommand(resources)
	baseContext := context.WithValue(ctx, contextKeyApplicationResources, resources)
	rootCommand.SetContext(baseContext)
	rootCommand.SetArgs(arguments)
	rootCommand.SetOut(resources.outputWriter)

	if executionErr := rootCommand.Execute(); executionErr != nil {
		resources.loggingService.Error(logMessageCommandExecutionFailed, executionErr)
		return exitCode(executionErr)
	}
	return exitCodeSuccess
}

func newConfigurationManager() *viper.Viper {
	configurationManager := viper.New()
	configurationManager.SetEnvPrefix(strings.ToUpper(defaultApplicationName))
	configurationManager.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configurationManager.AutomaticEnv()

	configurationManager.SetDefault(configKeyLoggingType, logging.TypeConsole)
	configurationManager.SetDefault(configKeyProvisionWorkspace, os.Getenv(environmentVariableWorkspace))
	configurationManager.SetDefault(configKeyProvisionJobName, os.Getenv(environmentVariableJobName))
	configurationManager.SetDefault(configKeyProvisionOSVersion, "")
	configurationManager.SetDefault(configKeyProvisionDebugPassword, "")
	configurationManager.SetDefault(configKeyProvisionIdentity, "")
	configurationManager.SetDefault(configKeyProvisionExistingKeychain, false)
	configurationManager.SetDefault(configKeyProvisionKeychainName, "")
	configurationManager.SetDefault(configKeyProvisionKeychainID, "")
	configurationManager.SetDefault(configKeyProvisionKeychainPath, "")
	configurationManager.SetDefault(configKeyProvisionKeychainPassword, "")
	configurationManager.SetDefault(configKeyVaultBackends, []string{vaultBackendFile})
	configurationManager.SetDefault(configKeyVaultFilePath, "")
	configurationManager.SetDefault(configKeyVaultFileIdentity, "")
	configurationManager.SetDefault(configKeyVaultHashiCorpAddress, "")
	configurationManager.SetDefault(configKeyVaultHashiCorpToken, "")
	configurationManager.SetDefault(configKeyVaultHashiCorpMount, "secret")
	configurationManager.SetDefault(configKeyVaultHashiCorpPath, defaultApplicationName)
	configurationManager.SetDefault(configKeyVaultSystemService, defaultApplicationName)
	return configurationManager
}

func exitCode(err error) int {
	switch {
	case failure.IsCancelled(err):
		return exitCodeCancelled
	case failure.IsConfiguration(err):
		return exitCodeConfiguration
	default:
		return exitCodeFailure
	}
}

func getApplicationResources(cmd *cobra.Command) (*applicationResources, error) {
	resourceValue := cmd.Context().Value(contextKeyApplicationResources)
	if resourceValue == nil {
		return nil, errors.New("application resources not configured")
	}
	resources, ok := resourceValue.(*applicationResources)
	if !ok {
		return nil, errors.New("invalid application resources type")
	}
	return resources, nil
}
