package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tyemirov/signkit/internal/failure"
)

func newRootCommand(resources *applicationResources) *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           defaultApplicationName,
		Short:         "Provision macOS keychains and code signing identities for builds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigurationFile(cmd); err != nil {
				return err
			}
			configuredResources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			if loggerErr := configuredResources.updateLogger(configuredResources.configurationManager.GetString(configKeyLoggingType)); loggerErr != nil {
				return failure.WrapConfigurationError(loggerErr, "configure logger")
			}
			return nil
		},
	}

	rootCommand.PersistentFlags().String(flagNameConfigFile, "", "Path to configuration file")
	rootCommand.PersistentFlags().String(flagNameLoggingType, resources.configurationManager.GetString(configKeyLoggingType), "Logging type (CONSOLE or JSON)")
	_ = resources.configurationManager.BindPFlag(configKeyLoggingType, rootCommand.PersistentFlags().Lookup(flagNameLoggingType))

	jobFlags := pflag.NewFlagSet("job", pflag.ContinueOnError)
	configureJobFlags(jobFlags, resources.configurationManager)

	provisionFlags := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	configureProvisionFlags(provisionFlags, resources.configurationManager)

	rootCommand.AddCommand(newImportCommand(jobFlags, provisionFlags))
	rootCommand.AddCommand(newRunCommand(jobFlags, provisionFlags))
	rootCommand.AddCommand(newCleanupCommand(jobFlags))
	rootCommand.AddCommand(newKeychainNameCommand(jobFlags))

	return rootCommand
}

func configureJobFlags(flagSet *pflag.FlagSet, configurationManager *viper.Viper) {
	flagSet.String(flagNameJob, configurationManager.GetString(configKeyProvisionJobName), "Full job name used to derive the ephemeral keychain name (defaults to $JOB_NAME)")
	_ = configurationManager.BindPFlag(configKeyProvisionJobName, flagSet.Lookup(flagNameJob))
}

func configureProvisionFlags(flagSet *pflag.FlagSet, configurationManager *viper.Viper) {
	flagSet.String(flagNameIdentity, configurationManager.GetString(configKeyProvisionIdentity), "Signing identity credential id")
	flagSet.Bool(flagNameExistingKeychain, configurationManager.GetBool(configKeyProvisionExistingKeychain), "Import into an existing keychain instead of creating one")
	flagSet.String(flagNameKeychainName, configurationManager.GetString(configKeyProvisionKeychainName), "Name of a configured keychain (legacy)")
	flagSet.String(flagNameKeychainID, configurationManager.GetString(configKeyProvisionKeychainID), "Keychain credential id")
	flagSet.String(flagNameKeychainPath, configurationManager.GetString(configKeyProvisionKeychainPath), "Path of an existing keychain")
	flagSet.String(flagNameKeychainPassword, "", "Password of the existing keychain at --keychain-path")
	flagSet.Bool(flagNamePromptKeychainPassword, false, "Read the --keychain-path password from the terminal")
	flagSet.String(flagNameWorkspace, configurationManager.GetString(configKeyProvisionWorkspace), "Workspace holding the transient bundle directory (defaults to $WORKSPACE)")
	flagSet.String(flagNameDebugPassword, "", "Fixed ephemeral keychain password for troubleshooting")
	flagSet.String(flagNameOSVersion, configurationManager.GetString(configKeyProvisionOSVersion), "Host product version override (for example 10.11)")
	_ = configurationManager.BindPFlag(configKeyProvisionIdentity, flagSet.Lookup(flagNameIdentity))
	_ = configurationManager.BindPFlag(configKeyProvisionExistingKeychain, flagSet.Lookup(flagNameExistingKeychain))
	_ = configurationManager.BindPFlag(configKeyProvisionKeychainName, flagSet.Lookup(flagNameKeychainName))
	_ = configurationManager.BindPFlag(configKeyProvisionKeychainID, flagSet.Lookup(flagNameKeychainID))
	_ = configurationManager.BindPFlag(configKeyProvisionKeychainPath, flagSet.Lookup(flagNameKeychainPath))
	_ = configurationManager.BindPFlag(configKeyProvisionKeychainPassword, flagSet.Lookup(flagNameKeychainPassword))
	_ = configurationManager.BindPFlag(configKeyProvisionWorkspace, flagSet.Lookup(flagNameWorkspace))
	_ = configurationManager.BindPFlag(configKeyProvisionDebugPassword, flagSet.Lookup(flagNameDebugPassword))
	_ = configurationManager.BindPFlag(configKeyProvisionOSVersion, flagSet.Lookup(flagNameOSVersion))
}

func loadConfigurationFile(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	configurationManager := resources.configurationManager
	configFilePath, flagErr := cmd.Flags().GetString(flagNameConfigFile)
	if flagErr != nil {
		return fmt.Errorf("read config flag: %w", flagErr)
	}
	if configFilePath != "" {
		configurationManager.SetConfigFile(configFilePath)
	} else {
		configurationManager.AddConfigPath(resources.defaultConfigDirPath)
		configurationManager.SetConfigName(defaultConfigFileName)
		configurationManager.SetConfigType(defaultConfigFileType)
	}
	if readErr := configurationManager.ReadInConfig(); readErr != nil {
		if _, notFound := readErr.(viper.ConfigFileNotFoundError); !notFound {
			return failure.WrapConfigurationError(readErr, "read configuration")
		}
	}
	return nil
}
