package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/keychain"
)

func newCleanupCommand(jobFlags *pflag.FlagSet) *cobra.Command {
	cleanupCommand := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the ephemeral keychain of a job and drop it from the search list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			keychainName, err := ephemeralKeychainName(resources)
			if err != nil {
				return err
			}
			signalContext, cancel := createSignalContext(cmd.Context(), resources.loggingService)
			defer cancel()
			remover := keychain.NewRemover(execution.NewInvoker(resources.runner, resources.loggingService), resources.loggingService)
			return remover.Remove(signalContext, keychainName)
		},
	}
	cleanupCommand.Flags().AddFlagSet(jobFlags)
	return cleanupCommand
}

func newKeychainNameCommand(jobFlags *pflag.FlagSet) *cobra.Command {
	keychainNameCommand := &cobra.Command{
		Use:   "keychain-name",
		Short: "Print the ephemeral keychain name of a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			keychainName, err := ephemeralKeychainName(resources)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keychainName)
			return nil
		},
	}
	keychainNameCommand.Flags().AddFlagSet(jobFlags)
	return keychainNameCommand
}

func ephemeralKeychainName(resources *applicationResources) (string, error) {
	jobName := strings.TrimSpace(resources.configurationManager.GetString(configKeyProvisionJobName))
	if jobName == "" {
		return "", failure.NewConfigurationError("--%s or $%s is required", flagNameJob, environmentVariableJobName)
	}
	return keychain.EphemeralKeychainName(jobName), nil
}
