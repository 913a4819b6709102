package keychain

import "github.com/tyemirov/signkit/internal/execution"

const (
	securityExecutable = "security"

	// NoDefaultKeychainSentinel is printed by security when the user has no default keychain.
	NoDefaultKeychainSentinel = "A default keychain could not be found."

	userDomain = "user"
)

func securityCommand(subcommand string, arguments ...string) *execution.CommandLine {
	return execution.NewCommandLine(securityExecutable, subcommand).Add(arguments...)
}

func deleteKeychainCommand(keychainPath string) *execution.CommandLine {
	return securityCommand("delete-keychain", keychainPath)
}

func createKeychainCommand(keychainPath string, password string) *execution.CommandLine {
	return securityCommand("create-keychain", "-p").AddMasked(password).Add(keychainPath)
}

func unlockKeychainCommand(keychainPath string, password string) *execution.CommandLine {
	if password == "" {
		return securityCommand("unlock-keychain", keychainPath)
	}
	return securityCommand("unlock-keychain", "-p").AddMasked(password).Add(keychainPath)
}

func readSearchListCommand() *execution.CommandLine {
	return securityCommand("list-keychains", "-d", userDomain)
}

func setSearchListCommand(keychainPaths ...string) *execution.CommandLine {
	return securityCommand("list-keychains", "-d", userDomain, "-s").Add(keychainPaths...)
}

func probeDefaultKeychainCommand() *execution.CommandLine {
	return securityCommand("default-keychain")
}

func readDefaultKeychainCommand() *execution.CommandLine {
	return securityCommand("default-keychain", "-d", userDomain)
}

func setDefaultKeychainCommand(keychainPath string) *execution.CommandLine {
	return securityCommand("default-keychain", "-d", userDomain, "-s", keychainPath)
}

func setPartitionListCommand(keychainPath string, password string) *execution.CommandLine {
	return securityCommand("set-key-partition-list", "-S", partitionListServices, "-s", "-k").AddMasked(password).Add(keychainPath)
}

func importIdentityCommand(identityPath string, keychainPath string, bundlePassword string, strategy AccessStrategy) *execution.CommandLine {
	return securityCommand("import", identityPath, "-k", keychainPath, "-P").AddMasked(bundlePassword).Add(strategy.ImportArguments()...)
}

func importCertificateCommand(certificatePath string, keychainPath string) *execution.CommandLine {
	return securityCommand("import", certificatePath, "-k", keychainPath)
}

func showKeychainInfoCommand(keychainPath string) *execution.CommandLine {
	return securityCommand("show-keychain-info", keychainPath)
}

func findIdentityCommand(keychainPath string) *execution.CommandLine {
	return securityCommand("find-identity", "-p", "codesigning", "-v", keychainPath)
}
