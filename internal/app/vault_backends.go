package app

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/tyemirov/signkit/internal/credentials"
	"github.com/tyemirov/signkit/internal/failure"
)

const (
	vaultBackendFile      = "file"
	vaultBackendHashiCorp = "hashicorp"
	vaultBackendSystem    = "system"
)

// buildVault chains the configured backends in order.
func buildVault(configurationManager *viper.Viper) (credentials.Vault, error) {
	backends := configurationManager.GetStringSlice(configKeyVaultBackends)
	vaults := make([]credentials.Vault, 0, len(backends))
	for _, backend := range backends {
		switch strings.ToLower(strings.TrimSpace(backend)) {
		case "":
			continue
		case vaultBackendFile:
			vaultPath := strings.TrimSpace(configurationManager.GetString(configKeyVaultFilePath))
			if vaultPath == "" {
				return nil, failure.NewConfigurationError("%s is required for the %s vault backend", configKeyVaultFilePath, vaultBackendFile)
			}
			fileVault, err := credentials.LoadFileVault(vaultPath, strings.TrimSpace(configurationManager.GetString(configKeyVaultFileIdentity)))
			if err != nil {
				return nil, failure.WrapConfigurationError(err, "load %s vault backend", vaultBackendFile)
			}
			vaults = append(vaults, fileVault)
		case vaultBackendHashiCorp:
			hashiCorpVault, err := credentials.NewHashiCorpVault(credentials.HashiCorpConfig{
				Address: strings.TrimSpace(configurationManager.GetString(configKeyVaultHashiCorpAddress)),
				Token:   configurationManager.GetString(configKeyVaultHashiCorpToken),
				Mount:   configurationManager.GetString(configKeyVaultHashiCorpMount),
				Path:    configurationManager.GetString(configKeyVaultHashiCorpPath),
			})
			if err != nil {
				return nil, failure.WrapConfigurationError(err, "configure %s vault backend", vaultBackendHashiCorp)
			}
			vaults = append(vaults, hashiCorpVault)
		case vaultBackendSystem:
			vaults = append(vaults, credentials.NewSystemVault(configurationManager.GetString(configKeyVaultSystemService)))
		default:
			return nil, failure.NewConfigurationError("unknown vault backend %q", backend)
		}
	}
	if len(vaults) == 0 {
		return nil, failure.NewConfigurationError("no vault backend configured in %s", configKeyVaultBackends)
	}
	return credentials.NewChainVault(vaults...), nil
}

func namedKeychains(configurationManager *viper.Viper) ([]credentials.NamedKeychain, error) {
	var keychains []credentials.NamedKeychain
	if err := configurationManager.UnmarshalKey(configKeyKeychains, &keychains); err != nil {
		return nil, failure.WrapConfigurationError(err, "parse %s", configKeyKeychains)
	}
	return keychains, nil
}
