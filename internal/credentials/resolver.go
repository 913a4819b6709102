package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/tyemirov/signkit/internal/expansion"
	"github.com/tyemirov/signkit/internal/failure"
)

// KeychainSource names where an existing keychain selection came from.
type KeychainSource string

const (
	// SourceLegacyName selects a keychain from the configured keychains list by name.
	SourceLegacyName KeychainSource = "legacy-name"
	// SourceCredentialID selects a keychain credential from the vault by id.
	SourceCredentialID KeychainSource = "credential-id"
	// SourceInline uses a path and password supplied directly.
	SourceInline KeychainSource = "inline"
)

// SigningIdentityBundle is the archive of identities and profiles to install.
type SigningIdentityBundle struct {
	ID       string
	Archive  []byte
	Password string
}

// KeychainConfig selects an existing keychain. Reference holds the name or id
// the operator used; it is empty for inline selections.
type KeychainConfig struct {
	Source    KeychainSource
	Reference string
	Path      string
	Password  string
}

// NamedKeychain is an entry of the configured keychains list.
type NamedKeychain struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Path     string `mapstructure:"path" yaml:"path"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Request carries the operator's unexpanded credential selection.
type Request struct {
	IdentityID                 string
	ImportIntoExistingKeychain bool
	KeychainName               string
	KeychainID                 string
	KeychainPath               string
	KeychainPassword           string
}

// Resolution is the outcome of Resolve. Keychain is nil when an ephemeral keychain is wanted.
type Resolution struct {
	Identity SigningIdentityBundle
	Keychain *KeychainConfig
}

// Resolver turns a Request into concrete credentials without running any command.
type Resolver struct {
	vault          Vault
	namedKeychains []NamedKeychain
	expander       expansion.Expander
}

// NewResolver constructs a Resolver.
func NewResolver(vault Vault, namedKeychains []NamedKeychain, expander expansion.Expander) *Resolver {
	if expander == nil {
		expander = expansion.Identity{}
	}
	return &Resolver{
		vault:          vault,
		namedKeychains: append([]NamedKeychain{}, namedKeychains...),
		expander:       expander,
	}
}

// Resolve looks up the signing identity and, when requested, the existing keychain.
// Keychain sources are tried as name, then id, then inline path and password; a miss moves on to the next.
func (resolver *Resolver) Resolve(ctx context.Context, request Request) (Resolution, error) {
	if cancelledErr := failure.FromContext(ctx); cancelledErr != nil {
		return Resolution{}, cancelledErr
	}
	identity, identityErr := resolver.resolveIdentity(ctx, resolver.expander.Expand(request.IdentityID))
	if identityErr != nil {
		return Resolution{}, identityErr
	}
	resolution := Resolution{Identity: identity}
	if !request.ImportIntoExistingKeychain {
		return resolution, nil
	}
	keychain, keychainErr := resolver.resolveKeychain(ctx, request)
	if keychainErr != nil {
		return Resolution{}, keychainErr
	}
	resolution.Keychain = keychain
	return resolution, nil
}

func (resolver *Resolver) resolveIdentity(ctx context.Context, identityID string) (SigningIdentityBundle, error) {
	if identityID == "" {
		return SigningIdentityBundle{}, failure.NewConfigurationError("signing identity id is required")
	}
	record, found, err := resolver.vault.LookupByID(ctx, KindSigningIdentity, identityID)
	if err != nil {
		return SigningIdentityBundle{}, lookupError(ctx, err, "look up signing identity %s", identityID)
	}
	if !found {
		return SigningIdentityBundle{}, failure.NewConfigurationError("no signing identity found with id %s", identityID)
	}
	if len(record.Archive) == 0 {
		return SigningIdentityBundle{}, failure.NewConfigurationError("signing identity %s has an empty archive", identityID)
	}
	return SigningIdentityBundle{ID: identityID, Archive: record.Archive, Password: record.Password}, nil
}

func (resolver *Resolver) resolveKeychain(ctx context.Context, request Request) (*KeychainConfig, error) {
	var unresolved []string

	if name := resolver.expander.Expand(request.KeychainName); name != "" {
		for _, namedKeychain := range resolver.namedKeychains {
			if namedKeychain.Name == name {
				return &KeychainConfig{
					Source:    SourceLegacyName,
					Reference: name,
					Path:      resolver.expander.Expand(namedKeychain.Path),
					Password:  resolver.expander.Expand(namedKeychain.Password),
				}, nil
			}
		}
		unresolved = append(unresolved, fmt.Sprintf("no configured keychain named %s", name))
	}

	if keychainID := resolver.expander.Expand(request.KeychainID); keychainID != "" {
		record, found, err := resolver.vault.LookupByID(ctx, KindKeychain, keychainID)
		switch {
		case err != nil:
			return nil, lookupError(ctx, err, "look up keychain credential %s", keychainID)
		case !found:
			unresolved = append(unresolved, fmt.Sprintf("no keychain credential found with id %s", keychainID))
		case record.KeychainPath == "":
			unresolved = append(unresolved, fmt.Sprintf("keychain credential %s has no keychain path", keychainID))
		default:
			return &KeychainConfig{
				Source:    SourceCredentialID,
				Reference: keychainID,
				Path:      resolver.expander.Expand(record.KeychainPath),
				Password:  resolver.expander.Expand(record.Password),
			}, nil
		}
	}

	keychainPath := resolver.expander.Expand(request.KeychainPath)
	keychainPassword := resolver.expander.Expand(request.KeychainPassword)
	switch {
	case keychainPath != "" && keychainPassword != "":
		return &KeychainConfig{Source: SourceInline, Path: keychainPath, Password: keychainPassword}, nil
	case keychainPath != "":
		return nil, failure.NewConfigurationError("keychain password is required for keychain %s", keychainPath)
	case keychainPassword != "":
		return nil, failure.NewConfigurationError("keychain path is required when a keychain password is given")
	case len(unresolved) > 0:
		return nil, failure.NewConfigurationError("existing keychain could not be resolved: %s", strings.Join(unresolved, "; "))
	}
	return nil, failure.NewConfigurationError("an existing keychain was requested but no keychain name, credential id or path was given")
}

func lookupError(ctx context.Context, err error, format string, arguments ...any) error {
	if cancelledErr := failure.FromContext(ctx); cancelledErr != nil {
		return cancelledErr
	}
	return fmt.Errorf(format+": %w", append(arguments, err)...)
}
