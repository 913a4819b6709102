package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
)

const (
	hashiCorpArchiveKey  = "archive"
	hashiCorpPasswordKey = "password"
	hashiCorpPathKey     = "path"
	hashiCorpDescription = "description"
)

// HashiCorpConfig locates the KV version 2 secrets holding credentials.
// Credentials live at <Mount>/data/<Path>/<kind>/<id>.
type HashiCorpConfig struct {
	Address string
	Token   string
	Mount   string
	Path    string
}

// HashiCorpVault reads credentials from a HashiCorp Vault KV version 2 engine.
type HashiCorpVault struct {
	client    *api.Client
	mountPath string
	dataPath  string
}

// NewHashiCorpVault constructs a HashiCorpVault client.
func NewHashiCorpVault(configuration HashiCorpConfig) (*HashiCorpVault, error) {
	if strings.TrimSpace(configuration.Address) == "" {
		return nil, errors.New("vault address is required")
	}
	clientConfig := api.DefaultConfig()
	clientConfig.Address = configuration.Address
	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if configuration.Token != "" {
		client.SetToken(configuration.Token)
	}
	mountPath := strings.Trim(configuration.Mount, "/")
	if mountPath == "" {
		mountPath = "secret"
	}
	return &HashiCorpVault{
		client:    client,
		mountPath: mountPath,
		dataPath:  strings.Trim(configuration.Path, "/"),
	}, nil
}

func (vault *HashiCorpVault) secretPath(kind Kind, id string) string {
	segments := []string{vault.mountPath, "data"}
	if vault.dataPath != "" {
		segments = append(segments, vault.dataPath)
	}
	segments = append(segments, string(kind), id)
	return strings.Join(segments, "/")
}

// LookupByID reads the secret for kind and id.
func (vault *HashiCorpVault) LookupByID(ctx context.Context, kind Kind, id string) (Record, bool, error) {
	secretPath := vault.secretPath(kind, id)
	secret, err := vault.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return Record{}, false, fmt.Errorf("read vault secret %s: %w", secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return Record{}, false, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return Record{}, false, nil
	}

	record := Record{ID: id, Kind: kind}
	if record.Password, err = stringValue(data, hashiCorpPasswordKey); err != nil {
		return Record{}, false, fmt.Errorf("vault secret %s: %w", secretPath, err)
	}
	if record.Description, err = stringValue(data, hashiCorpDescription); err != nil {
		return Record{}, false, fmt.Errorf("vault secret %s: %w", secretPath, err)
	}
	switch kind {
	case KindSigningIdentity:
		encodedArchive, valueErr := stringValue(data, hashiCorpArchiveKey)
		if valueErr != nil {
			return Record{}, false, fmt.Errorf("vault secret %s: %w", secretPath, valueErr)
		}
		archive, decodeErr := base64.StdEncoding.DecodeString(encodedArchive)
		if decodeErr != nil {
			return Record{}, false, fmt.Errorf("vault secret %s: decode archive: %w", secretPath, decodeErr)
		}
		record.Archive = archive
	case KindKeychain:
		if record.KeychainPath, err = stringValue(data, hashiCorpPathKey); err != nil {
			return Record{}, false, fmt.Errorf("vault secret %s: %w", secretPath, err)
		}
	}
	return record, true, nil
}

func stringValue(data map[string]interface{}, key string) (string, error) {
	value, exists := data[key]
	if !exists || value == nil {
		return "", nil
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string", key)
	}
	return text, nil
}
