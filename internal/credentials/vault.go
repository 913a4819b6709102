// Package credentials resolves signing identities and keychain selections from credential vaults.
package credentials

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Kind distinguishes the credential types stored in a vault.
type Kind string

const (
	// KindSigningIdentity is a bundle archive of .p12 identities and provisioning profiles.
	KindSigningIdentity Kind = "signing-identity"
	// KindKeychain is the path and password of a keychain that already exists on the node.
	KindKeychain Kind = "keychain"
)

// Record is a credential as stored by a vault. Archive is set for signing
// identities, KeychainPath for keychains; Password is set for both.
type Record struct {
	ID           string
	Kind         Kind
	Description  string
	Archive      []byte
	Password     string
	KeychainPath string
}

// Vault looks up credentials by kind and identifier. found is false when the
// vault has no such credential; err is reserved for backend failures.
type Vault interface {
	LookupByID(ctx context.Context, kind Kind, id string) (record Record, found bool, err error)
}

type recordKey struct {
	kind Kind
	id   string
}

// MemoryVault holds credentials in process memory.
type MemoryVault struct {
	mutex   sync.RWMutex
	records map[recordKey]Record
}

// NewMemoryVault constructs a MemoryVault holding records.
func NewMemoryVault(records ...Record) *MemoryVault {
	vault := &MemoryVault{records: map[recordKey]Record{}}
	for _, record := range records {
		vault.Put(record)
	}
	return vault
}

// Put stores or replaces a record.
func (vault *MemoryVault) Put(record Record) {
	vault.mutex.Lock()
	defer vault.mutex.Unlock()
	vault.records[recordKey{kind: record.Kind, id: record.ID}] = record
}

// LookupByID returns the stored record for kind and id.
func (vault *MemoryVault) LookupByID(ctx context.Context, kind Kind, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	vault.mutex.RLock()
	defer vault.mutex.RUnlock()
	record, found := vault.records[recordKey{kind: kind, id: id}]
	return record, found, nil
}

// ChainVault consults several vaults in order; the first vault holding the
// credential wins. A backend failure stops the lookup.
type ChainVault struct {
	vaults []Vault
}

// NewChainVault constructs a ChainVault over vaults.
func NewChainVault(vaults ...Vault) ChainVault {
	return ChainVault{vaults: append([]Vault{}, vaults...)}
}

// LookupByID returns the record from the first vault that holds it.
func (chain ChainVault) LookupByID(ctx context.Context, kind Kind, id string) (Record, bool, error) {
	for _, vault := range chain.vaults {
		record, found, err := vault.LookupByID(ctx, kind, id)
		if err != nil {
			return Record{}, false, err
		}
		if found {
			return record, true, nil
		}
	}
	return Record{}, false, nil
}

// recordDocument is the serialized form of a Record shared by the file and system vaults.
type recordDocument struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	Archive     string `yaml:"archive,omitempty"`
	ArchiveFile string `yaml:"archive_file,omitempty"`
	Password    string `yaml:"password"`
	Path        string `yaml:"path,omitempty"`
}

func (document recordDocument) toRecord(kind Kind, baseDirectory string) (Record, error) {
	record := Record{
		ID:           document.ID,
		Kind:         kind,
		Description:  document.Description,
		Password:     document.Password,
		KeychainPath: document.Path,
	}
	switch {
	case document.Archive != "":
		archive, decodeErr := base64.StdEncoding.DecodeString(document.Archive)
		if decodeErr != nil {
			return Record{}, fmt.Errorf("decode archive of %s %s: %w", kind, document.ID, decodeErr)
		}
		record.Archive = archive
	case document.ArchiveFile != "":
		archivePath := document.ArchiveFile
		if !filepath.IsAbs(archivePath) && baseDirectory != "" {
			archivePath = filepath.Join(baseDirectory, archivePath)
		}
		archive, readErr := os.ReadFile(archivePath)
		if readErr != nil {
			return Record{}, fmt.Errorf("read archive of %s %s: %w", kind, document.ID, readErr)
		}
		record.Archive = archive
	}
	return record, nil
}
