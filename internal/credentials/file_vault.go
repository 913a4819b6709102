package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

type fileVaultDocument struct {
	SigningIdentities []recordDocument `yaml:"signing_identities"`
	Keychains         []recordDocument `yaml:"keychains"`
}

// FileVault serves credentials from a YAML document on disk, optionally
// encrypted to an age identity.
type FileVault struct {
	records *MemoryVault
}

// LoadFileVault reads the vault document at path. When identityFile is set the
// document is decrypted with the age identities it contains.
func LoadFileVault(path string, identityFile string) (*FileVault, error) {
	content, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read vault file %s: %w", path, readErr)
	}
	if identityFile != "" {
		decrypted, decryptErr := decryptVaultFile(content, identityFile)
		if decryptErr != nil {
			return nil, fmt.Errorf("decrypt vault file %s: %w", path, decryptErr)
		}
		content = decrypted
	}
	return parseFileVault(content, filepath.Dir(path))
}

func decryptVaultFile(ciphertext []byte, identityFile string) ([]byte, error) {
	identityReader, openErr := os.Open(identityFile)
	if openErr != nil {
		return nil, fmt.Errorf("open identity file: %w", openErr)
	}
	defer identityReader.Close()
	identities, parseErr := age.ParseIdentities(identityReader)
	if parseErr != nil {
		return nil, fmt.Errorf("parse identity file: %w", parseErr)
	}
	plaintextReader, decryptErr := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if decryptErr != nil {
		return nil, decryptErr
	}
	return io.ReadAll(plaintextReader)
}

func parseFileVault(content []byte, baseDirectory string) (*FileVault, error) {
	var document fileVaultDocument
	if err := yaml.Unmarshal(content, &document); err != nil {
		return nil, fmt.Errorf("parse vault document: %w", err)
	}
	records := NewMemoryVault()
	sections := []struct {
		kind      Kind
		documents []recordDocument
	}{
		{kind: KindSigningIdentity, documents: document.SigningIdentities},
		{kind: KindKeychain, documents: document.Keychains},
	}
	for _, section := range sections {
		for _, entry := range section.documents {
			if entry.ID == "" {
				return nil, errors.New("vault document has a credential without id")
			}
			record, recordErr := entry.toRecord(section.kind, baseDirectory)
			if recordErr != nil {
				return nil, recordErr
			}
			records.Put(record)
		}
	}
	return &FileVault{records: records}, nil
}

// LookupByID returns the record for kind and id.
func (vault *FileVault) LookupByID(ctx context.Context, kind Kind, id string) (Record, bool, error) {
	return vault.records.LookupByID(ctx, kind, id)
}
