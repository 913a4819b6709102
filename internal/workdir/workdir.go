// Package workdir manages the private directory that holds an extracted signing bundle.
package workdir

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/nodefs"
)

const (
	directoryPermissions = 0o700
	digestBytes          = 16

	operationCreate  = "create work directory"
	operationSecure  = "restrict work directory"
	operationExtract = "extract signing bundle"
	operationList    = "list work directory"
	operationRemove  = "remove work directory"
)

// ProfilesRelativePath is the workspace-relative parent of every work directory.
var ProfilesRelativePath = filepath.Join("jenkins", "developer-profiles")

// domainKey separates work directory names from any other BLAKE3 use of the same secret.
var domainKey = [32]byte{
	's', 'i', 'g', 'n', 'k', 'i', 't', '.', 'w', 'o', 'r', 'k', 'd', 'i', 'r', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Directory is an extracted signing bundle. Close removes it.
type Directory struct {
	path       string
	fileSystem nodefs.FileSystem
	closeOnce  sync.Once
	closeErr   error
}

// DirectoryName derives the directory name for a key without exposing the key.
func DirectoryName(key string) string {
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("workdir: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(key))
	digest := hasher.Sum(nil)
	return hex.EncodeToString(digest[:digestBytes])
}

// Path returns the directory for key below workspace.
func Path(workspace string, key string) string {
	return filepath.Join(workspace, ProfilesRelativePath, DirectoryName(key))
}

// Prepare creates a fresh directory for key below workspace and extracts archive into it.
// Any stale directory for the same key is removed first.
func Prepare(ctx context.Context, fileSystem nodefs.FileSystem, workspace string, key string, archive []byte) (*Directory, error) {
	if cancelledErr := failure.FromContext(ctx); cancelledErr != nil {
		return nil, cancelledErr
	}
	parent := filepath.Join(workspace, ProfilesRelativePath)
	if err := fileSystem.EnsureDirectory(parent, directoryPermissions); err != nil {
		return nil, failure.NewResourceError(operationCreate, parent, err)
	}
	if err := fileSystem.SetPermissions(parent, directoryPermissions); err != nil {
		return nil, failure.NewResourceError(operationSecure, parent, err)
	}
	directoryPath := Path(workspace, key)
	if err := fileSystem.RemoveAll(directoryPath); err != nil {
		return nil, failure.NewResourceError(operationRemove, directoryPath, err)
	}
	if err := fileSystem.EnsureDirectory(directoryPath, directoryPermissions); err != nil {
		return nil, failure.NewResourceError(operationCreate, directoryPath, err)
	}
	directory := &Directory{path: directoryPath, fileSystem: fileSystem}
	if err := fileSystem.SetPermissions(directoryPath, directoryPermissions); err != nil {
		_ = directory.Close()
		return nil, failure.NewResourceError(operationSecure, directoryPath, err)
	}
	if err := fileSystem.ExtractArchive(archive, directoryPath); err != nil {
		_ = directory.Close()
		return nil, failure.NewResourceError(operationExtract, directoryPath, err)
	}
	return directory, nil
}

// Path returns the absolute directory path.
func (directory *Directory) Path() string {
	return directory.path
}

// List returns every file in the directory with the given extension, in lexical order.
func (directory *Directory) List(extension string) ([]string, error) {
	files, err := directory.fileSystem.ListByExtension(directory.path, extension)
	if err != nil {
		return nil, failure.NewResourceError(operationList, directory.path, err)
	}
	return files, nil
}

// Close removes the directory and its contents. Later calls return the first result.
func (directory *Directory) Close() error {
	directory.closeOnce.Do(func() {
		if err := directory.fileSystem.RemoveAll(directory.path); err != nil {
			directory.closeErr = failure.NewResourceError(operationRemove, directory.path, err)
		}
	})
	return directory.closeErr
}
