// Package nodefs exposes the filesystem of the node that executes a build.
package nodefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

const maximumExtractedFileBytes = 64 << 20

// FileSystem groups the node filesystem operations used during provisioning.
type FileSystem interface {
	EnsureDirectory(path string, permissions fs.FileMode) error
	SetPermissions(path string, permissions fs.FileMode) error
	FileExists(path string) (bool, error)
	ListByExtension(root string, extension string) ([]string, error)
	ExtractArchive(archive []byte, destination string) error
	CopyFile(source string, destination string) error
	RemoveAll(path string) error
	HomeDirectory(ctx context.Context) (string, error)
}

// LocalFileSystem implements FileSystem against the local operating system.
type LocalFileSystem struct {
	homeDirectory string
}

// NewLocalFileSystem constructs a LocalFileSystem that resolves the home directory from the process user.
func NewLocalFileSystem() LocalFileSystem {
	return LocalFileSystem{}
}

// NewLocalFileSystemWithHome constructs a LocalFileSystem with a fixed home directory.
func NewLocalFileSystemWithHome(homeDirectory string) LocalFileSystem {
	return LocalFileSystem{homeDirectory: homeDirectory}
}

// EnsureDirectory creates path and its parents when missing.
func (fileSystem LocalFileSystem) EnsureDirectory(path string, permissions fs.FileMode) error {
	return os.MkdirAll(path, permissions)
}

// SetPermissions changes the mode of path.
func (fileSystem LocalFileSystem) SetPermissions(path string, permissions fs.FileMode) error {
	return os.Chmod(path, permissions)
}

// FileExists reports whether path exists as a regular file.
func (fileSystem LocalFileSystem) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ListByExtension returns every regular file below root whose extension matches, in lexical order.
func (fileSystem LocalFileSystem) ListByExtension(root string, extension string) ([]string, error) {
	normalizedExtension := strings.ToLower(extension)
	matches := []string{}
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == normalizedExtension {
			matches = append(matches, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(matches)
	return matches, nil
}

// ExtractArchive unpacks a zip archive into destination. Entries escaping
// destination are rejected.
func (fileSystem LocalFileSystem) ExtractArchive(archive []byte, destination string) error {
	reader, openErr := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if openErr != nil {
		return fmt.Errorf("open archive: %w", openErr)
	}
	if err := os.MkdirAll(destination, 0o700); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	cleanDestination := filepath.Clean(destination)
	for _, entry := range reader.File {
		targetPath := filepath.Join(cleanDestination, filepath.FromSlash(entry.Name))
		if targetPath != cleanDestination && !strings.HasPrefix(targetPath, cleanDestination+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %s escapes destination", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o700); err != nil {
				return fmt.Errorf("create directory %s: %w", entry.Name, err)
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		if err := extractEntry(entry, targetPath); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
		return fmt.Errorf("create directory for %s: %w", entry.Name, err)
	}
	source, openErr := entry.Open()
	if openErr != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, openErr)
	}
	defer source.Close()
	target, createErr := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if createErr != nil {
		return fmt.Errorf("create %s: %w", entry.Name, createErr)
	}
	written, copyErr := io.Copy(target, io.LimitReader(source, maximumExtractedFileBytes+1))
	closeErr := target.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", entry.Name, copyErr)
	}
	if written > maximumExtractedFileBytes {
		return fmt.Errorf("entry %s exceeds %d bytes", entry.Name, maximumExtractedFileBytes)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", entry.Name, closeErr)
	}
	return nil
}

// CopyFile copies source to destination, replacing any existing file.
func (fileSystem LocalFileSystem) CopyFile(source string, destination string) error {
	input, openErr := os.Open(source)
	if openErr != nil {
		return openErr
	}
	defer input.Close()
	info, statErr := input.Stat()
	if statErr != nil {
		return statErr
	}
	output, createErr := os.OpenFile(destination, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if createErr != nil {
		return createErr
	}
	if _, copyErr := io.Copy(output, input); copyErr != nil {
		_ = output.Close()
		return copyErr
	}
	return output.Close()
}

// RemoveAll removes path and everything below it.
func (fileSystem LocalFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// HomeDirectory returns the home directory of the user running on this node.
func (fileSystem LocalFileSystem) HomeDirectory(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fileSystem.homeDirectory != "" {
		return fileSystem.homeDirectory, nil
	}
	return os.UserHomeDir()
}
