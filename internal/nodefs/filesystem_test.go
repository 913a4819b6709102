package nodefs_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tyemirov/signkit/internal/nodefs"
	"github.com/tyemirov/signkit/internal/nodefs/nodefstest"
)

func TestExtractArchiveAndListByExtension(t *testing.T) {
	destination := filepath.Join(t.TempDir(), "bundle")
	archive := nodefstest.Archive(t, map[string]string{
		"developer/identities/a.p12":              "identity-a",
		"developer/identities/B.P12":              "identity-b",
		"developer/profiles/app.mobileprovision":  "profile",
		"developer/README.txt":                    "readme",
		"developer/nested/deeper/c.p12":           "identity-c",
		"developer/profiles/mac.provisionprofile": "mac-profile",
	})
	fileSystem := nodefs.NewLocalFileSystem()

	if err := fileSystem.ExtractArchive(archive, destination); err != nil {
		t.Fatalf("extract archive: %v", err)
	}
	identities, listErr := fileSystem.ListByExtension(destination, ".p12")
	if listErr != nil {
		t.Fatalf("list identities: %v", listErr)
	}
	expected := []string{
		filepath.Join(destination, "developer", "identities", "B.P12"),
		filepath.Join(destination, "developer", "identities", "a.p12"),
		filepath.Join(destination, "developer", "nested", "deeper", "c.p12"),
	}
	if !reflect.DeepEqual(identities, expected) {
		t.Fatalf("expected %v, got %v", expected, identities)
	}
	content, readErr := os.ReadFile(expected[1])
	if readErr != nil {
		t.Fatalf("read identity: %v", readErr)
	}
	if string(content) != "identity-a" {
		t.Fatalf("unexpected identity content %q", string(content))
	}
	info, statErr := os.Stat(expected[1])
	if statErr != nil {
		t.Fatalf("stat identity: %v", statErr)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("expected extracted file to be private, got %v", info.Mode().Perm())
	}
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	destination := filepath.Join(t.TempDir(), "bundle")
	archive := nodefstest.Archive(t, map[string]string{"../escape.p12": "identity"})
	err := nodefs.NewLocalFileSystem().ExtractArchive(archive, destination)
	if err == nil || !strings.Contains(err.Error(), "escapes destination") {
		t.Fatalf("expected escape error, got %v", err)
	}
}

func TestExtractArchiveRejectsInvalidArchive(t *testing.T) {
	err := nodefs.NewLocalFileSystem().ExtractArchive([]byte("not a zip"), t.TempDir())
	if err == nil {
		t.Fatalf("expected error for invalid archive")
	}
}

func TestCopyFileOverwritesDestination(t *testing.T) {
	directory := t.TempDir()
	source := filepath.Join(directory, "source.mobileprovision")
	destination := filepath.Join(directory, "destination.mobileprovision")
	mustWriteFile(t, source, "new")
	mustWriteFile(t, destination, "old-content")

	if err := nodefs.NewLocalFileSystem().CopyFile(source, destination); err != nil {
		t.Fatalf("copy file: %v", err)
	}
	content, readErr := os.ReadFile(destination)
	if readErr != nil {
		t.Fatalf("read destination: %v", readErr)
	}
	if string(content) != "new" {
		t.Fatalf("expected overwritten content, got %q", string(content))
	}
}

func TestFileExistsAndHomeDirectory(t *testing.T) {
	directory := t.TempDir()
	fileSystem := nodefs.NewLocalFileSystemWithHome(directory)
	present := filepath.Join(directory, "AppleWWDRCA.cer")
	mustWriteFile(t, present, "certificate")

	exists, err := fileSystem.FileExists(present)
	if err != nil || !exists {
		t.Fatalf("expected file to exist, got exists=%v err=%v", exists, err)
	}
	exists, err = fileSystem.FileExists(filepath.Join(directory, "missing.cer"))
	if err != nil || exists {
		t.Fatalf("expected missing file, got exists=%v err=%v", exists, err)
	}
	exists, err = fileSystem.FileExists(directory)
	if err != nil || exists {
		t.Fatalf("expected directory not to count as file, got exists=%v err=%v", exists, err)
	}
	home, homeErr := fileSystem.HomeDirectory(context.Background())
	if homeErr != nil || home != directory {
		t.Fatalf("expected home %s, got %s (%v)", directory, home, homeErr)
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
