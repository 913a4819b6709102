// Package nodefstest builds bundle archives for tests.
package nodefstest

import (
	"bytes"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Archive returns a zip archive holding the named files.
func Archive(t testing.TB, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buffer := &bytes.Buffer{}
	writer := zip.NewWriter(buffer)
	for _, name := range names {
		entryWriter, createErr := writer.Create(name)
		if createErr != nil {
			t.Fatalf("create archive entry %s: %v", name, createErr)
		}
		if _, writeErr := entryWriter.Write([]byte(files[name])); writeErr != nil {
			t.Fatalf("write archive entry %s: %v", name, writeErr)
		}
	}
	if closeErr := writer.Close(); closeErr != nil {
		t.Fatalf("close archive: %v", closeErr)
	}
	return buffer.Bytes()
}
