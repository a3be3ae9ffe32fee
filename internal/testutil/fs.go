package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// WriteTree creates files below root. Keys are slash-separated relative
// paths; parent directories are created as needed.
func WriteTree(t *testing.T, fsys afero.Fs, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fsys, path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadFile returns the contents of path or fails the test
func ReadFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
