package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/mod/modfile"
)

// ModulePath is the import path of the stylepipe module.
const ModulePath = "github.com/schaermu/stylepipe"

// FindProjectRoot returns the directory holding the stylepipe go.mod,
// starting from the caller's source file.
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}
	return findModuleRoot(filepath.Dir(filename), ModulePath)
}

// findModuleRoot walks up from dir to the first go.mod declaring module.
// Other modules nested in the tree, such as test fixtures, are skipped.
func findModuleRoot(dir, module string) (string, error) {
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if data, err := os.ReadFile(goModPath); err == nil {
			if modfile.ModulePath(data) == module {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod for module %s not found above %s", module, dir)
		}
		dir = parent
	}
}
