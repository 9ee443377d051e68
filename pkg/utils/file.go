package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveDestinationPath checks that destPath can hold downloaded files: it
// is an existing directory, or it does not exist yet but its parent does.
func ResolveDestinationPath(destPath string) (string, error) {
	info, err := os.Stat(destPath)
	switch {
	case err == nil && info.IsDir():
		return destPath, nil
	case err == nil:
		return "", fmt.Errorf("destination path '%s' exists but is not a directory", destPath)
	case !os.IsNotExist(err):
		return "", fmt.Errorf("cannot access destination path: %w", err)
	}

	// created on first download
	dir := filepath.Dir(destPath)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return destPath, nil
	}
	return "", fmt.Errorf("parent directory does not exist: %s", dir)
}
